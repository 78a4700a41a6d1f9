package message

import (
	"encoding/json"
	"fmt"
)

// 入站信封：{ "kind": "...", ...各 kind 自己的字段 }。
// 闭合协议：kind 集合是显式枚举的，不是插件面；未知 kind 一律拒绝。
// 每种 kind 一个变体结构，只带自己的必填字段，解码时做字段校验。

// BadRequestError 客户端侧错误（缺字段/未知 kind），对应 4xx 语义；不是服务端故障。
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string {
	return e.Reason
}

func badRequestf(format string, args ...any) error {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}

// Inbound 所有入站变体的公共接口。
type Inbound interface {
	Kind() string
	validate() error
}

// SendMessageReq 发送消息
type SendMessageReq struct {
	ConversationType string      `json:"conversationType"`
	ConversationID   string      `json:"conversationId"`
	SenderID         string      `json:"senderId"`
	Text             string      `json:"text"`
	TimestampMs      int64       `json:"timestamp"`
	Attachment       *Attachment `json:"attachment,omitempty"`
}

func (r *SendMessageReq) Kind() string { return KindSendMessage }

func (r *SendMessageReq) validate() error {
	switch {
	case r.ConversationType == "":
		return badRequestf("sendMessage: conversationType is required")
	case r.ConversationID == "":
		return badRequestf("sendMessage: conversationId is required")
	case r.SenderID == "":
		return badRequestf("sendMessage: senderId is required")
	case r.Text == "":
		return badRequestf("sendMessage: text is required")
	case r.TimestampMs == 0:
		return badRequestf("sendMessage: timestamp is required")
	}
	return nil
}

// EditMessageReq 编辑消息
type EditMessageReq struct {
	ConversationType string `json:"conversationType"`
	ConversationID   string `json:"conversationId"`
	MessageID        string `json:"messageId"`
	Text             string `json:"text"`
	EditedBy         string `json:"editedBy,omitempty"`
}

func (r *EditMessageReq) Kind() string { return KindEditMessage }

func (r *EditMessageReq) validate() error {
	switch {
	case r.ConversationType == "":
		return badRequestf("editMessage: conversationType is required")
	case r.ConversationID == "":
		return badRequestf("editMessage: conversationId is required")
	case r.MessageID == "":
		return badRequestf("editMessage: messageId is required")
	case r.Text == "":
		return badRequestf("editMessage: text is required")
	}
	return nil
}

// DeleteMessageReq 删除消息
type DeleteMessageReq struct {
	ConversationType string `json:"conversationType"`
	ConversationID   string `json:"conversationId"`
	MessageID        string `json:"messageId"`
}

func (r *DeleteMessageReq) Kind() string { return KindDeleteMessage }

func (r *DeleteMessageReq) validate() error {
	switch {
	case r.ConversationType == "":
		return badRequestf("deleteMessage: conversationType is required")
	case r.ConversationID == "":
		return badRequestf("deleteMessage: conversationId is required")
	case r.MessageID == "":
		return badRequestf("deleteMessage: messageId is required")
	}
	return nil
}

// ToggleReactionReq 表情回应开关
type ToggleReactionReq struct {
	ConversationType string `json:"conversationType"`
	ConversationID   string `json:"conversationId"`
	MessageID        string `json:"messageId"`
	Emoji            string `json:"emoji"`
	UserID           string `json:"userId"`
}

func (r *ToggleReactionReq) Kind() string { return KindToggleReaction }

func (r *ToggleReactionReq) validate() error {
	switch {
	case r.ConversationType == "":
		return badRequestf("toggleReaction: conversationType is required")
	case r.ConversationID == "":
		return badRequestf("toggleReaction: conversationId is required")
	case r.MessageID == "":
		return badRequestf("toggleReaction: messageId is required")
	case r.Emoji == "":
		return badRequestf("toggleReaction: emoji is required")
	case r.UserID == "":
		return badRequestf("toggleReaction: userId is required")
	}
	return nil
}

// MarkReadReq 已读状态广播（落库由调用方自己完成，这里只做 fanout）
type MarkReadReq struct {
	ConversationType string `json:"conversationType"`
	ConversationID   string `json:"conversationId"`
	UserID           string `json:"userId"`
	Read             *bool  `json:"read"`
}

func (r *MarkReadReq) Kind() string { return KindMarkRead }

func (r *MarkReadReq) validate() error {
	switch {
	case r.ConversationType == "":
		return badRequestf("markRead: conversationType is required")
	case r.ConversationID == "":
		return badRequestf("markRead: conversationId is required")
	case r.UserID == "":
		return badRequestf("markRead: userId is required")
	case r.Read == nil:
		return badRequestf("markRead: read is required")
	}
	return nil
}

// SetActiveConversationReq 连接焦点切换
type SetActiveConversationReq struct {
	ConversationID string `json:"conversationId"`
}

func (r *SetActiveConversationReq) Kind() string { return KindSetActiveConversation }

func (r *SetActiveConversationReq) validate() error {
	if r.ConversationID == "" {
		return badRequestf("setActiveConversation: conversationId is required")
	}
	return nil
}

// PresenceLookupReq 在线用户快照请求（无字段，身份取连接上下文）
type PresenceLookupReq struct{}

func (r *PresenceLookupReq) Kind() string { return KindPresenceLookup }

func (r *PresenceLookupReq) validate() error { return nil }

// FetchNotificationsReq 拉取最近通知（无字段，身份取连接上下文）
type FetchNotificationsReq struct{}

func (r *FetchNotificationsReq) Kind() string { return KindFetchNotifications }

func (r *FetchNotificationsReq) validate() error { return nil }

// TimelineRelayReq timeline 家族的纯转发事件。
// 三个 kind 共用一个载体，Action 保留原始 kind 原样转发；
// timelineUpdated 额外对首个 event 触发一次团队通知。
type TimelineRelayReq struct {
	Action         string            `json:"-"`
	ConversationID string            `json:"conversationId"`
	Events         []json.RawMessage `json:"events"`
}

func (r *TimelineRelayReq) Kind() string { return r.Action }

func (r *TimelineRelayReq) validate() error {
	switch {
	case r.ConversationID == "":
		return badRequestf("%s: conversationId is required", r.Action)
	case len(r.Events) == 0:
		return badRequestf("%s: events is required", r.Action)
	}
	return nil
}

// TimelineEventProbe 从首个 event 里取团队通知需要的字段。
type TimelineEventProbe struct {
	EventID     string `json:"eventId"`
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"createdBy"`
}

// ProjectUpdatedReq 项目信息变更转发 + 团队通知
type ProjectUpdatedReq struct {
	ProjectID string          `json:"projectId"`
	Title     string          `json:"title,omitempty"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	Fields    json.RawMessage `json:"fields,omitempty"`
}

func (r *ProjectUpdatedReq) Kind() string { return KindProjectUpdated }

func (r *ProjectUpdatedReq) validate() error {
	if r.ProjectID == "" {
		return badRequestf("projectUpdated: projectId is required")
	}
	return nil
}

// BudgetUpdatedReq 预算变更转发 + 团队通知
type BudgetUpdatedReq struct {
	ProjectID string          `json:"projectId"`
	UpdatedBy string          `json:"updatedBy,omitempty"`
	Budget    json.RawMessage `json:"budget,omitempty"`
}

func (r *BudgetUpdatedReq) Kind() string { return KindBudgetUpdated }

func (r *BudgetUpdatedReq) validate() error {
	if r.ProjectID == "" {
		return badRequestf("budgetUpdated: projectId is required")
	}
	return nil
}

// LineLockReq 预算行锁/解锁转发（无通知，只广播给在看的人）
type LineLockReq struct {
	Action    string `json:"-"`
	ProjectID string `json:"projectId"`
	LineID    string `json:"lineId"`
	UserID    string `json:"userId"`
}

func (r *LineLockReq) Kind() string { return r.Action }

func (r *LineLockReq) validate() error {
	switch {
	case r.ProjectID == "":
		return badRequestf("%s: projectId is required", r.Action)
	case r.LineID == "":
		return badRequestf("%s: lineId is required", r.Action)
	case r.UserID == "":
		return badRequestf("%s: userId is required", r.Action)
	}
	return nil
}

// Decode 解析入站信封：先探 kind，再按变体解码并做必填字段校验。
// 未知 kind、缺字段都返回 *BadRequestError；JSON 本身坏掉也算 bad request。
func Decode(raw []byte) (Inbound, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, badRequestf("invalid envelope: %v", err)
	}

	var in Inbound
	switch probe.Kind {
	case KindSendMessage:
		in = &SendMessageReq{}
	case KindEditMessage:
		in = &EditMessageReq{}
	case KindDeleteMessage:
		in = &DeleteMessageReq{}
	case KindToggleReaction:
		in = &ToggleReactionReq{}
	case KindMarkRead:
		in = &MarkReadReq{}
	case KindSetActiveConversation:
		in = &SetActiveConversationReq{}
	case KindPresenceLookup:
		in = &PresenceLookupReq{}
	case KindFetchNotifications:
		in = &FetchNotificationsReq{}
	case KindTimelineUpdate, KindTimelineDelete, KindTimelineUpdated:
		in = &TimelineRelayReq{Action: probe.Kind}
	case KindProjectUpdated:
		in = &ProjectUpdatedReq{}
	case KindBudgetUpdated:
		in = &BudgetUpdatedReq{}
	case KindLineLocked, KindLineUnlocked:
		in = &LineLockReq{Action: probe.Kind}
	case "":
		return nil, badRequestf("missing kind")
	default:
		return nil, badRequestf("unknown kind: %s", probe.Kind)
	}

	if err := json.Unmarshal(raw, in); err != nil {
		return nil, badRequestf("%s: invalid payload: %v", probe.Kind, err)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	return in, nil
}
