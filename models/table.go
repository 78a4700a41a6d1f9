package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const (
	prefix = "rt_"
)

// DeriveMessageID 由发送时间戳（毫秒）确定性生成消息 ID。
// 注意：不是随机 ID，同一会话同一毫秒内的两次发送理论上会撞 ID；
// 下游有按这个格式拼 URL/key 的路径，改成随机 ID 前必须先和调用方确认。
func DeriveMessageID(timestampMs int64) string {
	return fmt.Sprintf("msg#%d", timestampMs)
}

// ChatMessage 消息表
// 主键为 (conversation_id, message_id)，即“会话分区 + 时间戳排序键”。
type ChatMessage struct {
	ConversationID string         `gorm:"primaryKey;size:191;not null"` // 会话 key（DM 为规范 key，项目会话为 projectID）
	MessageID      string         `gorm:"primaryKey;size:64;not null"`  // msg#<unix_ms>
	SenderID       string         `gorm:"size:64;index;not null"`       // 发送者 userID
	Text           string         `gorm:"type:text"`                    // 消息内容
	TimestampMs    int64          `gorm:"index;not null"`               // 发送时间（毫秒）
	Reactions      datatypes.JSON `gorm:"type:json"`                    // emoji -> []userID
	Attachment     datatypes.JSON `gorm:"type:json"`                    // 可选的附件描述
	EditedAtMs     *int64         // 编辑时间（毫秒），未编辑为 NULL
	EditedBy       string         `gorm:"size:64"` // 编辑者 userID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ChatMessage) TableName() string {
	return prefix + "message"
}

// ReactionMap 解析 reactions JSON；空列返回空 map。
func (m *ChatMessage) ReactionMap() (map[string][]string, error) {
	out := make(map[string][]string)
	if len(m.Reactions) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.Reactions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetReactionMap 回写 reactions JSON。
func (m *ChatMessage) SetReactionMap(reactions map[string][]string) error {
	b, err := json.Marshal(reactions)
	if err != nil {
		return err
	}
	m.Reactions = datatypes.JSON(b)
	return nil
}

// ThreadSummary 会话摘要表（仅私聊）
// 每个 (user_id, conversation_id) 一行，用于渲染会话列表，不用扫全量消息。
// 一次发送写两行：发送方 read=true，接收方 read=false；两行通过 other_user_id 互相指向。
type ThreadSummary struct {
	ID             uint64 `gorm:"primarykey"`
	UserID         string `gorm:"size:64;index:idx_user_conv,unique;not null"`  // 行归属用户
	ConversationID string `gorm:"size:191;index:idx_user_conv,unique;not null"` // 规范 DM key
	OtherUserID    string `gorm:"size:64;not null"`                             // 对端用户
	Snippet        string `gorm:"size:200"`                                     // 最后一条消息摘要
	LastMsgTs      int64  `gorm:"index;not null"`                               // 最后消息时间（毫秒）
	Read           bool   `gorm:"default:false"`                                // 是否已读
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ThreadSummary) TableName() string {
	return prefix + "thread_summary"
}

// Notification 通知表
// (user_id, sort_key) 为主键；sort_key = <timestamp_ms>#<uniquifier>，同一毫秒多条也不冲突。
// dedupe_id 建索引：既用于有界窗口去重，也用于删除时的反查。
type Notification struct {
	UserID      string `gorm:"primaryKey;size:64;not null"` // 通知归属用户
	SortKey     string `gorm:"primaryKey;size:96;not null"` // <ts_ms>#<uuid>
	TimestampMs int64  `gorm:"index;not null"`              // 事件时间（毫秒）
	DedupeID    string `gorm:"size:191;index;not null"`     // 调用方提供的去重 key
	Message     string `gorm:"size:500"`                    // 展示文案
	Read        bool   `gorm:"default:false"`               // 是否已读
	SenderID    string `gorm:"size:64"`                     // 触发者
	ProjectID   string `gorm:"size:64;index"`               // 项目范围事件携带
	CreatedAt   time.Time
}

func (Notification) TableName() string {
	return prefix + "notification"
}

// ProjectMember 项目成员表（团队通知的默认收件人来源）
// 成员关系由上游系统维护，这里只查不写；也可以用 WithTeamResolver 整个换掉。
type ProjectMember struct {
	ID        uint64 `gorm:"primarykey"`
	ProjectID string `gorm:"size:64;index:idx_project_user,unique;not null"`
	UserID    string `gorm:"size:64;index:idx_project_user,unique;not null"`
	Role      string `gorm:"size:32"`
	CreatedAt time.Time
}

func (ProjectMember) TableName() string {
	return prefix + "project_member"
}
