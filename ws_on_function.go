package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/jazbelrose/mylg-realtime/message"
	"github.com/jazbelrose/mylg-realtime/models"
	"github.com/jazbelrose/mylg-realtime/service"
)

// bindWsHandlersOnMessage 将 WS 回调从 engine.go 抽出来，避免 engine.go 臃肿。
// 说明：放在包根目录（同 WsServer/engine.go 同级），
// 这样可以直接访问 Instance 与 Client 类型，避免 service 层循环依赖。
func (c *RealtimeEngine) bindWsHandlersOnMessage() {
	c.WsServer.onMessage = func(client *Client, msg []byte) {
		if client == nil {
			return
		}
		ctx := context.Background()

		// 1) 解码信封（kind 闭合枚举 + 必填字段校验）
		in, err := message.Decode(msg)
		if err != nil {
			var bad *message.BadRequestError
			if errors.As(err, &bad) {
				sendWsError(client.ConnID, bad.Reason)
				return
			}
			sendWsError(client.ConnID, "invalid message")
			return
		}

		// 2) 按变体分发
		switch req := in.(type) {
		case *message.SendMessageReq:
			c.handleSendMessage(ctx, client, req)
		case *message.EditMessageReq:
			c.handleEditMessage(ctx, client, req)
		case *message.DeleteMessageReq:
			c.handleDeleteMessage(ctx, client, req)
		case *message.ToggleReactionReq:
			c.handleToggleReaction(ctx, client, req)
		case *message.MarkReadReq:
			c.handleMarkRead(ctx, client, req)
		case *message.SetActiveConversationReq:
			c.handleSetActiveConversation(ctx, client, req)
		case *message.PresenceLookupReq:
			c.handlePresenceLookup(ctx, client)
		case *message.FetchNotificationsReq:
			c.handleFetchNotifications(ctx, client)
		case *message.TimelineRelayReq:
			c.handleTimelineRelay(ctx, client, req)
		case *message.ProjectUpdatedReq:
			c.handleProjectUpdated(ctx, client, req)
		case *message.BudgetUpdatedReq:
			c.handleBudgetUpdated(ctx, client, req)
		case *message.LineLockReq:
			c.handleLineLock(ctx, client, req)
		default:
			sendWsError(client.ConnID, "unknown kind")
		}
	}
}

// handleSendMessage 落库 + 线程摘要 + 扇出 + DM 通知。
func (c *RealtimeEngine) handleSendMessage(ctx context.Context, client *Client, req *message.SendMessageReq) {
	saved, err := c.MsgService.Send(ctx, service.SendInput{
		ConversationType: req.ConversationType,
		ConversationID:   req.ConversationID,
		SenderID:         req.SenderID,
		Text:             req.Text,
		TimestampMs:      req.TimestampMs,
		Attachment:       req.Attachment,
	})
	if err != nil {
		log.Printf("sendMessage failed: %v", err)
		sendWsError(client.ConnID, "failed to save message")
		return
	}

	frame := struct {
		Kind           string              `json:"kind"`
		ConversationID string              `json:"conversationId"`
		MessageID      string              `json:"messageId"`
		SenderID       string              `json:"senderId"`
		Text           string              `json:"text"`
		TimestampMs    int64               `json:"timestamp"`
		Attachment     *message.Attachment `json:"attachment,omitempty"`
	}{
		Kind:           message.FrameNewMessage,
		ConversationID: saved.ConversationID,
		MessageID:      saved.MessageID,
		SenderID:       saved.SenderID,
		Text:           saved.Text,
		TimestampMs:    saved.TimestampMs,
		Attachment:     req.Attachment,
	}
	payload, _ := json.Marshal(frame)

	if service.IsDMKey(saved.ConversationID) {
		// DM：按用户投（双方所有设备都收到，无论当前在看哪个会话）
		recipient := service.OtherParticipant(saved.ConversationID, saved.SenderID)
		_ = c.FanoutService.BroadcastToUser(ctx, saved.SenderID, payload)
		if recipient != "" {
			_ = c.FanoutService.BroadcastToUser(ctx, recipient, payload)

			// 给接收方落一条可删除的通知（dedupeId 绑定到消息，撤回时能反删）
			if _, err := c.NotifyService.Notify(ctx, recipient,
				"New message from "+saved.SenderID,
				service.DMDedupeID(saved.ConversationID, saved.MessageID),
				saved.TimestampMs, saved.SenderID, ""); err != nil {
				log.Printf("dm notify failed: %v", err)
			}
		}
		return
	}

	// 群/项目会话：按会话投（只有在看的人收到）
	_ = c.FanoutService.BroadcastToConversation(ctx, saved.ConversationID, payload)
}

func (c *RealtimeEngine) handleEditMessage(ctx context.Context, client *Client, req *message.EditMessageReq) {
	// 先用连接身份解析会话 key，后续 editedBy 可能为空
	convID := service.NormalizeConversationKey(req.ConversationType, req.ConversationID, client.UserID)
	edited, err := c.MsgService.Edit(ctx, "", convID, req.MessageID, req.Text, req.EditedBy)
	if err != nil {
		if models.IsNotFound(err) {
			sendWsError(client.ConnID, "message not found")
			return
		}
		log.Printf("editMessage failed: %v", err)
		sendWsError(client.ConnID, "failed to edit message")
		return
	}

	frame := map[string]any{
		"kind":           message.FrameMessageEdited,
		"conversationId": edited.ConversationID,
		"messageId":      edited.MessageID,
		"text":           edited.Text,
		"editedBy":       edited.EditedBy,
	}
	if edited.EditedAtMs != nil {
		frame["editedAt"] = *edited.EditedAtMs
	}
	payload, _ := json.Marshal(frame)
	_ = c.FanoutService.BroadcastToConversation(ctx, edited.ConversationID, payload)
}

func (c *RealtimeEngine) handleDeleteMessage(ctx context.Context, client *Client, req *message.DeleteMessageReq) {
	convID := service.NormalizeConversationKey(req.ConversationType, req.ConversationID, client.UserID)

	if err := c.MsgService.Delete(ctx, "", convID, req.MessageID); err != nil {
		if models.IsNotFound(err) {
			sendWsError(client.ConnID, "message not found")
			return
		}
		log.Printf("deleteMessage failed: %v", err)
		sendWsError(client.ConnID, "failed to delete message")
		return
	}

	// 撤回消息的同时清掉它派生出的通知
	if n, err := c.NotifyService.DeleteByDedupeID(ctx, service.DMDedupeID(convID, req.MessageID)); err != nil {
		log.Printf("delete notifications for %s/%s failed: %v", convID, req.MessageID, err)
	} else if n > 0 && c.config.Service.Debug {
		log.Printf("deleted %d notifications for %s/%s", n, convID, req.MessageID)
	}

	payload, _ := json.Marshal(map[string]any{
		"kind":           message.FrameMessageDeleted,
		"conversationId": convID,
		"messageId":      req.MessageID,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, convID, payload)
}

func (c *RealtimeEngine) handleToggleReaction(ctx context.Context, client *Client, req *message.ToggleReactionReq) {
	updated, err := c.MsgService.ToggleReaction(ctx, req.ConversationType, req.ConversationID, req.MessageID, req.Emoji, req.UserID)
	if err != nil {
		if models.IsNotFound(err) {
			sendWsError(client.ConnID, "message not found")
			return
		}
		log.Printf("toggleReaction failed: %v", err)
		sendWsError(client.ConnID, "failed to toggle reaction")
		return
	}

	reactions, err := updated.ReactionMap()
	if err != nil {
		log.Printf("reaction map decode failed: %v", err)
		reactions = map[string][]string{}
	}
	payload, _ := json.Marshal(map[string]any{
		"kind":           message.FrameReactionUpdated,
		"conversationId": updated.ConversationID,
		"messageId":      updated.MessageID,
		"reactions":      reactions,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, updated.ConversationID, payload)
}

// handleMarkRead 更新自己的线程摘要已读位，然后把状态广播给在看的人。
func (c *RealtimeEngine) handleMarkRead(ctx context.Context, client *Client, req *message.MarkReadReq) {
	convID := service.NormalizeConversationKey(req.ConversationType, req.ConversationID, req.UserID)

	if err := c.MsgService.MarkThreadRead(req.UserID, convID, *req.Read); err != nil {
		// 无摘要行也照常广播，读态本身是尽力而为
		log.Printf("markRead persist failed: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"kind":           message.FrameReadStatus,
		"conversationId": convID,
		"userId":         req.UserID,
		"read":           *req.Read,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, convID, payload)
}

func (c *RealtimeEngine) handleSetActiveConversation(ctx context.Context, client *Client, req *message.SetActiveConversationReq) {
	convID := req.ConversationID
	if service.IsDMKey(convID) {
		convID = service.NormalizeConversationKey(service.ConversationTypeDM, convID, client.UserID)
	}
	if err := c.RegistryService.SetActiveConversation(ctx, client.ConnID, convID); err != nil {
		log.Printf("setActiveConversation failed conn=%s: %v", client.ConnID, err)
		sendWsError(client.ConnID, "failed to switch conversation")
	}
}

// handlePresenceLookup 在线用户快照，只回给发起的连接。
func (c *RealtimeEngine) handlePresenceLookup(ctx context.Context, client *Client) {
	users, err := c.RegistryService.Snapshot(ctx)
	if err != nil {
		log.Printf("presence snapshot failed: %v", err)
		sendWsError(client.ConnID, "failed to load presence")
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"kind":  message.FramePresenceSnapshot,
		"users": users,
	})
	if err := c.WsServer.SendToConnection(client.ConnID, payload); err != nil {
		log.Printf("presence push failed conn=%s: %v", client.ConnID, err)
	}
}

// handleFetchNotifications 最近通知批量回放，只回给发起的连接。
func (c *RealtimeEngine) handleFetchNotifications(ctx context.Context, client *Client) {
	items, err := c.NotifyService.RecentForUser(client.UserID, 0)
	if err != nil {
		log.Printf("fetch notifications failed user=%s: %v", client.UserID, err)
		sendWsError(client.ConnID, "failed to load notifications")
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"kind":  message.FrameNotificationsBatch,
		"items": items,
	})
	if err := c.WsServer.SendToConnection(client.ConnID, payload); err != nil {
		log.Printf("notifications push failed conn=%s: %v", client.ConnID, err)
	}
}

// handleTimelineRelay timeline 三兄弟都是纯转发；
// timelineUpdated 额外对首个 event 触发一次团队通知（按 eventId 去重）。
func (c *RealtimeEngine) handleTimelineRelay(ctx context.Context, client *Client, req *message.TimelineRelayReq) {
	payload, _ := json.Marshal(map[string]any{
		"kind":           req.Action,
		"conversationId": req.ConversationID,
		"events":         req.Events,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, req.ConversationID, payload)

	if req.Action != message.KindTimelineUpdated || len(req.Events) == 0 {
		return
	}
	var probe message.TimelineEventProbe
	if err := json.Unmarshal(req.Events[0], &probe); err != nil || probe.EventID == "" {
		return
	}
	projectID := probe.ProjectID
	if projectID == "" {
		projectID = req.ConversationID
	}
	title := probe.Title
	if title == "" {
		title = probe.Description
	}
	if err := c.NotifyService.NotifyProjectTeam(ctx, projectID,
		"Timeline updated: "+title,
		service.TimelineDedupeID(projectID, probe.EventID),
		probe.CreatedBy); err != nil {
		log.Printf("timeline team notify failed project=%s: %v", projectID, err)
	}
}

func (c *RealtimeEngine) handleProjectUpdated(ctx context.Context, client *Client, req *message.ProjectUpdatedReq) {
	payload, _ := json.Marshal(map[string]any{
		"kind":      message.KindProjectUpdated,
		"projectId": req.ProjectID,
		"title":     req.Title,
		"updatedBy": req.UpdatedBy,
		"fields":    req.Fields,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, req.ProjectID, payload)

	tsMs := time.Now().UnixMilli()
	title := req.Title
	if title == "" {
		title = req.ProjectID
	}
	if err := c.NotifyService.NotifyProjectTeam(ctx, req.ProjectID,
		"Project updated: "+title,
		service.ProjectDedupeID(req.ProjectID, tsMs),
		req.UpdatedBy); err != nil {
		log.Printf("project team notify failed project=%s: %v", req.ProjectID, err)
	}
}

func (c *RealtimeEngine) handleBudgetUpdated(ctx context.Context, client *Client, req *message.BudgetUpdatedReq) {
	payload, _ := json.Marshal(map[string]any{
		"kind":      message.KindBudgetUpdated,
		"projectId": req.ProjectID,
		"updatedBy": req.UpdatedBy,
		"budget":    req.Budget,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, req.ProjectID, payload)

	tsMs := time.Now().UnixMilli()
	if err := c.NotifyService.NotifyProjectTeam(ctx, req.ProjectID,
		"Budget updated",
		service.BudgetDedupeID(req.ProjectID, tsMs),
		req.UpdatedBy); err != nil {
		log.Printf("budget team notify failed project=%s: %v", req.ProjectID, err)
	}
}

// handleLineLock 行锁/解锁只广播，不产生通知。
func (c *RealtimeEngine) handleLineLock(ctx context.Context, client *Client, req *message.LineLockReq) {
	payload, _ := json.Marshal(map[string]any{
		"kind":      req.Action,
		"projectId": req.ProjectID,
		"lineId":    req.LineID,
		"userId":    req.UserID,
	})
	_ = c.FanoutService.BroadcastToConversation(ctx, req.ProjectID, payload)
}

func sendWsError(connID string, msg string) {
	if Instance == nil || Instance.WsServer == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"kind": message.FrameError, "message": msg})
	_ = Instance.WsServer.SendToConnection(connID, payload)
}
