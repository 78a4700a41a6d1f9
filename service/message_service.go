package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jazbelrose/mylg-realtime/message"
	"github.com/jazbelrose/mylg-realtime/models"
	"github.com/jazbelrose/mylg-realtime/repository"
	"gorm.io/datatypes"
)

// MessageService 消息存储适配层：落库 + 会话摘要维护。
// 不做 fanout——投递给谁是 dispatcher 层的事，这里只保证“先落库”。
type MessageService struct {
	*Service
	messageDAO *models.MessageDAO
	threadDAO  *repository.ThreadSummaryDAO
}

func NewMessageService(s *Service) *MessageService {
	return &MessageService{
		Service:    s,
		messageDAO: models.NewMessageDAO(s.DB),
		threadDAO:  repository.NewThreadSummaryDAO(s.DB),
	}
}

// snippetMax 会话摘要里保留的最大字符数
const snippetMax = 120

func makeSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMax {
		return text
	}
	return string(runes[:snippetMax])
}

// SendInput 发送消息入参
type SendInput struct {
	ConversationType string
	ConversationID   string
	SenderID         string
	Text             string
	TimestampMs      int64
	Attachment       *message.Attachment
}

// Send 发送消息：
//  1. DM 会话先做 key 规范化；
//  2. 消息落库（message_id 由时间戳确定性推导）；
//  3. 落库成功后，DM 再写两行会话摘要：发送方 read=true、接收方 read=false。
//     两次摘要写入相互独立、非事务——中间崩溃可能留下不一致，这是已接受的取舍；
//     摘要写失败不回滚消息，只记日志。
func (s *MessageService) Send(ctx context.Context, in SendInput) (*models.ChatMessage, error) {
	convID := NormalizeConversationKey(in.ConversationType, in.ConversationID, in.SenderID)

	msg := &models.ChatMessage{
		ConversationID: convID,
		MessageID:      models.DeriveMessageID(in.TimestampMs),
		SenderID:       in.SenderID,
		Text:           in.Text,
		TimestampMs:    in.TimestampMs,
	}
	if in.Attachment != nil {
		b, err := json.Marshal(in.Attachment)
		if err != nil {
			return nil, fmt.Errorf("marshal attachment: %w", err)
		}
		msg.Attachment = datatypes.JSON(b)
	}

	if err := s.messageDAO.Create(msg); err != nil {
		return nil, err
	}

	if in.ConversationType == ConversationTypeDM {
		s.updateThreadSummaries(convID, in.SenderID, in.Text, in.TimestampMs)
	}

	return msg, nil
}

// updateThreadSummaries 写两行会话摘要（发送方已读 / 接收方未读）。
func (s *MessageService) updateThreadSummaries(convID, senderID, text string, tsMs int64) {
	recipient := OtherParticipant(convID, senderID)
	if recipient == "" {
		log.Printf("message: cannot resolve recipient from %s, skip thread summaries", convID)
		return
	}

	now := time.Now()
	snippet := makeSnippet(text)

	if err := s.threadDAO.Upsert(senderID, convID, recipient, snippet, tsMs, true, now); err != nil {
		log.Printf("message: sender thread summary upsert failed: %v", err)
	}
	if err := s.threadDAO.Upsert(recipient, convID, senderID, snippet, tsMs, false, now); err != nil {
		log.Printf("message: recipient thread summary upsert failed: %v", err)
	}
}

// Edit 原地编辑消息内容，不保留历史版本。
// 身份校验依赖传输层已鉴权的 editedBy，不做加密层面的防伪。
func (s *MessageService) Edit(ctx context.Context, conversationType, conversationID, messageID, text, editedBy string) (*models.ChatMessage, error) {
	convID := NormalizeConversationKey(conversationType, conversationID, editedBy)
	editedAtMs := time.Now().UnixMilli()

	if err := s.messageDAO.UpdateText(convID, messageID, text, editedBy, editedAtMs); err != nil {
		return nil, err
	}
	return s.messageDAO.FindByID(convID, messageID)
}

// Delete 物理删除消息；有附件时委托 blob 协作方按 key 清理（失败只记日志）。
// 若这条消息曾触发过通知，按 dedupe key 清理通知是调用方的责任。
func (s *MessageService) Delete(ctx context.Context, conversationType, conversationID, messageID string) error {
	convID := NormalizeConversationKey(conversationType, conversationID, "")

	msg, err := s.messageDAO.FindByID(convID, messageID)
	if err != nil {
		return err
	}

	if err := s.messageDAO.Delete(convID, messageID); err != nil {
		return err
	}

	if len(msg.Attachment) > 0 {
		var att message.Attachment
		if err := json.Unmarshal(msg.Attachment, &att); err != nil {
			log.Printf("message: bad attachment json on %s/%s: %v", convID, messageID, err)
		} else if att.FileKey != "" {
			if s.BlobDeleter == nil {
				log.Printf("message: no blob deleter configured, leaking %s", att.FileKey)
			} else if err := s.BlobDeleter(ctx, att.FileKey); err != nil {
				log.Printf("message: blob delete %s failed: %v", att.FileKey, err)
			}
		}
	}

	return nil
}

// ToggleReaction 表情回应开关：读-改-写 reactions map。
// 用户不在集合里就加进去，在就移除；集合清空时整个 emoji key 删掉。
// 不是 CAS：两个用户在同一 emoji 上并发 toggle 会在存储层竞态，最后写入者胜出。
func (s *MessageService) ToggleReaction(ctx context.Context, conversationType, conversationID, messageID, emoji, userID string) (*models.ChatMessage, error) {
	convID := NormalizeConversationKey(conversationType, conversationID, userID)

	msg, err := s.messageDAO.FindByID(convID, messageID)
	if err != nil {
		return nil, err
	}

	reactions, err := msg.ReactionMap()
	if err != nil {
		return nil, fmt.Errorf("bad reactions json on %s/%s: %w", convID, messageID, err)
	}

	users := reactions[emoji]
	found := false
	next := make([]string, 0, len(users))
	for _, u := range users {
		if u == userID {
			found = true
			continue
		}
		next = append(next, u)
	}
	if !found {
		next = append(next, userID)
	}
	if len(next) == 0 {
		delete(reactions, emoji)
	} else {
		reactions[emoji] = next
	}

	if err := msg.SetReactionMap(reactions); err != nil {
		return nil, err
	}
	if err := s.messageDAO.UpdateReactions(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListConversationMessages 拉取会话历史（HTTP 用）
func (s *MessageService) ListConversationMessages(conversationID string, limit, offset int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return s.messageDAO.FindByConversation(conversationID, limit, offset)
}

// ListThreads 拉取用户会话摘要列表（HTTP 用）
func (s *MessageService) ListThreads(userID string) ([]models.ThreadSummary, error) {
	return s.threadDAO.ListByUser(userID)
}

// MarkThreadRead 用户自己那行摘要的已读标记（markRead 事件假定的“调用方自己的落库”入口）
func (s *MessageService) MarkThreadRead(userID, conversationID string, read bool) error {
	return s.threadDAO.SetRead(userID, conversationID, read, time.Now())
}
