package models

import (
	"errors"

	"gorm.io/gorm"
)

// MessageDAO 封装 ChatMessage 相关的数据库操作
type MessageDAO struct {
	db *gorm.DB
}

// NewMessageDAO 创建 MessageDAO 实例
func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{db: db}
}

// WithDB 用于在事务（tx）中复用 DAO
func (dao *MessageDAO) WithDB(db *gorm.DB) *MessageDAO {
	if db == nil {
		return dao
	}
	return &MessageDAO{db: db}
}

// Create 创建消息
func (dao *MessageDAO) Create(msg *ChatMessage) error {
	return dao.db.Create(msg).Error
}

// FindByID 根据 (conversation_id, message_id) 查找消息
func (dao *MessageDAO) FindByID(conversationID, messageID string) (*ChatMessage, error) {
	var msg ChatMessage
	err := dao.db.Where("conversation_id = ? AND message_id = ?", conversationID, messageID).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindByConversation 获取会话消息列表（时间倒序）
func (dao *MessageDAO) FindByConversation(conversationID string, limit, offset int) ([]ChatMessage, error) {
	var messages []ChatMessage
	err := dao.db.Where("conversation_id = ?", conversationID).
		Order("timestamp_ms DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

// UpdateText 编辑消息内容（原地覆盖，不保留历史）
func (dao *MessageDAO) UpdateText(conversationID, messageID, text, editedBy string, editedAtMs int64) error {
	res := dao.db.Model(&ChatMessage{}).
		Where("conversation_id = ? AND message_id = ?", conversationID, messageID).
		Updates(map[string]any{
			"text":         text,
			"edited_at_ms": editedAtMs,
			"edited_by":    editedBy,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateReactions 回写整个 reactions 列。
// 读-改-写，不是 CAS：两个用户对同一 emoji 并发 toggle 时最后写入者胜出。
func (dao *MessageDAO) UpdateReactions(msg *ChatMessage) error {
	return dao.db.Model(&ChatMessage{}).
		Where("conversation_id = ? AND message_id = ?", msg.ConversationID, msg.MessageID).
		Update("reactions", msg.Reactions).Error
}

// Delete 物理删除消息
func (dao *MessageDAO) Delete(conversationID, messageID string) error {
	res := dao.db.Where("conversation_id = ? AND message_id = ?", conversationID, messageID).
		Delete(&ChatMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
