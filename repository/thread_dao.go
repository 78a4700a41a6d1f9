package repository

import (
	"time"

	"github.com/jazbelrose/mylg-realtime/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThreadSummaryDAO 封装 ThreadSummary 相关的数据库操作
//
// 约定：
// - 只做数据访问（CRUD/查询封装），不做业务编排（fanout、通知等）。
// - 事务边界由 service 控制；如需在事务中执行，请使用 WithDB(tx)。
type ThreadSummaryDAO struct {
	db *gorm.DB
}

func NewThreadSummaryDAO(db *gorm.DB) *ThreadSummaryDAO {
	return &ThreadSummaryDAO{db: db}
}

// WithDB 用于在事务（tx）中复用 DAO
func (dao *ThreadSummaryDAO) WithDB(db *gorm.DB) *ThreadSummaryDAO {
	if db == nil {
		return dao
	}
	return &ThreadSummaryDAO{db: db}
}

// Upsert 单行幂等 upsert：(user_id, conversation_id) 冲突时刷新摘要字段。
// 一次消息发送会对两个参与者各调一次（发送方 read=true，接收方 read=false），
// 两次写入相互独立、不在同一事务里——中间崩溃会留下两行不一致，这是已接受的取舍。
func (dao *ThreadSummaryDAO) Upsert(userID, conversationID, otherUserID, snippet string, lastMsgTs int64, read bool, now time.Time) error {
	row := models.ThreadSummary{
		UserID:         userID,
		ConversationID: conversationID,
		OtherUserID:    otherUserID,
		Snippet:        snippet,
		LastMsgTs:      lastMsgTs,
		Read:           read,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return dao.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "conversation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"other_user_id", "snippet", "last_msg_ts", "read", "updated_at"}),
	}).Create(&row).Error
}

// ListByUser 获取用户的会话摘要列表（最新在前）
func (dao *ThreadSummaryDAO) ListByUser(userID string) ([]models.ThreadSummary, error) {
	var rows []models.ThreadSummary
	err := dao.db.Model(&models.ThreadSummary{}).
		Where("user_id = ?", userID).
		Order("last_msg_ts DESC").
		Find(&rows).Error
	return rows, err
}

// FindPair 取一个会话的两行摘要（测试/校验用）
func (dao *ThreadSummaryDAO) FindPair(conversationID string) ([]models.ThreadSummary, error) {
	var rows []models.ThreadSummary
	err := dao.db.Model(&models.ThreadSummary{}).
		Where("conversation_id = ?", conversationID).
		Order("user_id ASC").
		Find(&rows).Error
	return rows, err
}

// SetRead 设置用户自己那行的已读标记
func (dao *ThreadSummaryDAO) SetRead(userID, conversationID string, read bool, now time.Time) error {
	updates := map[string]any{"read": read}
	if !now.IsZero() {
		updates["updated_at"] = now
	}
	return dao.db.Model(&models.ThreadSummary{}).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Updates(updates).Error
}
