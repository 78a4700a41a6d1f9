package repository

import (
	"github.com/jazbelrose/mylg-realtime/models"
	"gorm.io/gorm"
)

// NotificationDAO 封装 Notification 相关的数据库操作
type NotificationDAO struct {
	db *gorm.DB
}

func NewNotificationDAO(db *gorm.DB) *NotificationDAO {
	return &NotificationDAO{db: db}
}

// WithDB 用于在事务（tx）中复用 DAO
func (dao *NotificationDAO) WithDB(db *gorm.DB) *NotificationDAO {
	if db == nil {
		return dao
	}
	return &NotificationDAO{db: db}
}

// Create 创建通知
func (dao *NotificationDAO) Create(n *models.Notification) error {
	return dao.db.Create(n).Error
}

// RecentForUser 取用户最近 k 条通知（sort_key 倒序）。
// 去重窗口只看这 k 条：全表扫对每次事件的检查太贵，代价是高频发送方偶尔出现重复通知。
func (dao *NotificationDAO) RecentForUser(userID string, k int) ([]models.Notification, error) {
	var rows []models.Notification
	err := dao.db.Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Order("sort_key DESC").
		Limit(k).
		Find(&rows).Error
	return rows, err
}

// NotificationKey (user_id, sort_key) 主键对，用于反查后的批量删除。
type NotificationKey struct {
	UserID  string
	SortKey string
}

// FindKeysByDedupeID 反查：dedupe_id -> 所有 (user_id, sort_key)。
func (dao *NotificationDAO) FindKeysByDedupeID(dedupeID string) ([]NotificationKey, error) {
	type row struct {
		UserID  string
		SortKey string
	}
	var rows []row
	if err := dao.db.Model(&models.Notification{}).
		Select("user_id, sort_key").
		Where("dedupe_id = ?", dedupeID).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]NotificationKey, 0, len(rows))
	for _, r := range rows {
		out = append(out, NotificationKey{UserID: r.UserID, SortKey: r.SortKey})
	}
	return out, nil
}

// DeleteByKeys 按主键对批量删除，调用方负责分批。
func (dao *NotificationDAO) DeleteByKeys(keys []NotificationKey) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	tuples := make([][]any, 0, len(keys))
	for _, k := range keys {
		tuples = append(tuples, []any{k.UserID, k.SortKey})
	}
	res := dao.db.Where("(user_id, sort_key) IN ?", tuples).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// ListForUser 拉取用户通知（sort_key 倒序，游标为上一页最小 sort_key）。
func (dao *NotificationDAO) ListForUser(userID string, cursor string, limit int) ([]models.Notification, error) {
	q := dao.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if cursor != "" {
		q = q.Where("sort_key < ?", cursor)
	}
	var rows []models.Notification
	err := q.Order("sort_key DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkRead 批量标记已读
func (dao *NotificationDAO) MarkRead(userID string, sortKeys []string) error {
	if len(sortKeys) == 0 {
		return nil
	}
	return dao.db.Model(&models.Notification{}).
		Where("user_id = ? AND sort_key IN ?", userID, sortKeys).
		Update("read", true).Error
}
