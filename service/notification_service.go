package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jazbelrose/mylg-realtime/cons"
	"github.com/jazbelrose/mylg-realtime/message"
	"github.com/jazbelrose/mylg-realtime/models"
	"github.com/jazbelrose/mylg-realtime/repository"
)

// NotificationService 通知引擎：落库 + 有界窗口去重 + 用户级 WS 推送 + 按 dedupe key 清理。
// 约定：先落库，再尽力推送；离线/新设备通过 fetchNotifications 或 HTTP 拉取补齐。
type NotificationService struct {
	*Service
	dao *repository.NotificationDAO
}

func NewNotificationService(s *Service) *NotificationService {
	return &NotificationService{Service: s, dao: repository.NewNotificationDAO(s.DB)}
}

// deleteBatchSize 反查删除时每批的主键对数量
const deleteBatchSize = 25

// budgetDedupeBucketMs 预算类事件的去重时间桶宽度（5 分钟）
const budgetDedupeBucketMs = 5 * 60 * 1000

// DMDedupeID 私信通知的 dedupe key（删除消息时用同一个 key 清理通知）。
func DMDedupeID(conversationID, messageID string) string {
	return cons.EventDirectMessage + cons.DedupeSeparator + conversationID + cons.DedupeSeparator + messageID
}

// TimelineDedupeID 时间线事件的 dedupe key。
func TimelineDedupeID(projectID, eventID string) string {
	return cons.EventTimelineUpdate + cons.DedupeSeparator + projectID + cons.DedupeSeparator + eventID
}

// ProjectDedupeID 项目信息变更的 dedupe key（按时间桶聚合）。
func ProjectDedupeID(projectID string, tsMs int64) string {
	return cons.EventProjectUpdate + cons.DedupeSeparator + projectID + cons.DedupeSeparator + fmt.Sprintf("%d", tsMs/budgetDedupeBucketMs)
}

// BudgetDedupeID 预算变更的 dedupe key（按时间桶聚合：同桶内多次编辑只出一条通知）。
func BudgetDedupeID(projectID string, tsMs int64) string {
	return cons.EventBudgetUpdate + cons.DedupeSeparator + projectID + cons.DedupeSeparator + fmt.Sprintf("%d", tsMs/budgetDedupeBucketMs)
}

// newSortKey 生成分区内排序键：零填充毫秒时间戳 + uuid 去碰撞。
// 零填充保证字符串序即时间序。
func newSortKey(tsMs int64) string {
	return fmt.Sprintf("%013d#%s", tsMs, uuid.New().String())
}

// NotificationDTO 推送/拉取共用的通知结构
type NotificationDTO struct {
	UserID      string `json:"userId"`
	SortKey     string `json:"sortKey"`
	TimestampMs int64  `json:"timestamp"`
	DedupeID    string `json:"dedupeId"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
	SenderID    string `json:"senderId,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
}

func toNotificationDTO(n *models.Notification) NotificationDTO {
	return NotificationDTO{
		UserID:      n.UserID,
		SortKey:     n.SortKey,
		TimestampMs: n.TimestampMs,
		DedupeID:    n.DedupeID,
		Message:     n.Message,
		Read:        n.Read,
		SenderID:    n.SenderID,
		ProjectID:   n.ProjectID,
	}
}

// Notify 给单个用户发一条持久化通知。
// 去重只查该用户最近 K 条（有界窗口）：命中 dedupeID 则静默跳过，算成功。
// 这是刻意的取舍——全表去重对每次事件的检查太贵；不要“顺手修成”全量扫描。
// 落库成功后做用户级 fanout（先持久化，再推送）。
func (s *NotificationService) Notify(ctx context.Context, userID, msgText, dedupeID string, tsMs int64, senderID, projectID string) (*models.Notification, error) {
	if userID == "" || dedupeID == "" {
		return nil, fmt.Errorf("userID and dedupeID are required")
	}
	if tsMs == 0 {
		tsMs = time.Now().UnixMilli()
	}

	recent, err := s.dao.RecentForUser(userID, s.dedupeWindowOrDefault())
	if err != nil {
		return nil, err
	}
	for _, n := range recent {
		if n.DedupeID == dedupeID {
			if s.Debug {
				log.Printf("notify: duplicate %s for %s suppressed", dedupeID, userID)
			}
			return nil, nil
		}
	}

	row := &models.Notification{
		UserID:      userID,
		SortKey:     newSortKey(tsMs),
		TimestampMs: tsMs,
		DedupeID:    dedupeID,
		Message:     msgText,
		SenderID:    senderID,
		ProjectID:   projectID,
		CreatedAt:   time.Now(),
	}
	if err := s.dao.Create(row); err != nil {
		return nil, err
	}

	s.pushNotification(ctx, row)
	return row, nil
}

func (s *NotificationService) pushNotification(ctx context.Context, n *models.Notification) {
	if s.Fanout == nil {
		return
	}
	frame := struct {
		Kind string          `json:"kind"`
		Data NotificationDTO `json:"data"`
	}{
		Kind: message.FrameNotification,
		Data: toNotificationDTO(n),
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	// 推送失败不影响主流程，通知已经落库
	if err := s.Fanout.BroadcastToUser(ctx, n.UserID, b); err != nil {
		log.Printf("notify: push to %s failed: %v", n.UserID, err)
	}
}

// NotifyProjectTeam 项目范围事件：解析团队成员（外部协作方），补上发送者，去重收件人，
// 然后用同一个 dedupeID + 同一个时间戳逐人 Notify。
// 每个收件人独立去重——同一逻辑事件每人至多一条，但收件人之间没有原子的“通知组”。
func (s *NotificationService) NotifyProjectTeam(ctx context.Context, projectID, msgText, dedupeID, senderID string) error {
	if projectID == "" {
		return fmt.Errorf("projectID is required")
	}

	resolver := s.TeamResolver
	if resolver == nil {
		resolver = s.defaultTeamResolver
	}
	members, err := resolver(ctx, projectID)
	if err != nil {
		return fmt.Errorf("resolve team for %s: %w", projectID, err)
	}

	seen := make(map[string]struct{}, len(members)+1)
	recipients := make([]string, 0, len(members)+1)
	for _, uid := range members {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		recipients = append(recipients, uid)
	}
	if senderID != "" {
		if _, ok := seen[senderID]; !ok {
			recipients = append(recipients, senderID)
		}
	}

	tsMs := time.Now().UnixMilli()
	for _, uid := range recipients {
		if _, err := s.Notify(ctx, uid, msgText, dedupeID, tsMs, senderID, projectID); err != nil {
			// 单个收件人失败不影响其他人
			log.Printf("notify: team notify %s/%s failed: %v", projectID, uid, err)
		}
	}
	return nil
}

// defaultTeamResolver 默认走 rt_project_member 表。
func (s *NotificationService) defaultTeamResolver(ctx context.Context, projectID string) ([]string, error) {
	var userIDs []string
	err := s.DB.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("project_id = ?", projectID).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}

// DeleteByDedupeID 按 dedupe key 清理已扇出的通知（消息/事件被删除时调用）。
// 反查 -> 分批删。没有命中是良性 no-op，记日志不报错。
func (s *NotificationService) DeleteByDedupeID(ctx context.Context, dedupeID string) (int64, error) {
	keys, err := s.dao.FindKeysByDedupeID(dedupeID)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		log.Printf("notify: no notifications for dedupe %s", dedupeID)
		return 0, nil
	}

	var removed int64
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		n, err := s.dao.DeleteByKeys(keys[start:end])
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// RecentForUser 最近通知批量（fetchNotifications 推送用）
func (s *NotificationService) RecentForUser(userID string, limit int) ([]NotificationDTO, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.dao.RecentForUser(userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]NotificationDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toNotificationDTO(&rows[i]))
	}
	return out, nil
}

// ListUserNotifications 拉取用户通知（HTTP，游标分页）
func (s *NotificationService) ListUserNotifications(userID, cursor string, limit int) ([]NotificationDTO, string, error) {
	if userID == "" {
		return nil, "", fmt.Errorf("user_id is required")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.dao.ListForUser(userID, cursor, limit)
	if err != nil {
		return nil, "", err
	}

	out := make([]NotificationDTO, 0, len(rows))
	nextCursor := ""
	for i := range rows {
		out = append(out, toNotificationDTO(&rows[i]))
		nextCursor = rows[i].SortKey
	}
	return out, nextCursor, nil
}

// MarkReadBySortKeys 批量标记已读
func (s *NotificationService) MarkReadBySortKeys(userID string, sortKeys []string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}
	return s.dao.MarkRead(userID, sortKeys)
}
