package service

import (
	"context"
	"errors"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// ErrConnectionGone 表示对端连接已经不存在（永久性），
// Fanout 收到这个错误才会触发 prune；其它错误一律按瞬时错误处理、只记日志。
var ErrConnectionGone = errors.New("connection gone")

// Service 基础服务，包含数据库和配置
type Service struct {
	DB          *gorm.DB
	RDB         *redis.Client
	TablePrefix string

	// Push 向指定连接投递一帧 payload 的回调。
	// 由 engine 注入（底层是 WebSocket hub），避免 service 层反向依赖 hub。
	// 对端永久不可达时返回 ErrConnectionGone。
	Push func(connID string, payload []byte) error

	// Registry 连接注册表（Redis）
	Registry *RegistryService

	// Fanout 扇出路由
	Fanout *FanoutService

	// Notify 通知引擎（落库 + 去重 + 用户级 WS 推送 + HTTP 拉取）
	Notify *NotificationService

	// BlobDeleter 删除附件对象的外部协作方（按 key 删）。
	// 为 nil 时跳过附件清理，只记日志。
	BlobDeleter func(ctx context.Context, key string) error

	// TeamResolver 项目团队成员查询。默认实现走 rt_project_member 表，
	// 上游系统自己维护成员关系的话可以整个换掉。
	TeamResolver func(ctx context.Context, projectID string) ([]string, error)

	// DedupeWindow 通知去重窗口大小（只查最近 K 条），<=0 时用默认值。
	DedupeWindow int

	Debug bool
}

// dedupeWindowOrDefault 去重窗口，默认 10。
func (s *Service) dedupeWindowOrDefault() int {
	if s.DedupeWindow > 0 {
		return s.DedupeWindow
	}
	return 10
}
