package realtime

import (
	"context"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type ServiceConfig struct {
	Debug bool
}

type Config struct {
	DB          *gorm.DB
	RDB         *redis.Client
	TablePrefix string
	Service     ServiceConfig

	// DedupeWindow 通知去重窗口大小（最近 N 条），0 取默认值
	DedupeWindow int

	// BlobDeleter 删除附件对象（S3/OSS 等），nil 时跳过附件清理
	BlobDeleter func(ctx context.Context, key string) error

	// TeamResolver 项目 -> 成员列表。nil 时走 rt_project_member 表
	TeamResolver func(ctx context.Context, projectID string) ([]string, error)
}

type Option func(*Config)

func WithDB(db *gorm.DB) Option {
	return func(c *Config) {
		c.DB = db
	}
}

func WithTablePrefix(prefix string) Option {
	return func(c *Config) {
		c.TablePrefix = prefix
	}
}

func WithRDB(RDB *redis.Client) Option {
	return func(c *Config) {
		c.RDB = RDB
	}
}

func WithServiceDebug(debug bool) Option {
	return func(c *Config) {
		c.Service.Debug = debug
	}
}

// WithDedupeWindow 配置通知去重窗口（最近 N 条）。
func WithDedupeWindow(n int) Option {
	return func(c *Config) {
		c.DedupeWindow = n
	}
}

// WithBlobDeleter 配置附件对象删除回调。
func WithBlobDeleter(fn func(ctx context.Context, key string) error) Option {
	return func(c *Config) {
		c.BlobDeleter = fn
	}
}

// WithTeamResolver 配置项目成员解析回调。
func WithTeamResolver(fn func(ctx context.Context, projectID string) ([]string, error)) Option {
	return func(c *Config) {
		c.TeamResolver = fn
	}
}
