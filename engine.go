package realtime

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/jazbelrose/mylg-realtime/middleware"
	"github.com/jazbelrose/mylg-realtime/service"
)

type RealtimeEngine struct {
	config *Config

	RegistryService *service.RegistryService
	FanoutService   *service.FanoutService
	MsgService      *service.MessageService
	NotifyService   *service.NotificationService
	AuthService     *service.AuthService // 鉴权服务
	WsServer        *WsServer
}

var (
	Instance *RealtimeEngine
	once     sync.Once
)

// NewEngine 创建实例
// 使用选项模式传入配置，Option回调
func NewEngine(opts ...Option) *RealtimeEngine {
	once.Do(func() {
		c := &Config{
			TablePrefix: "rt_", // Default
		}
		for _, opt := range opts {
			opt(c)
		}

		Instance = &RealtimeEngine{config: c}

		// 初始化 WS
		Instance.WsServer = NewWsServer()
		go Instance.WsServer.Run()

		// 初始化基础 Service，注入 Push 回调
		baseService := &service.Service{
			DB:           c.DB,
			RDB:          c.RDB,
			TablePrefix:  c.TablePrefix,
			Push:         Instance.WsServer.SendToConnection, // 注入 WebSocket 投递函数
			BlobDeleter:  c.BlobDeleter,
			TeamResolver: c.TeamResolver,
			DedupeWindow: c.DedupeWindow,
			Debug:        c.Service.Debug,
		}

		// 初始化各个 Service
		baseService.Registry = service.NewRegistryService(baseService)
		baseService.Fanout = service.NewFanoutService(baseService)
		baseService.Notify = service.NewNotificationService(baseService)

		Instance.RegistryService = baseService.Registry
		Instance.FanoutService = baseService.Fanout
		Instance.NotifyService = baseService.Notify
		Instance.MsgService = service.NewMessageService(baseService)
		Instance.AuthService = service.NewAuthService(c.RDB) // 初始化鉴权服务

		// 迁移表
		if err := Instance.AutoMigrate(); err != nil {
			log.Printf("AutoMigrate failed: %v", err)
		}

		// 连接生命周期 -> Redis 注册表
		Instance.WsServer.onConnect = func(client *Client) {
			if err := Instance.RegistryService.Register(context.Background(), client.ConnID, client.UserID); err != nil {
				log.Printf("registry register failed conn=%s: %v", client.ConnID, err)
			}
		}
		Instance.WsServer.onDisconnect = func(client *Client) {
			if err := Instance.RegistryService.Prune(context.Background(), client.ConnID); err != nil {
				log.Printf("registry prune failed conn=%s: %v", client.ConnID, err)
			}
		}

		// 绑定 WS 消息分发
		Instance.bindWsHandlersOnMessage()
	})

	return Instance
}

// ServeWS 处理 WebSocket 请求，userID 由调用方鉴权后传入。
func (c *RealtimeEngine) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	_, _ = c.WsServer.ServeWS(w, r, userID)
}

// ServeWSWithAuth 先走 token 鉴权（Bearer 或 ?token=）再升级 WebSocket。
func (c *RealtimeEngine) ServeWSWithAuth(w http.ResponseWriter, r *http.Request) {
	uid, _, err := c.AuthService.AuthenticateRequest(r.Context(), r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	c.ServeWS(w, r, uid)
}

// GinAuthMiddleware 返回配置好的 Gin 鉴权中间件
// 使用 RealtimeEngine 内部的 AuthService 和 Redis 配置
//
// 使用示例:
//
//	engine := realtime.NewEngine(...)
//	r := gin.Default()
//	r.Use(engine.GinAuthMiddleware(nil)) // 使用默认配置
func (c *RealtimeEngine) GinAuthMiddleware(opt *middleware.AuthOptions) gin.HandlerFunc {
	return middleware.GinAuthMiddleware(c.AuthService, opt)
}
