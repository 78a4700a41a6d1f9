package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	realtime "github.com/jazbelrose/mylg-realtime"
)

func main() {
	// 1. 初始化数据库连接
	dsn := "root:password@tcp(127.0.0.1:3306)/realtime_db?charset=utf8mb4&parseTime=True&loc=Local"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("数据库连接失败:", err)
	}

	// 2. 初始化 Redis（注册表 + token 鉴权）
	rdb := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
	})

	// 3. 初始化 Realtime Engine（单例模式，全局只需调用一次）
	engine := realtime.NewEngine(
		realtime.WithDB(db),
		realtime.WithRDB(rdb),
		realtime.WithTablePrefix("rt_"), // 自定义表前缀
		realtime.WithDedupeWindow(10),
	)

	// 4. 创建 Gin 路由
	r := gin.Default()

	// 设置 CORS（如果需要）
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// 5. API 路由组（鉴权走 token：Authorization: Bearer 或 ?token=）
	api := r.Group("/api/v1")
	api.Use(engine.GinAuthMiddleware(nil))
	engine.RegisterGinRoutes(api)

	// WebSocket 连接：ws://localhost:8080/api/v1/ws?token=xxx
	log.Println("listening on :8080")
	if err := r.Run(":8080"); err != nil {
		log.Fatal(err)
	}
}
