package realtime

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jazbelrose/mylg-realtime/service"
)

const (
	// Time 写入超时时间
	writeWait = 10 * time.Second

	// Time pong超时时间
	pongWait = 60 * time.Second

	// Send 对应的ping 必须小于pong
	pingPeriod = (pongWait * 9) / 10

	// Maximum 对等端允许消息大小
	maxMessageSize = 32 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for SDK
	},
}

// Client ws和hub的连接
// 说明：Client 代表“某个具体 websocket 连接”。同一用户多设备会有多个 Client，
// 每个 Client 有独立的 ConnID，路由以 ConnID 为单位。
type Client struct {
	hub *WsServer

	// 🔗链接
	conn *websocket.Conn

	// 消息缓冲区
	send chan []byte

	// ConnID 连接唯一标识（注册表里的 key）
	ConnID string

	// UserID 和用户关联
	UserID string
}

// readPump 将消息从client (websocket 连接) 到hub管理。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("readPump error: %v", err)
			}
			break
		}
		c.hub.handleMessage(c, message)
	}
}

// writePump 将消息从hub管理写到具体的client (websocket 连接)。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// 一次性发送管道剩余全部的消息，不重新走message, ok := <-c.send，提升性能
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("writePump 写入ping失败")
				return
			}
		}
	}
}

type WsServer struct {
	// ConnID -> Client（路由以连接为单位，多设备天然支持）
	conns map[string]*Client

	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// 回调处理消息
	onMessage func(client *Client, msg []byte)

	// 连接生命周期回调（engine 绑定：同步到 Redis 注册表）
	onConnect    func(client *Client)
	onDisconnect func(client *Client)
}

func NewWsServer() *WsServer {
	return &WsServer{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		conns:      make(map[string]*Client),
	}
}

func (h *WsServer) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.conns[client.ConnID] = client
			h.mu.Unlock()
			if h.onConnect != nil {
				h.onConnect(client)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.conns[client.ConnID]; ok && cur == client {
				delete(h.conns, client.ConnID)
				close(client.send)
			}
			h.mu.Unlock()
			if h.onDisconnect != nil {
				h.onDisconnect(client)
			}
		}
	}
}

func (h *WsServer) handleMessage(client *Client, msg []byte) {
	if h.onMessage != nil {
		h.onMessage(client, msg)
	}
}
func (h *WsServer) SetOnMessage(fn func(client *Client, msg []byte)) {
	h.onMessage = fn
}

// SendToConnection 按 ConnID 投递一条消息。
// 连接不存在或缓冲区已满（慢客户端）时返回 ErrConnectionGone，
// 由路由层负责把该连接从注册表剔除。
func (h *WsServer) SendToConnection(connID string, msg []byte) error {
	h.mu.RLock()
	client, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return service.ErrConnectionGone
	}

	select {
	case client.send <- msg:
		return nil
	default:
		// 缓冲区满，视为断连，交给调用方 prune
		return service.ErrConnectionGone
	}
}

// ServeWS 处理ws的请求，userID 由调用方鉴权后传入。
// 返回分配的 ConnID。
func (h *WsServer) ServeWS(w http.ResponseWriter, r *http.Request, userID string) (string, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return "", err
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		ConnID: uuid.NewString(),
		UserID: userID,
	}
	client.hub.register <- client
	log.Println("注册进去: ", client.ConnID, client.UserID)

	go client.writePump()
	go client.readPump()

	return client.ConnID, nil
}
