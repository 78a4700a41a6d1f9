package realtime

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jazbelrose/mylg-realtime/response"
)

/*
	HTTP 拉取面：WS 是推送通道，历史消息/通知列表走这里。
	更建议自己写 HTTP 的处理，然后调用对应的 service；这里提供的是开箱可用的一套。
*/

func ginUserID(ctx *gin.Context) (string, bool) {
	uidAny, exists := ctx.Get("user_id")
	if !exists {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return "", false
	}
	uid, _ := uidAny.(string)
	if uid == "" {
		ctx.JSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "user_id not found"))
		return "", false
	}
	return uid, true
}

// GinHandleListNotifications 拉取通知（sort_key 游标分页，新的在前）
func (c *RealtimeEngine) GinHandleListNotifications(ctx *gin.Context) {
	uid, ok := ginUserID(ctx)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	cursor := ctx.Query("cursor")

	items, nextCursor, err := c.NotifyService.ListUserNotifications(uid, cursor, limit)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}

	ctx.JSON(http.StatusOK, response.Success(map[string]any{
		"items":       items,
		"next_cursor": nextCursor,
	}))
}

type MarkNotificationsReadReq struct {
	SortKeys []string `json:"sort_keys" binding:"required"`
}

// GinHandleMarkNotificationsRead 标记通知已读
func (c *RealtimeEngine) GinHandleMarkNotificationsRead(ctx *gin.Context) {
	uid, ok := ginUserID(ctx)
	if !ok {
		return
	}

	var req MarkNotificationsReadReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	if err := c.NotifyService.MarkReadBySortKeys(uid, req.SortKeys); err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}

	ctx.JSON(http.StatusOK, response.Success(nil))
}

// GinHandleListThreads 我的私聊线程摘要（按最后消息时间倒序）
func (c *RealtimeEngine) GinHandleListThreads(ctx *gin.Context) {
	uid, ok := ginUserID(ctx)
	if !ok {
		return
	}

	threads, err := c.MsgService.ListThreads(uid)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(map[string]any{"items": threads}))
}

type MarkThreadReadReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Read           *bool  `json:"read" binding:"required"`
}

// GinHandleMarkThreadRead 标记线程摘要已读/未读
func (c *RealtimeEngine) GinHandleMarkThreadRead(ctx *gin.Context) {
	uid, ok := ginUserID(ctx)
	if !ok {
		return
	}

	var req MarkThreadReadReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, err.Error()))
		return
	}

	if err := c.MsgService.MarkThreadRead(uid, req.ConversationID, *req.Read); err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(nil))
}

// GinHandleConversationMessages 某会话的历史消息（倒序分页）
func (c *RealtimeEngine) GinHandleConversationMessages(ctx *gin.Context) {
	if _, ok := ginUserID(ctx); !ok {
		return
	}

	convID := ctx.Query("conversation_id")
	if convID == "" {
		ctx.JSON(http.StatusBadRequest, response.Error(response.CodeParamError, "conversation_id is required"))
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	msgs, err := c.MsgService.ListConversationMessages(convID, limit, offset)
	if err != nil {
		ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, err.Error()))
		return
	}
	ctx.JSON(http.StatusOK, response.Success(map[string]any{"items": msgs}))
}

// GinHandleWS WebSocket 升级入口（走过鉴权中间件之后）
func (c *RealtimeEngine) GinHandleWS(ctx *gin.Context) {
	uid, ok := ginUserID(ctx)
	if !ok {
		return
	}
	c.ServeWS(ctx.Writer, ctx.Request, uid)
}

// RegisterGinRoutes 一次性挂上全部内置接口（调用方自己决定分组和中间件）。
func (c *RealtimeEngine) RegisterGinRoutes(rg *gin.RouterGroup) {
	rg.GET("/notification/list", c.GinHandleListNotifications)
	rg.POST("/notification/read", c.GinHandleMarkNotificationsRead)
	rg.GET("/thread/list", c.GinHandleListThreads)
	rg.POST("/thread/read", c.GinHandleMarkThreadRead)
	rg.GET("/message/history", c.GinHandleConversationMessages)
	rg.GET("/ws", c.GinHandleWS)
}
