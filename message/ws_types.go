package message

// 入站 kind（闭合枚举，对应 Decode 的 switch）
const (
	KindSendMessage           = "sendMessage"
	KindEditMessage           = "editMessage"
	KindDeleteMessage         = "deleteMessage"
	KindToggleReaction        = "toggleReaction"
	KindMarkRead              = "markRead"
	KindSetActiveConversation = "setActiveConversation"
	KindPresenceLookup        = "presenceLookup"
	KindFetchNotifications    = "fetchNotifications"
	KindTimelineUpdate        = "timelineUpdate"
	KindTimelineDelete        = "timelineDelete"
	KindTimelineUpdated       = "timelineUpdated"
	KindProjectUpdated        = "projectUpdated"
	KindBudgetUpdated         = "budgetUpdated"
	KindLineLocked            = "lineLocked"
	KindLineUnlocked          = "lineUnlocked"
)

// 出站帧 kind（server -> client）
const (
	FrameNewMessage         = "newMessage"
	FrameMessageEdited      = "messageEdited"
	FrameMessageDeleted     = "messageDeleted"
	FrameReactionUpdated    = "reactionUpdated"
	FrameReadStatus         = "readStatus"
	FramePresenceSnapshot   = "presenceSnapshot"
	FrameNotification       = "notification"
	FrameNotificationsBatch = "notificationsBatch"
	FrameError              = "error"
)

// Attachment 附件描述。只是元数据转运，二进制在外部 blob 存储里。
type Attachment struct {
	FileName    string `json:"fileName,omitempty"`
	FileKey     string `json:"fileKey"` // blob 存储里的对象 key（删除消息时按它清理）
	URL         string `json:"url,omitempty"`
	Size        int64  `json:"size,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}
