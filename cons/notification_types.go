package cons

// 通知文案里使用的事件类型（notification.event_type 语义，拼在 dedupe key 里）
const (
	EventDirectMessage  = "dm.message"        // 新私信
	EventTimelineUpdate = "timeline.updated"  // 项目时间线变更
	EventProjectUpdate  = "project.updated"   // 项目信息变更
	EventBudgetUpdate   = "project.budget"    // 项目预算变更
)

// DedupeSeparator dedupe key 各段之间的分隔符。
// 约定格式：<事件类型>#<作用域ID>#<细分ID/时间桶>，调用方拼好整串传入。
const DedupeSeparator = "#"
