package service

import (
	"sort"
	"strings"
)

// 会话 key 规则：
// - 私聊（DM）：对两个 userID 做字典序排序后拼接，保证 A->B 和 B->A 得到同一个 key。
// - 项目/群会话：外部传入稳定 key（通常就是 projectID），不做任何规范化。
const (
	// DMKeyPrefix 私聊会话 key 前缀
	DMKeyPrefix = "dm#"
	// DMKeySeparator 私聊会话 key 中两个 userID 的分隔符
	DMKeySeparator = "___"
)

// 会话类型（conversation_type）
const (
	ConversationTypeDM      = "dm"
	ConversationTypeProject = "project"
)

// CanonicalDMKey 生成私聊会话的规范 key。
// 对 {A,B} 无序对，从任意一侧解析都得到同一个 key。
func CanonicalDMKey(userA, userB string) string {
	a := strings.TrimSpace(userA)
	b := strings.TrimSpace(userB)
	pair := []string{a, b}
	sort.Strings(pair)
	return DMKeyPrefix + pair[0] + DMKeySeparator + pair[1]
}

// OtherParticipant 从私聊会话 key 中取出对端 userID。
// 只对格式正确的两段式 key 负责；段数不对属于调用方违约，这里尽力 split 不额外防御。
func OtherParticipant(dmKey, knownUserID string) string {
	seg := strings.TrimPrefix(dmKey, DMKeyPrefix)
	parts := strings.SplitN(seg, DMKeySeparator, 2)
	if len(parts) < 2 {
		return ""
	}
	if parts[0] == knownUserID {
		return parts[1]
	}
	return parts[0]
}

// IsDMKey 判断是否为私聊会话 key。
func IsDMKey(conversationID string) bool {
	return strings.HasPrefix(strings.TrimSpace(conversationID), DMKeyPrefix)
}

// NormalizeConversationKey 入站会话 ID 规范化：
// - DM：客户端可能传对端 userID，也可能直接传（可能乱序的）dm key，这里统一重排成规范 key。
// - 项目会话：原样去空白返回。
func NormalizeConversationKey(conversationType, conversationID, senderID string) string {
	cid := strings.TrimSpace(conversationID)
	if conversationType != ConversationTypeDM {
		return cid
	}
	if IsDMKey(cid) {
		seg := strings.TrimPrefix(cid, DMKeyPrefix)
		parts := strings.SplitN(seg, DMKeySeparator, 2)
		if len(parts) == 2 {
			return CanonicalDMKey(parts[0], parts[1])
		}
		return cid
	}
	// 传的是对端 userID
	return CanonicalDMKey(senderID, cid)
}
