package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ErrUnknownConnection 连接没有归属用户（未注册或已被 prune）。
// SetActiveConversation 的前置条件不满足时返回，调用方不应重试。
var ErrUnknownConnection = errors.New("unknown connection")

// RegistryService 连接注册表（Redis 实现）。
// 记录每个活跃推送连接的归属用户和当前正在看的会话，供 Fanout 按会话/按用户枚举。
//
// key 结构：
//   - rt:registry:conn:<connID>  hash {user_id, conversation_id}
//   - rt:registry:user:<userID>  set(connID)   多设备
//   - rt:registry:conv:<convKey> set(connID)   当前正在看该会话的连接
//   - rt:registry:conns          set(connID)   全量索引（presence 快照用）
//
// 查询落空（没人在线/没人在看）返回空列表，不是错误。
type RegistryService struct {
	*Service
}

func NewRegistryService(s *Service) *RegistryService {
	return &RegistryService{Service: s}
}

const registryKeyPrefix = "rt:registry:"

func connHashKey(connID string) string {
	return registryKeyPrefix + "conn:" + connID
}

func userSetKey(userID string) string {
	return registryKeyPrefix + "user:" + userID
}

func convSetKey(conversationID string) string {
	return registryKeyPrefix + "conv:" + strings.TrimSpace(conversationID)
}

func connIndexKey() string {
	return registryKeyPrefix + "conns"
}

// Register 注册一个新连接及其归属用户。
func (s *RegistryService) Register(ctx context.Context, connID, userID string) error {
	if connID == "" || userID == "" {
		return fmt.Errorf("connID and userID are required")
	}
	pipe := s.RDB.TxPipeline()
	pipe.HSet(ctx, connHashKey(connID), "user_id", userID)
	pipe.SAdd(ctx, userSetKey(userID), connID)
	pipe.SAdd(ctx, connIndexKey(), connID)
	_, err := pipe.Exec(ctx)
	return err
}

// SetActiveConversation 更新连接当前正在看的会话。
// 前置条件：连接已注册且有归属用户；不满足说明连接已失效，直接报错不重试。
func (s *RegistryService) SetActiveConversation(ctx context.Context, connID, conversationID string) error {
	uid, err := s.RDB.HGet(ctx, connHashKey(connID), "user_id").Result()
	if err == redis.Nil || uid == "" {
		return ErrUnknownConnection
	}
	if err != nil {
		return err
	}

	old, err := s.RDB.HGet(ctx, connHashKey(connID), "conversation_id").Result()
	if err != nil && err != redis.Nil {
		return err
	}

	conv := strings.TrimSpace(conversationID)
	pipe := s.RDB.TxPipeline()
	if old != "" && old != conv {
		pipe.SRem(ctx, convSetKey(old), connID)
	}
	pipe.HSet(ctx, connHashKey(connID), "conversation_id", conv)
	if conv != "" {
		pipe.SAdd(ctx, convSetKey(conv), connID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ConnectionsForConversation 枚举当前正在看某会话的连接。
func (s *RegistryService) ConnectionsForConversation(ctx context.Context, conversationID string) ([]string, error) {
	ids, err := s.RDB.SMembers(ctx, convSetKey(conversationID)).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// ConnectionsForUser 枚举某用户的全部连接（多设备）。
func (s *RegistryService) ConnectionsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.RDB.SMembers(ctx, userSetKey(userID)).Result()
	if err == redis.Nil {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// OwnerOf 查连接归属用户；未注册返回 ErrUnknownConnection。
func (s *RegistryService) OwnerOf(ctx context.Context, connID string) (string, error) {
	uid, err := s.RDB.HGet(ctx, connHashKey(connID), "user_id").Result()
	if err == redis.Nil || uid == "" {
		return "", ErrUnknownConnection
	}
	if err != nil {
		return "", err
	}
	return uid, nil
}

// Prune 移除一个连接的全部注册信息。
// 只由 Fanout 在投递收到“对端已不存在”信号后调用（或显式断连时）；对未知连接是无害 no-op。
func (s *RegistryService) Prune(ctx context.Context, connID string) error {
	fields, err := s.RDB.HGetAll(ctx, connHashKey(connID)).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	pipe := s.RDB.TxPipeline()
	if uid := fields["user_id"]; uid != "" {
		pipe.SRem(ctx, userSetKey(uid), connID)
	}
	if conv := fields["conversation_id"]; conv != "" {
		pipe.SRem(ctx, convSetKey(conv), connID)
	}
	pipe.SRem(ctx, connIndexKey(), connID)
	pipe.Del(ctx, connHashKey(connID))
	_, err = pipe.Exec(ctx)
	return err
}

// Snapshot 在线用户快照：全量连接去重后的 userID 列表（presenceLookup 用）。
func (s *RegistryService) Snapshot(ctx context.Context) ([]string, error) {
	connIDs, err := s.RDB.SMembers(ctx, connIndexKey()).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(connIDs) == 0 {
		return []string{}, nil
	}

	pipe := s.RDB.Pipeline()
	cmds := make([]*redis.StringCmd, len(connIDs))
	for i, id := range connIDs {
		cmds[i] = pipe.HGet(ctx, connHashKey(id), "user_id")
	}
	// 个别 conn hash 可能在并发 prune 下刚好消失，Exec 返回 redis.Nil 不算失败
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(connIDs))
	users := make([]string, 0, len(connIDs))
	for _, cmd := range cmds {
		uid, err := cmd.Result()
		if err != nil || uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		users = append(users, uid)
	}
	sort.Strings(users)
	return users, nil
}
