package service

import (
	"context"
	"errors"
	"log"
	"sync"
)

// FanoutService 扇出路由：把一份 payload 投递给一组连接。
//
// 两个入口刻意分开：
//   - BroadcastToConversation：只发给“正在看这个会话”的连接（打字/已读态这类）。
//   - BroadcastToUser：发给用户的全部设备，无论在看什么（新私信提醒这类）。
//
// 每个接收方独立投递、互不阻塞；单个失败不影响整体。
// 只有收到 ErrConnectionGone 才把该连接安排 prune（投递轮结束后批量做），瞬时错误只记日志。
type FanoutService struct {
	*Service
}

func NewFanoutService(s *Service) *FanoutService {
	return &FanoutService{Service: s}
}

// maxConcurrentPush 单次广播的投递并发上限
const maxConcurrentPush = 16

// BroadcastToConversation 投递给所有正在看 conversationID 的连接。
// 没有任何连接在看不是错误：事件已经落库，没人听而已。
func (s *FanoutService) BroadcastToConversation(ctx context.Context, conversationID string, payload []byte) error {
	connIDs, err := s.Registry.ConnectionsForConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(connIDs) == 0 {
		log.Printf("fanout: no viewers for conversation %s", conversationID)
		return nil
	}
	s.deliverAll(ctx, connIDs, payload)
	return nil
}

// BroadcastToUser 投递给 userID 的全部连接（多设备都收到一份）。
func (s *FanoutService) BroadcastToUser(ctx context.Context, userID string, payload []byte) error {
	connIDs, err := s.Registry.ConnectionsForUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(connIDs) == 0 {
		log.Printf("fanout: no connections for user %s", userID)
		return nil
	}
	s.deliverAll(ctx, connIDs, payload)
	return nil
}

// BroadcastToUsers 对一组用户逐个调用 BroadcastToUser（收件人已去重由调用方保证）。
func (s *FanoutService) BroadcastToUsers(ctx context.Context, userIDs []string, payload []byte) {
	for _, uid := range userIDs {
		if err := s.BroadcastToUser(ctx, uid, payload); err != nil {
			log.Printf("fanout: broadcast to user %s failed: %v", uid, err)
		}
	}
}

// deliverAll 并发投递（fire-off-all / await-all），收集 gone 的连接在收尾时统一 prune。
// 接收方之间没有顺序保证；单连接内部由底层 hub 保序。
func (s *FanoutService) deliverAll(ctx context.Context, connIDs []string, payload []byte) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		gone []string
	)
	sem := make(chan struct{}, maxConcurrentPush)

	for _, connID := range connIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			err := s.Push(id, payload)
			if err == nil {
				return
			}
			if errors.Is(err, ErrConnectionGone) {
				mu.Lock()
				gone = append(gone, id)
				mu.Unlock()
				return
			}
			// 瞬时错误：不 prune，不中断其它接收方
			log.Printf("fanout: push to %s failed: %v", id, err)
		}(connID)
	}
	wg.Wait()

	for _, id := range gone {
		if err := s.Registry.Prune(ctx, id); err != nil {
			log.Printf("fanout: prune %s failed: %v", id, err)
			continue
		}
		log.Printf("fanout: pruned gone connection %s", id)
	}
}
