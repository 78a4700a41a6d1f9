package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := &Service{RDB: rdb, TablePrefix: "rt_"}
	s.Registry = NewRegistryService(s)
	s.Fanout = NewFanoutService(s)
	return s
}

func TestRegistryService_RegisterAndLookup(t *testing.T) {
	s := newRedisService(t)
	ctx := context.Background()

	if err := s.Registry.Register(ctx, "conn-1", "alice"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if err := s.Registry.Register(ctx, "conn-2", "alice"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if err := s.Registry.Register(ctx, "conn-3", "bob"); err != nil {
		t.Fatalf("Register err: %v", err)
	}

	conns, err := s.Registry.ConnectionsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ConnectionsForUser err: %v", err)
	}
	if !reflect.DeepEqual(conns, []string{"conn-1", "conn-2"}) {
		t.Fatalf("expected alice conns [conn-1 conn-2], got %v", conns)
	}

	uid, err := s.Registry.OwnerOf(ctx, "conn-3")
	if err != nil || uid != "bob" {
		t.Fatalf("OwnerOf = %q, %v", uid, err)
	}
}

func TestRegistryService_SetActiveConversation(t *testing.T) {
	s := newRedisService(t)
	ctx := context.Background()

	if err := s.Registry.Register(ctx, "conn-1", "alice"); err != nil {
		t.Fatalf("Register err: %v", err)
	}

	if err := s.Registry.SetActiveConversation(ctx, "conn-1", "dm#alice___bob"); err != nil {
		t.Fatalf("SetActiveConversation err: %v", err)
	}
	conns, err := s.Registry.ConnectionsForConversation(ctx, "dm#alice___bob")
	if err != nil {
		t.Fatalf("ConnectionsForConversation err: %v", err)
	}
	if !reflect.DeepEqual(conns, []string{"conn-1"}) {
		t.Fatalf("expected [conn-1], got %v", conns)
	}

	// 切会话：旧会话集合要清掉
	if err := s.Registry.SetActiveConversation(ctx, "conn-1", "proj-9"); err != nil {
		t.Fatalf("SetActiveConversation 2 err: %v", err)
	}
	old, _ := s.Registry.ConnectionsForConversation(ctx, "dm#alice___bob")
	if len(old) != 0 {
		t.Fatalf("expected old conversation emptied, got %v", old)
	}
	cur, _ := s.Registry.ConnectionsForConversation(ctx, "proj-9")
	if !reflect.DeepEqual(cur, []string{"conn-1"}) {
		t.Fatalf("expected [conn-1] in proj-9, got %v", cur)
	}
}

func TestRegistryService_SetActiveConversation_UnknownConn(t *testing.T) {
	s := newRedisService(t)

	err := s.Registry.SetActiveConversation(context.Background(), "ghost", "proj-1")
	if !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestRegistryService_Prune(t *testing.T) {
	s := newRedisService(t)
	ctx := context.Background()

	_ = s.Registry.Register(ctx, "conn-1", "alice")
	_ = s.Registry.SetActiveConversation(ctx, "conn-1", "proj-1")

	if err := s.Registry.Prune(ctx, "conn-1"); err != nil {
		t.Fatalf("Prune err: %v", err)
	}

	if conns, _ := s.Registry.ConnectionsForUser(ctx, "alice"); len(conns) != 0 {
		t.Fatalf("expected no conns for alice, got %v", conns)
	}
	if conns, _ := s.Registry.ConnectionsForConversation(ctx, "proj-1"); len(conns) != 0 {
		t.Fatalf("expected no viewers for proj-1, got %v", conns)
	}
	if _, err := s.Registry.OwnerOf(ctx, "conn-1"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection after prune, got %v", err)
	}

	// 未知连接的 prune 是无害 no-op
	if err := s.Registry.Prune(ctx, "ghost"); err != nil {
		t.Fatalf("Prune ghost err: %v", err)
	}
}

func TestRegistryService_Snapshot(t *testing.T) {
	s := newRedisService(t)
	ctx := context.Background()

	_ = s.Registry.Register(ctx, "conn-1", "alice")
	_ = s.Registry.Register(ctx, "conn-2", "alice")
	_ = s.Registry.Register(ctx, "conn-3", "bob")

	users, err := s.Registry.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot err: %v", err)
	}
	if !reflect.DeepEqual(users, []string{"alice", "bob"}) {
		t.Fatalf("expected [alice bob], got %v", users)
	}
}

func TestRegistryService_EmptyLookupsAreNotErrors(t *testing.T) {
	s := newRedisService(t)
	ctx := context.Background()

	conns, err := s.Registry.ConnectionsForConversation(ctx, "nobody-watching")
	if err != nil {
		t.Fatalf("ConnectionsForConversation err: %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("expected empty, got %v", conns)
	}

	conns, err = s.Registry.ConnectionsForUser(ctx, "offline-user")
	if err != nil {
		t.Fatalf("ConnectionsForUser err: %v", err)
	}
	if len(conns) != 0 {
		t.Fatalf("expected empty, got %v", conns)
	}
}
