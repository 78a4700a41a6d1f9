package service

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestAuthService_ExtractToken_BearerFirst(t *testing.T) {
	a := NewAuthService(nil)

	req := &http.Request{Header: make(http.Header), URL: &url.URL{RawQuery: "token=q"}}
	req.Header.Set("Authorization", "Bearer headerToken")

	got := a.ExtractToken(req)
	if got != "headerToken" {
		t.Fatalf("expected headerToken, got %q", got)
	}
}

func TestAuthService_ExtractToken_QueryFallback(t *testing.T) {
	a := NewAuthService(nil)

	u, _ := url.Parse("http://example.com/path?token=queryToken")
	req := &http.Request{Header: make(http.Header), URL: u}

	got := a.ExtractToken(req)
	if got != "queryToken" {
		t.Fatalf("expected queryToken, got %q", got)
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := NewAuthService(rdb)
	ctx := context.Background()

	if err := a.token.StoreToken(ctx, "tok", "alice", time.Hour); err != nil {
		t.Fatalf("StoreToken err: %v", err)
	}

	uid, err := a.Authenticate(ctx, "tok")
	if err != nil || uid != "alice" {
		t.Fatalf("Authenticate = %q, %v", uid, err)
	}

	if _, err := a.Authenticate(ctx, ""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := a.Authenticate(ctx, "unknown"); err == nil {
		t.Fatalf("expected error for unknown token")
	}
}
