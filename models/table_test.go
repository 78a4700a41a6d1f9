package models

import (
	"testing"

	"gorm.io/datatypes"
)

func TestDeriveMessageID(t *testing.T) {
	if got := DeriveMessageID(1700000000123); got != "msg#1700000000123" {
		t.Fatalf("DeriveMessageID = %q", got)
	}
	// 确定性：同一时间戳永远同一个 ID
	if DeriveMessageID(42) != DeriveMessageID(42) {
		t.Fatalf("expected deterministic id")
	}
}

func TestChatMessage_ReactionMapRoundTrip(t *testing.T) {
	var m ChatMessage

	// 空列返回空 map，不报错
	got, err := m.ReactionMap()
	if err != nil {
		t.Fatalf("ReactionMap empty err: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}

	in := map[string][]string{"👍": {"alice", "bob"}, "🔥": {"carol"}}
	if err := m.SetReactionMap(in); err != nil {
		t.Fatalf("SetReactionMap err: %v", err)
	}
	out, err := m.ReactionMap()
	if err != nil {
		t.Fatalf("ReactionMap err: %v", err)
	}
	if len(out["👍"]) != 2 || out["👍"][0] != "alice" {
		t.Fatalf("unexpected round trip: %v", out)
	}
}

func TestChatMessage_ReactionMap_BadJSON(t *testing.T) {
	m := ChatMessage{Reactions: datatypes.JSON("{not json")}
	if _, err := m.ReactionMap(); err == nil {
		t.Fatalf("expected error for bad json")
	}
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		ChatMessage{}.TableName():   "rt_message",
		ThreadSummary{}.TableName(): "rt_thread_summary",
		Notification{}.TableName():  "rt_notification",
		ProjectMember{}.TableName(): "rt_project_member",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("table name %q, want %q", got, want)
		}
	}
}
