package service

import "testing"

// TestCanonicalDMKeySymmetric 任意顺序生成的 DM key 必须一致
func TestCanonicalDMKeySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"alice", "bob"},
		{"z", "a"},
		{"user-10", "user-2"}, // 字典序，不是数值序
	}
	for _, p := range pairs {
		ab := CanonicalDMKey(p[0], p[1])
		ba := CanonicalDMKey(p[1], p[0])
		if ab != ba {
			t.Errorf("CanonicalDMKey(%q,%q)=%q != CanonicalDMKey(%q,%q)=%q", p[0], p[1], ab, p[1], p[0], ba)
		}
	}

	if got := CanonicalDMKey("u2", "u1"); got != "dm#u1___u2" {
		t.Errorf("CanonicalDMKey(u2,u1) = %q, want dm#u1___u2", got)
	}

	// 去空白
	if got := CanonicalDMKey(" u1 ", "u2"); got != "dm#u1___u2" {
		t.Errorf("CanonicalDMKey with spaces = %q, want dm#u1___u2", got)
	}
}

// TestOtherParticipant 从 key 里取对端
func TestOtherParticipant(t *testing.T) {
	key := CanonicalDMKey("u1", "u2")

	if got := OtherParticipant(key, "u1"); got != "u2" {
		t.Errorf("OtherParticipant(%q, u1) = %q, want u2", key, got)
	}
	if got := OtherParticipant(key, "u2"); got != "u1" {
		t.Errorf("OtherParticipant(%q, u2) = %q, want u1", key, got)
	}

	// 段数不对：尽力而为，返回空
	if got := OtherParticipant("dm#only-one", "only-one"); got != "" {
		t.Errorf("OtherParticipant malformed = %q, want empty", got)
	}
}

func TestNormalizeConversationKey(t *testing.T) {
	t.Run("DMPeerUserID", func(t *testing.T) {
		// 客户端直接传对端 userID
		if got := NormalizeConversationKey(ConversationTypeDM, "u2", "u1"); got != "dm#u1___u2" {
			t.Errorf("got %q, want dm#u1___u2", got)
		}
	})

	t.Run("DMUnsortedKey", func(t *testing.T) {
		// 传入乱序 key，重排成规范 key
		if got := NormalizeConversationKey(ConversationTypeDM, "dm#u2___u1", "u1"); got != "dm#u1___u2" {
			t.Errorf("got %q, want dm#u1___u2", got)
		}
	})

	t.Run("ProjectPassthrough", func(t *testing.T) {
		if got := NormalizeConversationKey(ConversationTypeProject, " p1 ", "u1"); got != "p1" {
			t.Errorf("got %q, want p1", got)
		}
	})
}
