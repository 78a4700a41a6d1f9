package service

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jazbelrose/mylg-realtime/message"
	"github.com/jazbelrose/mylg-realtime/models"
)

func TestMessageService_Send_DM(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewMessageService(&Service{DB: db, TablePrefix: "rt_"})

	// 消息落库 + 双方摘要 upsert
	mock.ExpectExec("INSERT INTO `rt_message`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO `rt_thread_summary`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `rt_thread_summary`").WillReturnResult(sqlmock.NewResult(2, 1))

	msg, err := svc.Send(context.Background(), SendInput{
		ConversationType: ConversationTypeDM,
		ConversationID:   "bob", // 对端 userID 形式
		SenderID:         "alice",
		Text:             "hello",
		TimestampMs:      1700000000123,
		Attachment:       &message.Attachment{FileKey: "uploads/a.png", FileName: "a.png"},
	})
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if msg.ConversationID != "dm#alice___bob" {
		t.Fatalf("expected canonical dm key, got %q", msg.ConversationID)
	}
	if msg.MessageID != "msg#1700000000123" {
		t.Fatalf("expected derived message id, got %q", msg.MessageID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMessageService_Send_ProjectSkipsThreadSummaries(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewMessageService(&Service{DB: db, TablePrefix: "rt_"})

	// 项目会话只落消息，不写摘要
	mock.ExpectExec("INSERT INTO `rt_message`").WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := svc.Send(context.Background(), SendInput{
		ConversationType: ConversationTypeProject,
		ConversationID:   "proj-1",
		SenderID:         "alice",
		Text:             "update",
		TimestampMs:      1700000000456,
	})
	if err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if msg.ConversationID != "proj-1" {
		t.Fatalf("expected passthrough key, got %q", msg.ConversationID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMessageService_Edit(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewMessageService(&Service{DB: db, TablePrefix: "rt_"})

	mock.ExpectExec("UPDATE `rt_message`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `rt_message`").WillReturnRows(
		sqlmock.NewRows([]string{"conversation_id", "message_id", "sender_id", "text", "timestamp_ms", "edited_by"}).
			AddRow("proj-1", "msg#1", "alice", "fixed", int64(1700000000123), "alice"))

	edited, err := svc.Edit(context.Background(), "", "proj-1", "msg#1", "fixed", "alice")
	if err != nil {
		t.Fatalf("Edit err: %v", err)
	}
	if edited.Text != "fixed" {
		t.Fatalf("expected edited text, got %q", edited.Text)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMessageService_Edit_NotFound(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewMessageService(&Service{DB: db, TablePrefix: "rt_"})

	mock.ExpectExec("UPDATE `rt_message`").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := svc.Edit(context.Background(), "", "proj-1", "msg#gone", "x", "alice")
	if !models.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMessageService_ToggleReaction_AddThenRemove(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewMessageService(&Service{DB: db, TablePrefix: "rt_"})

	rowCols := []string{"conversation_id", "message_id", "sender_id", "text", "timestamp_ms", "reactions"}

	// add：用户不在集合里
	mock.ExpectQuery("SELECT \\* FROM `rt_message`").WillReturnRows(
		sqlmock.NewRows(rowCols).AddRow("proj-1", "msg#1", "alice", "hi", int64(1), []byte(`{"👍":["bob"]}`)))
	mock.ExpectExec("UPDATE `rt_message`").WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err := svc.ToggleReaction(context.Background(), "", "proj-1", "msg#1", "👍", "alice")
	if err != nil {
		t.Fatalf("ToggleReaction add err: %v", err)
	}
	m, _ := msg.ReactionMap()
	if got := m["👍"]; len(got) != 2 {
		t.Fatalf("expected 2 reactors, got %v", got)
	}

	// remove：最后一个用户退出，emoji key 整个删掉
	mock.ExpectQuery("SELECT \\* FROM `rt_message`").WillReturnRows(
		sqlmock.NewRows(rowCols).AddRow("proj-1", "msg#1", "alice", "hi", int64(1), []byte(`{"👍":["alice"]}`)))
	mock.ExpectExec("UPDATE `rt_message`").WillReturnResult(sqlmock.NewResult(0, 1))

	msg, err = svc.ToggleReaction(context.Background(), "", "proj-1", "msg#1", "👍", "alice")
	if err != nil {
		t.Fatalf("ToggleReaction remove err: %v", err)
	}
	m, _ = msg.ReactionMap()
	if _, ok := m["👍"]; ok {
		t.Fatalf("expected emoji key removed, got %v", m)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMessageService_Delete_CleansAttachment(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	var deletedKey string
	base := &Service{DB: db, TablePrefix: "rt_"}
	base.BlobDeleter = func(ctx context.Context, key string) error {
		deletedKey = key
		return nil
	}
	svc := NewMessageService(base)

	mock.ExpectQuery("SELECT \\* FROM `rt_message`").WillReturnRows(
		sqlmock.NewRows([]string{"conversation_id", "message_id", "sender_id", "attachment"}).
			AddRow("proj-1", "msg#1", "alice", []byte(`{"fileKey":"uploads/a.png"}`)))
	mock.ExpectExec("DELETE FROM `rt_message`").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Delete(context.Background(), "", "proj-1", "msg#1"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if deletedKey != "uploads/a.png" {
		t.Fatalf("expected blob delete for uploads/a.png, got %q", deletedKey)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMakeSnippet(t *testing.T) {
	long := strings.Repeat("字", snippetMax+50)
	got := makeSnippet(long)
	if len([]rune(got)) != snippetMax {
		t.Fatalf("expected %d runes, got %d", snippetMax, len([]rune(got)))
	}
	if makeSnippet("short") != "short" {
		t.Fatalf("short text should pass through")
	}
}
