package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func notifCols() []string {
	return []string{"user_id", "sort_key", "timestamp_ms", "dedupe_id", "message", "read", "sender_id", "project_id"}
}

func TestNotificationService_Notify_CreatesAndPushes(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewNotificationService(&Service{DB: db, TablePrefix: "rt_"})

	// 窗口里没有同 dedupe -> 落库
	mock.ExpectQuery("SELECT \\* FROM `rt_notification`").WillReturnRows(sqlmock.NewRows(notifCols()))
	mock.ExpectExec("INSERT INTO `rt_notification`").WillReturnResult(sqlmock.NewResult(0, 1))

	row, err := svc.Notify(context.Background(), "bob", "New message from alice",
		"dm.message#dm#alice___bob#msg#1", 1700000000123, "alice", "")
	if err != nil {
		t.Fatalf("Notify err: %v", err)
	}
	if row == nil {
		t.Fatalf("expected created notification")
	}
	if !strings.HasPrefix(row.SortKey, "1700000000123#") {
		t.Fatalf("expected zero-padded ts prefix, got %q", row.SortKey)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationService_Notify_DuplicateInWindowSuppressed(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewNotificationService(&Service{DB: db, TablePrefix: "rt_"})

	dedupe := "timeline.updated#proj-1#ev-1"
	mock.ExpectQuery("SELECT \\* FROM `rt_notification`").WillReturnRows(
		sqlmock.NewRows(notifCols()).
			AddRow("bob", "1700000000000#a", int64(1700000000000), dedupe, "Timeline updated", false, "alice", "proj-1"))
	// 没有 INSERT 期望：命中窗口直接跳过

	row, err := svc.Notify(context.Background(), "bob", "Timeline updated", dedupe, 0, "alice", "proj-1")
	if err != nil {
		t.Fatalf("Notify err: %v", err)
	}
	if row != nil {
		t.Fatalf("expected suppression, got %#v", row)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationService_Notify_RequiresUserAndDedupe(t *testing.T) {
	db, _, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewNotificationService(&Service{DB: db, TablePrefix: "rt_"})

	if _, err := svc.Notify(context.Background(), "", "m", "d", 0, "", ""); err == nil {
		t.Fatalf("expected error for empty user")
	}
	if _, err := svc.Notify(context.Background(), "bob", "m", "", 0, "", ""); err == nil {
		t.Fatalf("expected error for empty dedupe")
	}
}

func TestNotificationService_NotifyProjectTeam(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	base := &Service{DB: db, TablePrefix: "rt_"}
	base.TeamResolver = func(ctx context.Context, projectID string) ([]string, error) {
		return []string{"alice", "bob", "bob"}, nil // 故意带重复
	}
	svc := NewNotificationService(base)

	// 去重后三个收件人：alice、bob、再补上发送者 carol；每人一查一插
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT \\* FROM `rt_notification`").WillReturnRows(sqlmock.NewRows(notifCols()))
		mock.ExpectExec("INSERT INTO `rt_notification`").WillReturnResult(sqlmock.NewResult(0, 1))
	}

	err := svc.NotifyProjectTeam(context.Background(), "proj-1", "Budget updated",
		BudgetDedupeID("proj-1", 1700000000000), "carol")
	if err != nil {
		t.Fatalf("NotifyProjectTeam err: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationService_DeleteByDedupeID(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewNotificationService(&Service{DB: db, TablePrefix: "rt_"})

	dedupe := "dm.message#dm#alice___bob#msg#1"
	mock.ExpectQuery("SELECT user_id, sort_key FROM `rt_notification`").WillReturnRows(
		sqlmock.NewRows([]string{"user_id", "sort_key"}).
			AddRow("bob", "1700000000000#a").
			AddRow("bob", "1700000000000#b"))
	mock.ExpectExec("DELETE FROM `rt_notification`").WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := svc.DeleteByDedupeID(context.Background(), dedupe)
	if err != nil {
		t.Fatalf("DeleteByDedupeID err: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestNotificationService_DeleteByDedupeID_NoHitsIsNoop(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	svc := NewNotificationService(&Service{DB: db, TablePrefix: "rt_"})

	mock.ExpectQuery("SELECT user_id, sort_key FROM `rt_notification`").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "sort_key"}))

	removed, err := svc.DeleteByDedupeID(context.Background(), "nothing#here")
	if err != nil {
		t.Fatalf("DeleteByDedupeID err: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected 0 removed, got %d", removed)
	}
}

func TestSortKeyOrdering(t *testing.T) {
	// 零填充保证字符串序即时间序
	early := newSortKey(999)
	late := newSortKey(1700000000000)
	if !(early < late) {
		t.Fatalf("expected %q < %q", early, late)
	}
}

func TestDedupeIDBuilders(t *testing.T) {
	if got := DMDedupeID("dm#a___b", "msg#1"); got != "dm.message#dm#a___b#msg#1" {
		t.Fatalf("DMDedupeID = %q", got)
	}
	if got := TimelineDedupeID("proj-1", "ev-9"); got != "timeline.updated#proj-1#ev-9" {
		t.Fatalf("TimelineDedupeID = %q", got)
	}

	// 同一个 5 分钟桶内的预算事件共享 dedupe key
	base := int64(1700000000000)
	inBucket := base + 2*60*1000
	nextBucket := base + 6*60*1000
	if BudgetDedupeID("p", base) != BudgetDedupeID("p", inBucket) {
		t.Fatalf("expected same bucket key")
	}
	if BudgetDedupeID("p", base) == BudgetDedupeID("p", nextBucket) {
		t.Fatalf("expected different bucket key")
	}

	want := fmt.Sprintf("project.updated#p#%d", base/(5*60*1000))
	if got := ProjectDedupeID("p", base); got != want {
		t.Fatalf("ProjectDedupeID = %q, want %q", got, want)
	}
}
