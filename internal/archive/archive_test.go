package archive

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"offline-chat/internal/message"
)

func TestStoreInsertsMessage(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	archive := New(db)

	msg := message.New("alice", "bob", "archive me")
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(msg.ID, "alice", "bob", "text", "archive me", false, msg.Timestamp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := archive.Store(context.Background(), msg); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryScansRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	archive := New(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "sender_id", "receiver_id", "kind", "content", "encrypted", "timestamp"}).
		AddRow("m2", "bob", "alice", "text", "newer", false, now).
		AddRow("m1", "alice", "bob", "text", "older", true, now.Add(-time.Minute))
	mock.ExpectQuery("SELECT id, sender_id, receiver_id").
		WithArgs("alice", 200).
		WillReturnRows(rows)

	records, err := archive.History(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 2 || records[0].ID != "m2" || !records[1].Encrypted {
		t.Fatalf("unexpected records %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDisabledArchiveIsNoOp(t *testing.T) {
	archive := New(nil)
	if archive.Enabled() {
		t.Fatal("expected disabled archive")
	}
	if err := archive.Store(context.Background(), message.New("a", "b", "x")); err != nil {
		t.Fatalf("Store on disabled archive: %v", err)
	}
	records, err := archive.History(context.Background(), "a", 10)
	if err != nil || records != nil {
		t.Fatalf("History on disabled archive: %v %v", records, err)
	}
}
