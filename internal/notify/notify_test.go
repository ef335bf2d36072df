package notify

import (
	"context"
	"testing"
	"time"

	"github.com/altpaynet/regreport/internal/db"
	"github.com/altpaynet/regreport/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	delivered []Summary
}

func (r *recordingNotifier) Notify(_ context.Context, summary Summary) error {
	r.delivered = append(r.delivered, summary)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestDispatchDeliversAndRecords(t *testing.T) {
	conn := openTestDB(t)
	sink := &recordingNotifier{}
	dispatcher := NewDispatcher(conn, sink, time.Hour)

	sent, errDispatch := dispatcher.Dispatch(context.Background(), Summary{
		Kind: "report", Subject: "Q1 2025 generated", Body: "42 transactions",
	})
	if errDispatch != nil {
		t.Fatalf("dispatch: %v", errDispatch)
	}
	if !sent || len(sink.delivered) != 1 {
		t.Fatalf("sent=%v delivered=%d", sent, len(sink.delivered))
	}

	var entry models.NotificationLog
	if errFind := conn.First(&entry).Error; errFind != nil {
		t.Fatalf("find log: %v", errFind)
	}
	if entry.Key != "report:Q1 2025 generated" {
		t.Fatalf("key = %q", entry.Key)
	}
}

func TestDispatchThrottlesRepeats(t *testing.T) {
	conn := openTestDB(t)
	sink := &recordingNotifier{}
	dispatcher := NewDispatcher(conn, sink, time.Hour)
	summary := Summary{Kind: "match", Subject: "batch complete"}

	for i := 0; i < 3; i++ {
		if _, errDispatch := dispatcher.Dispatch(context.Background(), summary); errDispatch != nil {
			t.Fatalf("dispatch %d: %v", i, errDispatch)
		}
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("delivered = %d, want throttled to 1", len(sink.delivered))
	}

	// A different subject is a different key and is not throttled.
	sent, errOther := dispatcher.Dispatch(context.Background(), Summary{Kind: "match", Subject: "other"})
	if errOther != nil {
		t.Fatalf("dispatch other: %v", errOther)
	}
	if !sent {
		t.Fatalf("distinct key must not be throttled")
	}
}

func TestDispatchWindowExpiry(t *testing.T) {
	conn := openTestDB(t)
	sink := &recordingNotifier{}
	dispatcher := NewDispatcher(conn, sink, time.Hour)

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	dispatcher.now = func() time.Time { return base }
	summary := Summary{Kind: "report", Subject: "Q1 2025 generated"}

	if _, errFirst := dispatcher.Dispatch(context.Background(), summary); errFirst != nil {
		t.Fatalf("first: %v", errFirst)
	}

	dispatcher.now = func() time.Time { return base.Add(2 * time.Hour) }
	sent, errSecond := dispatcher.Dispatch(context.Background(), summary)
	if errSecond != nil {
		t.Fatalf("second: %v", errSecond)
	}
	if !sent || len(sink.delivered) != 2 {
		t.Fatalf("sent=%v delivered=%d", sent, len(sink.delivered))
	}
}

func TestDispatchZeroWindowNeverThrottles(t *testing.T) {
	conn := openTestDB(t)
	sink := &recordingNotifier{}
	dispatcher := NewDispatcher(conn, sink, 0)
	summary := Summary{Kind: "match", Subject: "batch complete"}

	for i := 0; i < 2; i++ {
		if _, errDispatch := dispatcher.Dispatch(context.Background(), summary); errDispatch != nil {
			t.Fatalf("dispatch %d: %v", i, errDispatch)
		}
	}
	if len(sink.delivered) != 2 {
		t.Fatalf("delivered = %d", len(sink.delivered))
	}
}
