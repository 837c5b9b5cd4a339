package presence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testNow = time.Unix(1750000000, 0).UTC()

func newTestTracker(t *testing.T, clock func() time.Time) (*Tracker, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:presence_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	tracker, err := NewTracker(TrackerConfig{
		Database: db,
		Window:   5 * time.Minute,
		Clock:    clock,
	})
	if err != nil {
		t.Fatalf("failed to construct tracker: %v", err)
	}
	return tracker, db
}

func TestTouchCreatesAndRefreshesRecord(t *testing.T) {
	current := testNow
	tracker, db := newTestTracker(t, func() time.Time { return current })
	ctx := context.Background()

	if err := tracker.Touch(ctx, "alice"); err != nil {
		t.Fatalf("unexpected touch error: %v", err)
	}

	lastActivity, found, err := tracker.LastActivity(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("expected presence record: found=%v err=%v", found, err)
	}
	if !lastActivity.Equal(testNow) {
		t.Fatalf("unexpected last activity %v", lastActivity)
	}

	current = testNow.Add(2 * time.Minute)
	if err := tracker.Touch(ctx, "alice"); err != nil {
		t.Fatalf("unexpected second touch error: %v", err)
	}

	var count int64
	if err := db.Model(&Record{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count records: %v", err)
	}
	if count != 1 {
		t.Fatalf("touch must upsert a single record, got %d", count)
	}

	lastActivity, found, err = tracker.LastActivity(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("expected refreshed record: found=%v err=%v", found, err)
	}
	if !lastActivity.Equal(current) {
		t.Fatalf("expected refreshed activity %v, got %v", current, lastActivity)
	}
}

func TestTouchRejectsEmptyUser(t *testing.T) {
	tracker, _ := newTestTracker(t, func() time.Time { return testNow })
	if err := tracker.Touch(context.Background(), ""); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected invalid user id error, got %v", err)
	}
}

func TestLastActivityReportsMissingRecords(t *testing.T) {
	tracker, _ := newTestTracker(t, func() time.Time { return testNow })

	_, found, err := tracker.LastActivity(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected no record for unseen user")
	}
}

func TestIsOnlineWindowArithmetic(t *testing.T) {
	tests := []struct {
		name        string
		lastSeenAgo time.Duration
		want        bool
	}{
		{"just-active", time.Second, true},
		{"inside-window", 4 * time.Minute, true},
		{"exact-window", 5 * time.Minute, false},
		{"long-idle", 6 * time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			touchAt := testNow.Add(-tt.lastSeenAgo)
			current := touchAt
			tracker, _ := newTestTracker(t, func() time.Time { return current })
			ctx := context.Background()

			if err := tracker.Touch(ctx, "alice"); err != nil {
				t.Fatalf("unexpected touch error: %v", err)
			}
			current = testNow

			online, err := tracker.IsOnline(ctx, "alice")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if online != tt.want {
				t.Fatalf("IsOnline after %v = %v, want %v", tt.lastSeenAgo, online, tt.want)
			}
		})
	}

	tracker, _ := newTestTracker(t, func() time.Time { return testNow })
	online, err := tracker.IsOnline(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if online {
		t.Fatalf("unseen user must be offline")
	}
}
