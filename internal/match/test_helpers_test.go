package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// testNow is the fixed instant all deterministic clock tests pivot on.
var testNow = time.Unix(1750000000, 0).UTC()

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustQuizID(t *testing.T, value string) QuizID {
	t.Helper()
	id, err := NewQuizID(value)
	if err != nil {
		t.Fatalf("unexpected quiz id error: %v", err)
	}
	return id
}

func mustMatchID(t *testing.T, value string) MatchID {
	t.Helper()
	id, err := NewMatchID(value)
	if err != nil {
		t.Fatalf("unexpected match id error: %v", err)
	}
	return id
}

type staticIDGenerator struct {
	mu    sync.Mutex
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:quizmatch_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Match{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, ids []string, clock func() time.Time) (Store, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	store, err := NewStore(StoreConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

// stubPresence answers liveness from a fixed map of last-activity instants.
type stubPresence struct {
	lastActivity map[string]time.Time
}

func (p *stubPresence) LastActivity(_ context.Context, userID string) (time.Time, bool, error) {
	at, ok := p.lastActivity[userID]
	return at, ok, nil
}

// stubQuizzes answers existence from a fixed allow set.
type stubQuizzes struct {
	known map[string]bool
}

func (q *stubQuizzes) Exists(_ context.Context, quizID string) (bool, error) {
	return q.known[quizID], nil
}
