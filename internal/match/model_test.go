package match

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIdentifierValidation(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
		parse   func(string) error
	}{
		{"empty-user", "", ErrInvalidUserID, func(v string) error { _, err := NewUserID(v); return err }},
		{"blank-user", "   ", ErrInvalidUserID, func(v string) error { _, err := NewUserID(v); return err }},
		{"long-user", strings.Repeat("x", 191), ErrInvalidUserID, func(v string) error { _, err := NewUserID(v); return err }},
		{"empty-quiz", "", ErrInvalidQuizID, func(v string) error { _, err := NewQuizID(v); return err }},
		{"empty-match", "", ErrInvalidMatchID, func(v string) error { _, err := NewMatchID(v); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.parse(tt.value); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	userID, err := NewUserID("  alice  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID.String() != "alice" {
		t.Fatalf("expected trimmed identifier, got %q", userID.String())
	}
}

func TestStalenessPredicates(t *testing.T) {
	stale := Staleness{Window: 5 * time.Minute}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"well-within", testNow.Add(-time.Minute), false},
		{"just-inside", testNow.Add(-5*time.Minute + time.Second), false},
		{"exact-window", testNow.Add(-5 * time.Minute), true},
		{"past-window", testNow.Add(-6 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stale.ExpiredAge(tt.at, testNow); got != tt.want {
				t.Fatalf("ExpiredAge(%v) = %v, want %v", tt.at, got, tt.want)
			}
			if got := stale.IdleOwner(tt.at, true, testNow); got != tt.want {
				t.Fatalf("IdleOwner(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	if !stale.IdleOwner(time.Time{}, false, testNow) {
		t.Fatalf("a missing presence record must count as idle")
	}
}

func TestMatchHelpers(t *testing.T) {
	player2 := "bob"
	m := Match{ID: "m1", Player1ID: "alice"}

	if m.Paired() {
		t.Fatalf("match without player two must not be paired")
	}
	if !m.HasPlayer(UserID("alice")) || m.HasPlayer(UserID("bob")) {
		t.Fatalf("unexpected participant answers for %#v", m)
	}

	m.Player2ID = &player2
	if !m.Paired() {
		t.Fatalf("match with player two must be paired")
	}
	if !m.HasPlayer(UserID("bob")) {
		t.Fatalf("player two must count as participant")
	}
}
