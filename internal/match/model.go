package match

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the match lifecycle states.
type Status string

const (
	// StatusWaiting means player two has not yet claimed the match.
	StatusWaiting Status = "waiting"
	// StatusInProgress means both players are set and play is underway.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means both scores are recorded; the match is terminal.
	StatusCompleted Status = "completed"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("match: invalid user id")
	// ErrInvalidQuizID indicates that a quiz identifier is empty or exceeds storage bounds.
	ErrInvalidQuizID = errors.New("match: invalid quiz id")
	// ErrInvalidMatchID indicates that a match identifier is empty or exceeds storage bounds.
	ErrInvalidMatchID = errors.New("match: invalid match id")

	// ErrQuizNotFound indicates the referenced quiz does not exist.
	ErrQuizNotFound = errors.New("match: quiz not found")
	// ErrMatchNotFound indicates the referenced match does not exist.
	ErrMatchNotFound = errors.New("match: match not found")
	// ErrNotParticipant indicates the caller is not one of the match's players.
	ErrNotParticipant = errors.New("match: user is not a participant")
	// ErrMatchCompleted indicates a write against a terminal match.
	ErrMatchCompleted = errors.New("match: match already completed")
)

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// QuizID represents a validated quiz identifier.
type QuizID string

// NewQuizID validates raw input and returns a QuizID.
func NewQuizID(rawInput string) (QuizID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidQuizID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidQuizID, maxIdentifierLength)
	}
	return QuizID(trimmed), nil
}

// String returns the underlying string identifier.
func (id QuizID) String() string {
	return string(id)
}

// MatchID represents a validated match identifier.
type MatchID string

// NewMatchID validates raw input and returns a MatchID.
func NewMatchID(rawInput string) (MatchID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMatchID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidMatchID, maxIdentifierLength)
	}
	return MatchID(trimmed), nil
}

// String returns the underlying string identifier.
func (id MatchID) String() string {
	return string(id)
}

// Match models the persisted pairing record between one or two players for a quiz.
//
// A waiting match has Player2ID, both scores and CompletedAt unset. An
// in-progress match has Player2ID set and at least one score unset. A
// completed match has both scores and CompletedAt set and is immutable.
type Match struct {
	ID           string     `gorm:"column:match_id;primaryKey;size:36;not null"`
	QuizID       string     `gorm:"column:quiz_id;size:190;not null;index:idx_matches_quiz_scan,priority:1"`
	Player1ID    string     `gorm:"column:player1_id;size:190;not null;index:idx_matches_player1"`
	Player2ID    *string    `gorm:"column:player2_id;size:190;index:idx_matches_player2"`
	Player1Score *int       `gorm:"column:player1_score"`
	Player2Score *int       `gorm:"column:player2_score"`
	Status       Status     `gorm:"column:status;size:16;not null;index:idx_matches_quiz_scan,priority:2"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;index:idx_matches_quiz_scan,priority:3"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`
}

// TableName provides the explicit table binding for GORM.
func (Match) TableName() string {
	return "matches"
}

// HasPlayer reports whether the given user occupies either player slot.
func (m Match) HasPlayer(userID UserID) bool {
	if m.Player1ID == userID.String() {
		return true
	}
	return m.Player2ID != nil && *m.Player2ID == userID.String()
}

// Paired reports whether player two has claimed the match.
func (m Match) Paired() bool {
	return m.Player2ID != nil
}

// Staleness is the single predicate deciding whether a waiting match is still
// claimable. A waiting match is stale once its age reaches the window, or once
// its sole occupant has been inactive for at least the window (a missing
// presence record counts as inactive).
type Staleness struct {
	Window time.Duration
}

// Cutoff returns the oldest creation or activity instant still considered fresh.
func (s Staleness) Cutoff(now time.Time) time.Time {
	return now.Add(-s.Window)
}

// ExpiredAge reports whether a match created at the given instant has aged out.
func (s Staleness) ExpiredAge(createdAt, now time.Time) bool {
	return !createdAt.After(s.Cutoff(now))
}

// IdleOwner reports whether the owner's last activity is too old to keep the
// match claimable. ok is false when no presence record exists.
func (s Staleness) IdleOwner(lastActivity time.Time, ok bool, now time.Time) bool {
	if !ok {
		return true
	}
	return !lastActivity.After(s.Cutoff(now))
}
