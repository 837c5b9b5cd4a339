package presence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("presence: database connection required")

	// ErrInvalidUserID indicates an empty user identifier.
	ErrInvalidUserID = errors.New("presence: invalid user id")
)

// Record stores the last observed activity instant for a user. Any
// authenticated request refreshes it; online status is derived from recency.
type Record struct {
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	LastActivityAt time.Time `gorm:"column:last_activity_at;not null"`
}

// TableName exposes the table backing presence records.
func (Record) TableName() string {
	return "presence_records"
}

// TrackerConfig describes the dependencies for presence tracking.
type TrackerConfig struct {
	Database *gorm.DB
	Window   time.Duration
	Clock    func() time.Time
}

// Tracker maintains last-seen timestamps and answers liveness queries. It is
// the system's presence oracle: consumers only ever read from it.
type Tracker struct {
	db     *gorm.DB
	window time.Duration
	clock  func() time.Time
}

// NewTracker constructs the presence tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	window := cfg.Window
	if window <= 0 {
		window = 5 * time.Minute
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		db:     cfg.Database,
		window: window,
		clock:  clock,
	}, nil
}

// Touch stamps the user as active now, creating the record on first sight.
func (t *Tracker) Touch(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	record := Record{
		UserID:         userID,
		LastActivityAt: t.clock().UTC(),
	}
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_activity_at"}),
		}).
		Create(&record).Error
}

// LastActivity reports when the user was last seen. ok is false when the user
// has never been observed.
func (t *Tracker) LastActivity(ctx context.Context, userID string) (time.Time, bool, error) {
	if userID == "" {
		return time.Time{}, false, ErrInvalidUserID
	}
	var record Record
	err := t.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return record.LastActivityAt, true, nil
}

// IsOnline reports whether the user's last activity falls within the window.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	lastActivity, found, err := t.LastActivity(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return lastActivity.After(t.clock().UTC().Add(-t.window)), nil
}
