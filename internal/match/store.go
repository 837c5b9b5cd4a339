package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	errStoreMissingDatabase   = errors.New("match: database handle is required")
	errStoreMissingIDProvider = errors.New("match: id provider is required")

	// ErrMatchNotStarted indicates a score write against a match that has no
	// second player yet.
	ErrMatchNotStarted = errors.New("match: match not started")
)

// IDProvider issues opaque match identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Store is the persistence contract the allocator and reaper depend on. All
// match mutation in the system goes through this interface; TryClaim is the
// only operation that must be atomic against concurrent writers.
type Store interface {
	// Get loads a match by identifier, or nil when none exists.
	Get(ctx context.Context, matchID MatchID) (*Match, error)
	// GetOpenMatch returns the user's waiting or in-progress match for the
	// quiz, or nil when the user has no open match there.
	GetOpenMatch(ctx context.Context, userID UserID, quizID QuizID) (*Match, error)
	// ListClaimable returns waiting matches for the quiz created after
	// minCreatedAt, excluding those owned by the given user, oldest first.
	ListClaimable(ctx context.Context, quizID QuizID, excluding UserID, minCreatedAt time.Time) ([]Match, error)
	// TryClaim atomically installs the claimant as player two iff the match
	// is still waiting with player two unset. It reports false when another
	// caller won the race or the match is gone; that is not an error.
	TryClaim(ctx context.Context, matchID MatchID, claimant UserID) (bool, error)
	// CreateWaiting opens a fresh waiting match owned by the user.
	CreateWaiting(ctx context.Context, userID UserID, quizID QuizID) (*Match, error)
	// Delete removes a waiting match. Deleting a match that was concurrently
	// claimed or already deleted is a no-op.
	Delete(ctx context.Context, matchID MatchID) error
	// DeleteWaitingOlderThan bulk-deletes waiting matches created at or
	// before the cutoff and reports how many were removed.
	DeleteWaitingOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// ListWaiting returns every waiting match, oldest first.
	ListWaiting(ctx context.Context) ([]Match, error)
	// WriteScore records one player's score and completes the match once both
	// scores are present.
	WriteScore(ctx context.Context, matchID MatchID, userID UserID, score int) (*Match, error)
	// CountByStatus reports how many matches exist per status.
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

// StoreConfig describes the dependencies for the GORM-backed store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

type gormStore struct {
	db    *gorm.DB
	clock func() time.Time
	ids   IDProvider
}

// NewStore constructs the GORM-backed match store.
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.Database == nil {
		return nil, errStoreMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errStoreMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &gormStore{
		db:    cfg.Database,
		clock: clock,
		ids:   cfg.IDProvider,
	}, nil
}

func (s *gormStore) Get(ctx context.Context, matchID MatchID) (*Match, error) {
	var m Match
	err := s.db.WithContext(ctx).
		Where("match_id = ?", matchID.String()).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *gormStore) GetOpenMatch(ctx context.Context, userID UserID, quizID QuizID) (*Match, error) {
	var m Match
	err := s.db.WithContext(ctx).
		Where("quiz_id = ? AND status IN ? AND (player1_id = ? OR player2_id = ?)",
			quizID.String(), []Status{StatusWaiting, StatusInProgress}, userID.String(), userID.String()).
		Order("created_at ASC").
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *gormStore) ListClaimable(ctx context.Context, quizID QuizID, excluding UserID, minCreatedAt time.Time) ([]Match, error) {
	var matches []Match
	err := s.db.WithContext(ctx).
		Where("quiz_id = ? AND status = ? AND player2_id IS NULL AND player1_id <> ? AND created_at > ?",
			quizID.String(), StatusWaiting, excluding.String(), minCreatedAt).
		Order("created_at ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// TryClaim is a single conditional update: the WHERE clause re-checks the
// unclaimed state at the storage layer, so losing a race shows up as zero
// affected rows rather than a double booking.
func (s *gormStore) TryClaim(ctx context.Context, matchID MatchID, claimant UserID) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&Match{}).
		Where("match_id = ? AND status = ? AND player2_id IS NULL AND player1_id <> ?",
			matchID.String(), StatusWaiting, claimant.String()).
		Updates(map[string]interface{}{
			"player2_id": claimant.String(),
			"status":     StatusInProgress,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *gormStore) CreateWaiting(ctx context.Context, userID UserID, quizID QuizID) (*Match, error) {
	matchID, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("match: generate id: %w", err)
	}
	m := Match{
		ID:        matchID,
		QuizID:    quizID.String(),
		Player1ID: userID.String(),
		Status:    StatusWaiting,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete only removes matches still waiting, so the loser of a concurrent
// claim-versus-prune race simply affects zero rows.
func (s *gormStore) Delete(ctx context.Context, matchID MatchID) error {
	return s.db.WithContext(ctx).
		Where("match_id = ? AND status = ?", matchID.String(), StatusWaiting).
		Delete(&Match{}).Error
}

func (s *gormStore) DeleteWaitingOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", StatusWaiting, cutoff).
		Delete(&Match{})
	return result.RowsAffected, result.Error
}

func (s *gormStore) ListWaiting(ctx context.Context) ([]Match, error) {
	var matches []Match
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusWaiting).
		Order("created_at ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *gormStore) WriteScore(ctx context.Context, matchID MatchID, userID UserID, score int) (*Match, error) {
	var updated Match
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Match
		err := tx.Where("match_id = ?", matchID.String()).Take(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMatchNotFound
		}
		if err != nil {
			return err
		}
		if !m.HasPlayer(userID) {
			return ErrNotParticipant
		}
		switch m.Status {
		case StatusCompleted:
			return ErrMatchCompleted
		case StatusWaiting:
			return ErrMatchNotStarted
		}

		recorded := score
		if m.Player1ID == userID.String() {
			m.Player1Score = &recorded
		} else {
			m.Player2Score = &recorded
		}
		if m.Player1Score != nil && m.Player2Score != nil {
			completedAt := s.clock().UTC()
			m.Status = StatusCompleted
			m.CompletedAt = &completedAt
		}
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		updated = m
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

func (s *gormStore) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	type statusCount struct {
		Status Status
		Total  int64
	}
	var rows []statusCount
	err := s.db.WithContext(ctx).
		Model(&Match{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
