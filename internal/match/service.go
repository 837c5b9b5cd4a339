package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingStore       = errors.New("match store is required")
	errMissingPresence    = errors.New("presence oracle is required")
	errMissingQuizChecker = errors.New("quiz checker is required")
	noOpLogger            = zap.NewNop()
)

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code exposes the machine-readable operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew   = "match.service.new"
	opFindOrCreate = "match.find_or_create"
	opCheck        = "match.check"
	opWriteScore   = "match.write_score"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// PresenceOracle answers when a user was last active. ok is false when the
// user has no presence record at all.
type PresenceOracle interface {
	LastActivity(ctx context.Context, userID string) (lastActivity time.Time, ok bool, err error)
}

// QuizChecker answers whether a quiz exists.
type QuizChecker interface {
	Exists(ctx context.Context, quizID string) (bool, error)
}

// ResolutionState is the caller-visible outcome of an allocation or poll.
type ResolutionState string

const (
	// ResolutionWaiting means the caller owns a match still lacking player two.
	ResolutionWaiting ResolutionState = "waiting"
	// ResolutionPaired means both player slots are filled.
	ResolutionPaired ResolutionState = "paired"
)

// Resolution is the definite answer every allocation call produces. Contention
// never surfaces as an error; the worst case is a waiting resolution the
// caller polls on.
type Resolution struct {
	State   ResolutionState
	MatchID string
}

// ServiceConfig describes the dependencies of the matchmaking allocator.
type ServiceConfig struct {
	Store     Store
	Presence  PresenceOracle
	Quizzes   QuizChecker
	Staleness Staleness
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service resolves (user, quiz) pairs into matches with at-most-one-claim
// semantics. Correctness rests on the store's conditional update, not on any
// in-process lock, so it holds across multiple server processes.
type Service struct {
	store    Store
	presence PresenceOracle
	quizzes  QuizChecker
	stale    Staleness
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the allocator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Presence == nil {
		return nil, newServiceError(opServiceNew, "missing_presence", errMissingPresence)
	}
	if cfg.Quizzes == nil {
		return nil, newServiceError(opServiceNew, "missing_quiz_checker", errMissingQuizChecker)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	stale := cfg.Staleness
	if stale.Window <= 0 {
		stale.Window = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		store:    cfg.Store,
		presence: cfg.Presence,
		quizzes:  cfg.Quizzes,
		stale:    stale,
		clock:    clock,
		logger:   logger,
	}, nil
}

// FindOrCreateMatch resolves the user into a match for the quiz: their own
// open match when they already have one, an existing waiting match claimed as
// player two, or a fresh waiting match when nothing is claimable. Stale
// candidates found during the scan are pruned in passing.
func (s *Service) FindOrCreateMatch(ctx context.Context, userID UserID, quizID QuizID) (Resolution, error) {
	exists, err := s.quizzes.Exists(ctx, quizID.String())
	if err != nil {
		s.logError(opFindOrCreate, "quiz_lookup_failed", err, zap.String("quiz_id", quizID.String()))
		return Resolution{}, newServiceError(opFindOrCreate, "quiz_lookup_failed", err)
	}
	if !exists {
		return Resolution{}, ErrQuizNotFound
	}

	open, err := s.store.GetOpenMatch(ctx, userID, quizID)
	if err != nil {
		s.logError(opFindOrCreate, "open_match_lookup_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("quiz_id", quizID.String()))
		return Resolution{}, newServiceError(opFindOrCreate, "open_match_lookup_failed", err)
	}
	if open != nil {
		return resolutionFor(*open), nil
	}

	now := s.clock().UTC()
	candidates, err := s.store.ListClaimable(ctx, quizID, userID, s.stale.Cutoff(now))
	if err != nil {
		s.logError(opFindOrCreate, "candidate_scan_failed", err, zap.String("quiz_id", quizID.String()))
		return Resolution{}, newServiceError(opFindOrCreate, "candidate_scan_failed", err)
	}

	for _, candidate := range candidates {
		candidateID := MatchID(candidate.ID)

		lastActivity, found, err := s.presence.LastActivity(ctx, candidate.Player1ID)
		if err != nil {
			s.logError(opFindOrCreate, "presence_lookup_failed", err, zap.String("match_id", candidate.ID))
			return Resolution{}, newServiceError(opFindOrCreate, "presence_lookup_failed", err)
		}
		if s.stale.IdleOwner(lastActivity, found, now) {
			if err := s.store.Delete(ctx, candidateID); err != nil {
				s.logError(opFindOrCreate, "stale_prune_failed", err, zap.String("match_id", candidate.ID))
				return Resolution{}, newServiceError(opFindOrCreate, "stale_prune_failed", err)
			}
			continue
		}

		claimed, err := s.store.TryClaim(ctx, candidateID, userID)
		if err != nil {
			s.logError(opFindOrCreate, "claim_failed", err, zap.String("match_id", candidate.ID))
			return Resolution{}, newServiceError(opFindOrCreate, "claim_failed", err)
		}
		if claimed {
			return Resolution{State: ResolutionPaired, MatchID: candidate.ID}, nil
		}
		// Lost the race for this candidate; move on, never retry the same one.
	}

	created, err := s.store.CreateWaiting(ctx, userID, quizID)
	if err != nil {
		s.logError(opFindOrCreate, "create_failed", err,
			zap.String("user_id", userID.String()),
			zap.String("quiz_id", quizID.String()))
		return Resolution{}, newServiceError(opFindOrCreate, "create_failed", err)
	}
	return Resolution{State: ResolutionWaiting, MatchID: created.ID}, nil
}

// CheckMatch reports the current pairing state of a match the user
// participates in, without running allocation logic.
func (s *Service) CheckMatch(ctx context.Context, userID UserID, matchID MatchID) (Resolution, error) {
	m, err := s.store.Get(ctx, matchID)
	if err != nil {
		s.logError(opCheck, "lookup_failed", err, zap.String("match_id", matchID.String()))
		return Resolution{}, newServiceError(opCheck, "lookup_failed", err)
	}
	if m == nil {
		return Resolution{}, ErrMatchNotFound
	}
	if !m.HasPlayer(userID) {
		return Resolution{}, ErrNotParticipant
	}
	return resolutionFor(*m), nil
}

// WriteScore records the user's score on the match, completing it once both
// players have scored. Terminal matches are never reopened.
func (s *Service) WriteScore(ctx context.Context, matchID MatchID, userID UserID, score int) (*Match, error) {
	updated, err := s.store.WriteScore(ctx, matchID, userID, score)
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) || errors.Is(err, ErrNotParticipant) ||
			errors.Is(err, ErrMatchCompleted) || errors.Is(err, ErrMatchNotStarted) {
			return nil, err
		}
		s.logError(opWriteScore, "store_write_failed", err,
			zap.String("match_id", matchID.String()),
			zap.String("user_id", userID.String()))
		return nil, newServiceError(opWriteScore, "store_write_failed", err)
	}
	return updated, nil
}

func resolutionFor(m Match) Resolution {
	if m.Paired() {
		return Resolution{State: ResolutionPaired, MatchID: m.ID}
	}
	return Resolution{State: ResolutionWaiting, MatchID: m.ID}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("match service error", attrs...)
}
