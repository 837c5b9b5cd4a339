package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parlorgames/quizmatch/backend/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("quiz: database connection required")
	errMissingIDProvider = errors.New("quiz: id provider is required")

	// ErrInvalidTitle indicates an empty quiz title.
	ErrInvalidTitle = errors.New("quiz: invalid title")
	// ErrNotFound indicates the referenced quiz does not exist.
	ErrNotFound = errors.New("quiz: not found")
)

// Quiz models a registered quiz. Question content and grading live elsewhere;
// the registry only carries what matchmaking and notifications need.
type Quiz struct {
	ID        string    `gorm:"column:quiz_id;primaryKey;size:36;not null"`
	Title     string    `gorm:"column:title;size:200;not null"`
	Topic     string    `gorm:"column:topic;size:100"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Quiz) TableName() string {
	return "quizzes"
}

// IDProvider issues quiz identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Publisher receives quiz lifecycle events for asynchronous fan-out.
type Publisher interface {
	Publish(notify.Message)
}

// ServiceConfig describes the quiz registry dependencies.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider IDProvider
	Publisher  Publisher
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service is the quiz registry: creation plus the existence checks the
// allocator depends on.
type Service struct {
	db        *gorm.DB
	ids       IDProvider
	publisher Publisher
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the quiz registry.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		ids:       cfg.IDProvider,
		publisher: cfg.Publisher,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Create registers a quiz and announces it to the notification dispatcher.
func (s *Service) Create(ctx context.Context, title, topic string) (*Quiz, error) {
	trimmedTitle := strings.TrimSpace(title)
	if trimmedTitle == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTitle)
	}

	quizID, err := s.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("quiz: generate id: %w", err)
	}
	record := Quiz{
		ID:        quizID,
		Title:     trimmedTitle,
		Topic:     strings.TrimSpace(topic),
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}

	if s.publisher != nil {
		s.publisher.Publish(notify.Message{
			EventType: notify.EventQuizCreated,
			QuizID:    record.ID,
			Title:     record.Title,
			Topic:     record.Topic,
			Timestamp: record.CreatedAt,
		})
	}
	s.logger.Info("quiz created", zap.String("quiz_id", record.ID), zap.String("title", record.Title))
	return &record, nil
}

// Get loads a quiz by identifier.
func (s *Service) Get(ctx context.Context, quizID string) (*Quiz, error) {
	var record Quiz
	err := s.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Exists reports whether the quiz is registered.
func (s *Service) Exists(ctx context.Context, quizID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Quiz{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns all quizzes, newest first.
func (s *Service) List(ctx context.Context) ([]Quiz, error) {
	var records []Quiz
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
