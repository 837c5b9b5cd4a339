package database

import (
	"errors"
	"time"

	"github.com/parlorgames/quizmatch/backend/internal/match"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillCompletedAt = "2026-07-14_backfill_match_completed_at"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillCompletedAt, apply: backfillMatchCompletedAt},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Early builds marked matches completed without stamping the completion time;
// backfill from created_at so the terminal invariant holds for old rows.
func backfillMatchCompletedAt(db *gorm.DB) error {
	return db.Model(&match.Match{}).
		Where("status = ? AND completed_at IS NULL", match.StatusCompleted).
		Update("completed_at", gorm.Expr("created_at")).Error
}
