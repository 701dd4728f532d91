package database

import (
	"errors"
	"time"

	"github.com/printhaus/backend/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillRowVersions = "2026-06-18_backfill_row_versions"

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
		{name: migrationBackfillRowVersions, apply: backfillRowVersions},
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

// backfillRowVersions repairs rows created before the version column carried a
// default. A zero version would diff as older-than-anything and never sync.
func backfillRowVersions(db *gorm.DB) error {
	for _, model := range domain.Models() {
		err := db.Model(model).
			Where("row_version IS NULL OR row_version < 1").
			Update("row_version", 1).Error
		if err != nil {
			return err
		}
	}
	return nil
}
