package model

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"fotobox/eventhub/internal/model/migrations"
)

const (
	MigratorGorm  = "gorm"
	MigratorGoose = "goose"
)

// AutoMigrate runs GORM auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Host{},
		&Event{},
		&Upload{},
	)
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, sqlDB, ".")
}

// Migrate brings the schema up to date with the selected migrator.
// The goose path applies the versioned SQL files and is meant for
// PostgreSQL; the gorm path works on any dialect.
func Migrate(ctx context.Context, db *gorm.DB, migrator string) error {
	switch migrator {
	case "", MigratorGorm:
		return AutoMigrate(db)
	case MigratorGoose:
		return gooseUp(ctx, db)
	default:
		return fmt.Errorf("unknown migrator %q", migrator)
	}
}
