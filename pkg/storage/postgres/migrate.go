package postgres

import (
	"context"
	"embed"
	"io/fs"

	"github.com/Infisical/infisical-sub034/pkg/storage/postgres/migrations"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

//go:embed migrations/*.go
var embedMigrations embed.FS

type migrator struct {
	logger *logrus.Entry
	goose  *goose.Provider
}

func NewMigrator(log *logrus.Entry, db *gorm.DB) (*migrator, error) {
	migrationsFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Registered migrations survive across calls, reset so re-running the
	// constructor does not register duplicates.
	goose.ResetGlobalMigrations()
	migrations.RegisterGoMigrations()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrationsFS)
	if err != nil {
		return nil, err
	}

	return &migrator{
		logger: log.WithField("subsystem-provider", "migrations"),
		goose:  provider,
	}, nil
}

func (m *migrator) MigrateToLatest(ctx context.Context) error {
	current, target, err := m.goose.GetVersions(ctx)
	if err != nil {
		return err
	}

	m.logger.Infof("database at version %d, target version %d", current, target)

	results, err := m.goose.UpTo(ctx, target)
	if err != nil {
		return err
	}

	m.logger.Infof("applied %d migration steps", len(results))
	return nil
}
