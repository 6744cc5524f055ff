package postgres

import (
	"context"
	"fmt"

	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// NewRepositories migrates the engine tables and returns the repo bundle plus
// a TxRunner bound to the same database handle.
func NewRepositories(log *logrus.Entry, db *gorm.DB) (storage.Repositories, storage.TxRunner, error) {
	schema.RegisterSerializer("text", TextSerializer{})

	m, err := NewMigrator(log, db)
	if err != nil {
		return storage.Repositories{}, nil, fmt.Errorf("could not initialize migrator: %w", err)
	}

	if err := m.MigrateToLatest(context.Background()); err != nil {
		return storage.Repositories{}, nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return buildRepositories(db), &gormTxRunner{db: db}, nil
}

func buildRepositories(db *gorm.DB) storage.Repositories {
	return storage.Repositories{
		CAs:                newCAStore(db),
		ExternalCAs:        newExternalCAStore(db),
		InternalCAs:        newInternalCAStore(db),
		Certificates:       newCertificateStore(db),
		CertificateBodies:  newCertificateBodyStore(db),
		CertificateSecrets: newCertificateSecretStore(db),
		Profiles:           newProfileStore(db),
		AppConnections:     newAppConnectionStore(db),
	}
}

type gormTxRunner struct {
	db *gorm.DB
}

// Transaction rebinds the repo bundle to the transaction handle so every
// write inside fn commits or rolls back atomically.
func (r *gormTxRunner) Transaction(ctx context.Context, fn func(repos storage.Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(buildRepositories(tx))
	})
}
