package postgres

import (
	"context"

	"github.com/Infisical/infisical-sub034/pkg/models"
	"gorm.io/gorm"
)

const profileDBName = "certificate_profiles"
const appConnectionDBName = "app_connections"

type PostgresProfileStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.CertificateProfile]
}

func newProfileStore(db *gorm.DB) *PostgresProfileStore {
	querier := newPostgresDBQuerier[models.CertificateProfile](db, profileDBName, "id")
	return &PostgresProfileStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresProfileStore) SelectExistsByID(ctx context.Context, id string) (bool, *models.CertificateProfile, error) {
	return s.querier.SelectExists(ctx, id, nil)
}

type PostgresAppConnectionStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.AppConnection]
}

func newAppConnectionStore(db *gorm.DB) *PostgresAppConnectionStore {
	querier := newPostgresDBQuerier[models.AppConnection](db, appConnectionDBName, "id")
	return &PostgresAppConnectionStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresAppConnectionStore) SelectExistsByID(ctx context.Context, id string) (bool, *models.AppConnection, error) {
	return s.querier.SelectExists(ctx, id, nil)
}
