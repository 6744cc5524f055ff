package postgres

import (
	"context"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"gorm.io/gorm"
)

const caDBName = "certificate_authorities"
const externalCADBName = "external_certificate_authorities"
const internalCADBName = "internal_certificate_authorities"

type PostgresCAStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.CertificateAuthority]
}

func newCAStore(db *gorm.DB) *PostgresCAStore {
	querier := newPostgresDBQuerier[models.CertificateAuthority](db, caDBName, "id")
	return &PostgresCAStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresCAStore) SelectExistsByID(ctx context.Context, id string) (bool, *models.CertificateAuthority, error) {
	return s.querier.SelectExists(ctx, id, nil)
}

func (s *PostgresCAStore) SelectExistsByProjectAndName(ctx context.Context, projectID string, name string) (bool, *models.CertificateAuthority, error) {
	var elem models.CertificateAuthority
	tx := s.querier.Table(caDBName).WithContext(ctx).Limit(1).Find(&elem, "project_id = ? AND name = ?", projectID, name)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	if tx.RowsAffected == 0 {
		return false, nil, nil
	}

	return true, &elem, nil
}

func (s *PostgresCAStore) SelectByProjectAndType(ctx context.Context, projectID string, caType models.CAType, req storage.StorageListRequest[models.CertificateAuthority]) error {
	return s.querier.SelectAll(ctx, []gormWhereParams{
		{query: "project_id = ?", extraArgs: []any{projectID}},
		{query: "type = ?", extraArgs: []any{caType}},
	}, req.ExhaustiveRun, req.PageSize, req.ApplyFunc)
}

func (s *PostgresCAStore) Insert(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	inserted, err := s.querier.Insert(ctx, ca)
	if err != nil {
		return nil, classifyDBError(err, errs.ErrCAAlreadyExists)
	}
	return inserted, nil
}

func (s *PostgresCAStore) Update(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	return s.querier.Update(ctx, ca, ca.ID)
}

func (s *PostgresCAStore) Delete(ctx context.Context, id string) error {
	return s.querier.Delete(ctx, id)
}

type PostgresExternalCAStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.ExternalCertificateAuthority]
}

func newExternalCAStore(db *gorm.DB) *PostgresExternalCAStore {
	querier := newPostgresDBQuerier[models.ExternalCertificateAuthority](db, externalCADBName, "ca_id")
	return &PostgresExternalCAStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresExternalCAStore) SelectExistsByCAID(ctx context.Context, caID string) (bool, *models.ExternalCertificateAuthority, error) {
	return s.querier.SelectExists(ctx, caID, nil)
}

func (s *PostgresExternalCAStore) Insert(ctx context.Context, eca *models.ExternalCertificateAuthority) (*models.ExternalCertificateAuthority, error) {
	inserted, err := s.querier.Insert(ctx, eca)
	if err != nil {
		return nil, classifyDBError(err, errs.ErrCAAlreadyExists)
	}
	return inserted, nil
}

func (s *PostgresExternalCAStore) Update(ctx context.Context, eca *models.ExternalCertificateAuthority) (*models.ExternalCertificateAuthority, error) {
	return s.querier.Update(ctx, eca, eca.CAID)
}

type PostgresInternalCAStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.InternalCertificateAuthority]
}

func newInternalCAStore(db *gorm.DB) *PostgresInternalCAStore {
	querier := newPostgresDBQuerier[models.InternalCertificateAuthority](db, internalCADBName, "ca_id")
	return &PostgresInternalCAStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresInternalCAStore) SelectExistsByCAID(ctx context.Context, caID string) (bool, *models.InternalCertificateAuthority, error) {
	return s.querier.SelectExists(ctx, caID, nil)
}

func (s *PostgresInternalCAStore) Insert(ctx context.Context, ica *models.InternalCertificateAuthority) (*models.InternalCertificateAuthority, error) {
	inserted, err := s.querier.Insert(ctx, ica)
	if err != nil {
		return nil, classifyDBError(err, errs.ErrCAAlreadyExists)
	}
	return inserted, nil
}

func (s *PostgresInternalCAStore) Update(ctx context.Context, ica *models.InternalCertificateAuthority) (*models.InternalCertificateAuthority, error) {
	return s.querier.Update(ctx, ica, ica.CAID)
}
