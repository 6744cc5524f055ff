package postgres

import (
	"context"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"gorm.io/gorm"
)

const certDBName = "certificates"
const certBodyDBName = "certificate_bodies"
const certSecretDBName = "certificate_secrets"

type PostgresCertificateStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.Certificate]
}

func newCertificateStore(db *gorm.DB) *PostgresCertificateStore {
	querier := newPostgresDBQuerier[models.Certificate](db, certDBName, "id")
	return &PostgresCertificateStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresCertificateStore) SelectExistsByID(ctx context.Context, id string) (bool, *models.Certificate, error) {
	return s.querier.SelectExists(ctx, id, nil)
}

func (s *PostgresCertificateStore) SelectExistsByCAAndSerialNumber(ctx context.Context, caID string, serialNumber string) (bool, *models.Certificate, error) {
	var elem models.Certificate
	tx := s.querier.Table(certDBName).WithContext(ctx).Limit(1).Find(&elem, "ca_id = ? AND serial_number = ?", caID, serialNumber)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	if tx.RowsAffected == 0 {
		return false, nil, nil
	}

	return true, &elem, nil
}

// SelectRenewalCandidates walks the ACTIVE certificates whose renewal window
// has opened and that have not been renewed yet.
func (s *PostgresCertificateStore) SelectRenewalCandidates(ctx context.Context, now time.Time, req storage.StorageListRequest[models.Certificate]) error {
	return s.querier.SelectAll(ctx, []gormWhereParams{
		{query: "status = ?", extraArgs: []any{models.StatusActive}},
		{query: "renew_before_days IS NOT NULL"},
		{query: "renewed_by_certificate_id IS NULL"},
		{query: "not_after <= ? + renew_before_days * interval '1 day'", extraArgs: []any{now}},
	}, req.ExhaustiveRun, req.PageSize, req.ApplyFunc)
}

func (s *PostgresCertificateStore) SelectForUpdateByID(ctx context.Context, id string) (bool, *models.Certificate, error) {
	return s.querier.SelectExistsForUpdate(ctx, id)
}

func (s *PostgresCertificateStore) Insert(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	inserted, err := s.querier.Insert(ctx, cert)
	if err != nil {
		return nil, classifyDBError(err, errs.ErrCertificateAlreadyExists)
	}
	return inserted, nil
}

func (s *PostgresCertificateStore) Update(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	return s.querier.Update(ctx, cert, cert.ID)
}

type PostgresCertificateBodyStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.CertificateBody]
}

func newCertificateBodyStore(db *gorm.DB) *PostgresCertificateBodyStore {
	querier := newPostgresDBQuerier[models.CertificateBody](db, certBodyDBName, "cert_id")
	return &PostgresCertificateBodyStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresCertificateBodyStore) SelectExistsByCertID(ctx context.Context, certID string) (bool, *models.CertificateBody, error) {
	return s.querier.SelectExists(ctx, certID, nil)
}

func (s *PostgresCertificateBodyStore) Insert(ctx context.Context, body *models.CertificateBody) (*models.CertificateBody, error) {
	inserted, err := s.querier.Insert(ctx, body)
	if err != nil {
		return nil, classifyDBError(err, errs.ErrCertificateAlreadyExists)
	}
	return inserted, nil
}

type PostgresCertificateSecretStore struct {
	db      *gorm.DB
	querier *postgresDBQuerier[models.CertificateSecret]
}

func newCertificateSecretStore(db *gorm.DB) *PostgresCertificateSecretStore {
	querier := newPostgresDBQuerier[models.CertificateSecret](db, certSecretDBName, "cert_id")
	return &PostgresCertificateSecretStore{
		db:      db,
		querier: &querier,
	}
}

func (s *PostgresCertificateSecretStore) SelectExistsByCertID(ctx context.Context, certID string) (bool, *models.CertificateSecret, error) {
	return s.querier.SelectExists(ctx, certID, nil)
}

func (s *PostgresCertificateSecretStore) Insert(ctx context.Context, secret *models.CertificateSecret) (*models.CertificateSecret, error) {
	inserted, err := s.querier.Insert(ctx, secret)
	if err != nil {
		return nil, classifyDBError(err, errs.ErrCertificateAlreadyExists)
	}
	return inserted, nil
}
