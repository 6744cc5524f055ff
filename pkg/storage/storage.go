package storage

import (
	"context"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/models"
)

type StorageListRequest[E any] struct {
	ExhaustiveRun bool
	ApplyFunc     func(E)
	PageSize      int
}

type CARepo interface {
	SelectExistsByID(ctx context.Context, id string) (bool, *models.CertificateAuthority, error)
	SelectExistsByProjectAndName(ctx context.Context, projectID string, name string) (bool, *models.CertificateAuthority, error)
	SelectByProjectAndType(ctx context.Context, projectID string, caType models.CAType, req StorageListRequest[models.CertificateAuthority]) error
	Insert(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error)
	Update(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error)
	Delete(ctx context.Context, id string) error
}

type ExternalCARepo interface {
	SelectExistsByCAID(ctx context.Context, caID string) (bool, *models.ExternalCertificateAuthority, error)
	Insert(ctx context.Context, eca *models.ExternalCertificateAuthority) (*models.ExternalCertificateAuthority, error)
	Update(ctx context.Context, eca *models.ExternalCertificateAuthority) (*models.ExternalCertificateAuthority, error)
}

type InternalCARepo interface {
	SelectExistsByCAID(ctx context.Context, caID string) (bool, *models.InternalCertificateAuthority, error)
	Insert(ctx context.Context, ica *models.InternalCertificateAuthority) (*models.InternalCertificateAuthority, error)
	Update(ctx context.Context, ica *models.InternalCertificateAuthority) (*models.InternalCertificateAuthority, error)
}

type CertificateRepo interface {
	SelectExistsByID(ctx context.Context, id string) (bool, *models.Certificate, error)
	SelectExistsByCAAndSerialNumber(ctx context.Context, caID string, serialNumber string) (bool, *models.Certificate, error)
	SelectRenewalCandidates(ctx context.Context, now time.Time, req StorageListRequest[models.Certificate]) error
	Insert(ctx context.Context, cert *models.Certificate) (*models.Certificate, error)
	Update(ctx context.Context, cert *models.Certificate) (*models.Certificate, error)
	// SelectForUpdateByID takes a row lock on the certificate so concurrent
	// issuances cannot race on the renewal back-reference.
	SelectForUpdateByID(ctx context.Context, id string) (bool, *models.Certificate, error)
}

type CertificateBodyRepo interface {
	SelectExistsByCertID(ctx context.Context, certID string) (bool, *models.CertificateBody, error)
	Insert(ctx context.Context, body *models.CertificateBody) (*models.CertificateBody, error)
}

type CertificateSecretRepo interface {
	SelectExistsByCertID(ctx context.Context, certID string) (bool, *models.CertificateSecret, error)
	Insert(ctx context.Context, secret *models.CertificateSecret) (*models.CertificateSecret, error)
}

type ProfileRepo interface {
	SelectExistsByID(ctx context.Context, id string) (bool, *models.CertificateProfile, error)
}

type AppConnectionRepo interface {
	SelectExistsByID(ctx context.Context, id string) (bool, *models.AppConnection, error)
}

// Repositories bundles every repo bound to one database handle. Inside a
// transaction the bundle is rebound to the transaction handle.
type Repositories struct {
	CAs                CARepo
	ExternalCAs        ExternalCARepo
	InternalCAs        InternalCARepo
	Certificates       CertificateRepo
	CertificateBodies  CertificateBodyRepo
	CertificateSecrets CertificateSecretRepo
	Profiles           ProfileRepo
	AppConnections     AppConnectionRepo
}

// TxRunner executes fn atomically. Every write performed through the repos
// handed to fn commits or rolls back as one unit.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(repos Repositories) error) error
}
