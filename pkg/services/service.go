package services

import (
	"context"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/models"
)

// CAService is the single entry point the route layer calls. It resolves the
// CA type from stored configuration and delegates to the matching backend
// adapter.
type CAService interface {
	CreateCA(ctx context.Context, input CreateCAInput) (*models.CertificateAuthority, error)
	UpdateCA(ctx context.Context, input UpdateCAInput) (*models.CertificateAuthority, error)
	ListCAs(ctx context.Context, input ListCAsInput) ([]models.CertificateAuthority, error)
	IssueCertificate(ctx context.Context, input IssueCertificateInput) (*IssuedCertificate, error)
	RenewCertificate(ctx context.Context, input RenewCertificateInput) (*IssuedCertificate, error)
	RevokeCertificate(ctx context.Context, input RevokeCertificateInput) error
}

type Actor struct {
	Type string
	ID   string
}

type CreateCAInput struct {
	ProjectID            string        `validate:"required"`
	Name                 string        `validate:"required"`
	Type                 models.CAType `validate:"required"`
	EnableDirectIssuance bool
	Status               models.CAStatus
	AppConnectionID      string
	Configuration        map[string]interface{}
	KeyAlgorithm         models.KeyAlgorithm
	Subject              models.Subject
	TTLDays              int
	Actor                Actor
}

type UpdateCAInput struct {
	ID              string `validate:"required"`
	Name            *string
	Status          *models.CAStatus
	Configuration   map[string]interface{}
	AppConnectionID *string
	Actor           Actor
}

type ListCAsInput struct {
	ProjectID string        `validate:"required"`
	Type      models.CAType `validate:"required"`
	PageSize  int
}

type IssueCertificateInput struct {
	CAID              string `validate:"required"`
	ProfileID         string `validate:"required"`
	ProjectID         string
	Subject           models.Subject
	AltNames          []string
	KeyUsages         []models.KeyUsage
	ExtendedKeyUsages []models.ExtendedKeyUsage
	KeyAlgorithm      models.KeyAlgorithm
	CSR               string
	TTL               string
	NotBefore         *time.Time
	NotAfter          *time.Time
	Actor             Actor

	// Renewal bookkeeping, set by RenewCertificate and the renewal sweep.
	IsRenewal                bool
	RenewedFromCertificateID string
}

type RenewCertificateInput struct {
	CertificateID string `validate:"required"`
	Actor         Actor
}

type RevokeCertificateInput struct {
	CAID         string           `validate:"required"`
	SerialNumber string           `validate:"required"`
	Reason       models.CrlReason `validate:"required"`
	Actor        Actor
}

// IssuedCertificate is the issuance result handed back through the facade.
// PrivateKey is only set when the engine generated the keypair.
type IssuedCertificate struct {
	CertificateID    string
	SerialNumber     string
	Certificate      string
	CertificateChain string
	PrivateKey       string
	CA               models.CertificateAuthority
}
