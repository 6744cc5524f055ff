package services

import (
	"context"

	"github.com/Infisical/infisical-sub034/pkg/models"
)

// CAAdapter is the per-backend contract. One concrete implementation exists
// per CA type; the facade selects it by the type tag stored on the CA record.
type CAAdapter interface {
	Type() models.CAType

	CreateCertificateAuthority(ctx context.Context, input CreateCAInput) (*models.CertificateAuthority, error)
	UpdateCertificateAuthority(ctx context.Context, ca *models.CertificateAuthority, input UpdateCAInput) (*models.CertificateAuthority, error)
	ListCertificateAuthorities(ctx context.Context, input ListCAsInput) ([]models.CertificateAuthority, error)
	OrderCertificateFromProfile(ctx context.Context, order OrderContext) (*IssuedCertificate, error)
	RevokeCertificate(ctx context.Context, ca *models.CertificateAuthority, externalCA *models.ExternalCertificateAuthority, serialNumber string, reason models.CrlReason) error
}

// OrderContext carries the resolved entities an adapter needs to issue. The
// facade loads and checks all of them before dispatching, so adapters never
// re-query the CA or profile.
type OrderContext struct {
	Input      IssueCertificateInput
	CA         models.CertificateAuthority
	ExternalCA *models.ExternalCertificateAuthority
	Profile    models.CertificateProfile
}
