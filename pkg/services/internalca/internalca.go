package internalca

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/services"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/Infisical/infisical-sub034/pkg/x509engines"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"
)

const defaultRootValidityDays = 3650

type InternalCABackend struct {
	logger   *logrus.Entry
	repos    storage.Repositories
	issuance services.IssuanceDeps
	engine   x509engines.X509Engine
}

type InternalCABuilder struct {
	Logger       *logrus.Entry
	Repositories storage.Repositories
	Issuance     services.IssuanceDeps
}

func NewInternalCAAdapter(builder InternalCABuilder) services.CAAdapter {
	return &InternalCABackend{
		logger:   builder.Logger,
		repos:    builder.Repositories,
		issuance: builder.Issuance,
		engine:   x509engines.NewX509Engine(builder.Logger),
	}
}

func (b *InternalCABackend) Type() models.CAType {
	return models.CATypeInternal
}

func (b *InternalCABackend) CreateCertificateAuthority(ctx context.Context, input services.CreateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	keyAlg := input.KeyAlgorithm
	if keyAlg == "" {
		keyAlg = models.KeyAlgorithmRSA2048
	}

	validityDays := input.TTLDays
	if validityDays <= 0 {
		validityDays = defaultRootValidityDays
	}

	subject := input.Subject
	if subject.CommonName == "" {
		subject.CommonName = input.Name
	}

	key, err := helpers.GenerateKeyPair(keyAlg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrValidateBadRequest, err)
	}

	rootCert, err := b.engine.CreateRootCA(ctx, key, subject, validityDays)
	if err != nil {
		lFunc.Errorf("could not self-sign root for CA '%s': %s", input.Name, err)
		return nil, err
	}

	keyPEM, err := helpers.PrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}

	encrypt := b.issuance.KMS.EncryptorForKey(b.issuance.KMSKeyID)
	sealedKey, err := encrypt(ctx, []byte(keyPEM))
	if err != nil {
		return nil, err
	}

	ca := models.CertificateAuthority{
		ID:                   goid.NewV4UUID().String(),
		ProjectID:            input.ProjectID,
		Name:                 input.Name,
		Status:               models.CAStatusActive,
		Type:                 models.CATypeInternal,
		EnableDirectIssuance: input.EnableDirectIssuance,
	}

	err = b.issuance.Tx.Transaction(ctx, func(repos storage.Repositories) error {
		if _, err := repos.CAs.Insert(ctx, &ca); err != nil {
			return err
		}

		_, err := repos.InternalCAs.Insert(ctx, &models.InternalCertificateAuthority{
			CAID:                ca.ID,
			EncryptedPrivateKey: sealedKey,
			Certificate:         (*models.X509Certificate)(rootCert),
			CertificateChain:    certToPEM(rootCert),
			KeyAlgorithm:        keyAlg,
			SerialNumber:        rootCert.SerialNumber.Text(16),
			NotBefore:           rootCert.NotBefore,
			NotAfter:            rootCert.NotAfter,
		})
		return err
	})
	if err != nil {
		lFunc.Errorf("could not persist CA '%s': %s", input.Name, err)
		return nil, err
	}

	lFunc.Infof("created internal CA '%s' with root serial %s", ca.Name, rootCert.SerialNumber.Text(16))
	return &ca, nil
}

func (b *InternalCABackend) UpdateCertificateAuthority(ctx context.Context, ca *models.CertificateAuthority, input services.UpdateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	if input.Configuration != nil || input.AppConnectionID != nil {
		return nil, fmt.Errorf("%w: internal CAs carry no external configuration", errs.ErrValidateBadRequest)
	}

	if input.Name != nil {
		ca.Name = *input.Name
	}
	if input.Status != nil {
		ca.Status = *input.Status
	}

	updated, err := b.repos.CAs.Update(ctx, ca)
	if err != nil {
		lFunc.Errorf("could not update CA '%s': %s", ca.ID, err)
		return nil, err
	}

	return updated, nil
}

func (b *InternalCABackend) ListCertificateAuthorities(ctx context.Context, input services.ListCAsInput) ([]models.CertificateAuthority, error) {
	cas := []models.CertificateAuthority{}

	err := b.repos.CAs.SelectByProjectAndType(ctx, input.ProjectID, models.CATypeInternal, storage.StorageListRequest[models.CertificateAuthority]{
		ExhaustiveRun: true,
		PageSize:      input.PageSize,
		ApplyFunc: func(ca models.CertificateAuthority) {
			cas = append(cas, ca)
		},
	})
	if err != nil {
		return nil, err
	}

	return cas, nil
}

func (b *InternalCABackend) OrderCertificateFromProfile(ctx context.Context, order services.OrderContext) (*services.IssuedCertificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	exists, ica, err := b.repos.InternalCAs.SelectExistsByCAID(ctx, order.CA.ID)
	if err != nil {
		return nil, err
	}
	if !exists {
		lFunc.Errorf("internal CA '%s' has no root material", order.CA.ID)
		return nil, errs.ErrCANotFound
	}

	ttl := order.Input.TTL
	if ttl == "" {
		ttl = order.Profile.APIConfig.TTL
	}

	validityDays, err := helpers.ResolveValidityDays(order.Input.NotBefore, order.Input.NotAfter, ttl, time.Now())
	if err != nil {
		return nil, err
	}

	csrPEM, privateKeyPEM, err := services.ResolveOrderCSR(order)
	if err != nil {
		return nil, err
	}

	csr, err := parseCSRPEM(csrPEM)
	if err != nil {
		return nil, err
	}

	caSigner, err := b.unsealSigner(ctx, ica)
	if err != nil {
		lFunc.Errorf("could not unseal signing key for CA '%s': %s", order.CA.ID, err)
		return nil, err
	}

	rootCert := (*x509.Certificate)(ica.Certificate)
	leaf, err := b.engine.SignCertificateRequest(ctx, csr, rootCert, caSigner, validityDays, order.Input.KeyUsages, order.Input.ExtendedKeyUsages)
	if err != nil {
		lFunc.Errorf("could not sign request under CA '%s': %s", order.CA.ID, err)
		return nil, err
	}

	return services.PersistIssuedCertificate(ctx, b.issuance, order, services.IssuedMaterial{
		CertificatePEM: certToPEM(leaf),
		ChainPEM:       ica.CertificateChain,
		PrivateKeyPEM:  privateKeyPEM,
		ExternalID:     leaf.SerialNumber.Text(16),
	})
}

// RevokeCertificate marks the certificate revoked in storage. CRL and OCSP
// distribution for internal CAs happens outside the issuance engine.
func (b *InternalCABackend) RevokeCertificate(ctx context.Context, ca *models.CertificateAuthority, externalCA *models.ExternalCertificateAuthority, serialNumber string, reason models.CrlReason) error {
	return services.MarkCertificateRevoked(ctx, b.issuance, ca.ID, serialNumber, reason)
}

func (b *InternalCABackend) unsealSigner(ctx context.Context, ica *models.InternalCertificateAuthority) (crypto.Signer, error) {
	decrypt := b.issuance.KMS.DecryptorForKey(b.issuance.KMSKeyID)

	keyPEM, err := decrypt(ctx, ica.EncryptedPrivateKey)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("stored signing key is not PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("stored signing key does not implement crypto.Signer")
	}

	return signer, nil
}

func certToPEM(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

func parseCSRPEM(csrPEM string) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: CSR is not PEM", errs.ErrValidateBadRequest)
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse CSR: %s", errs.ErrValidateBadRequest, err)
	}

	return csr, nil
}
