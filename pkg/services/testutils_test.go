package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/kms"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/sirupsen/logrus"
)

// In-memory repositories backing the facade and persistence tests. They keep
// the same exists-bool contract as the postgres stores.

type memCARepo struct {
	cas map[string]*models.CertificateAuthority
}

func (r *memCARepo) SelectExistsByID(ctx context.Context, id string) (bool, *models.CertificateAuthority, error) {
	ca, ok := r.cas[id]
	if !ok {
		return false, nil, nil
	}
	clone := *ca
	return true, &clone, nil
}

func (r *memCARepo) SelectExistsByProjectAndName(ctx context.Context, projectID string, name string) (bool, *models.CertificateAuthority, error) {
	for _, ca := range r.cas {
		if ca.ProjectID == projectID && ca.Name == name {
			clone := *ca
			return true, &clone, nil
		}
	}
	return false, nil, nil
}

func (r *memCARepo) SelectByProjectAndType(ctx context.Context, projectID string, caType models.CAType, req storage.StorageListRequest[models.CertificateAuthority]) error {
	for _, ca := range r.cas {
		if ca.ProjectID == projectID && ca.Type == caType {
			req.ApplyFunc(*ca)
		}
	}
	return nil
}

func (r *memCARepo) Insert(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	for _, existing := range r.cas {
		if existing.ProjectID == ca.ProjectID && existing.Name == ca.Name {
			return nil, errs.ErrCAAlreadyExists
		}
	}
	clone := *ca
	r.cas[ca.ID] = &clone
	return ca, nil
}

func (r *memCARepo) Update(ctx context.Context, ca *models.CertificateAuthority) (*models.CertificateAuthority, error) {
	clone := *ca
	r.cas[ca.ID] = &clone
	return ca, nil
}

func (r *memCARepo) Delete(ctx context.Context, id string) error {
	delete(r.cas, id)
	return nil
}

type memExternalCARepo struct {
	ecas map[string]*models.ExternalCertificateAuthority
}

func (r *memExternalCARepo) SelectExistsByCAID(ctx context.Context, caID string) (bool, *models.ExternalCertificateAuthority, error) {
	eca, ok := r.ecas[caID]
	if !ok {
		return false, nil, nil
	}
	clone := *eca
	return true, &clone, nil
}

func (r *memExternalCARepo) Insert(ctx context.Context, eca *models.ExternalCertificateAuthority) (*models.ExternalCertificateAuthority, error) {
	clone := *eca
	r.ecas[eca.CAID] = &clone
	return eca, nil
}

func (r *memExternalCARepo) Update(ctx context.Context, eca *models.ExternalCertificateAuthority) (*models.ExternalCertificateAuthority, error) {
	clone := *eca
	r.ecas[eca.CAID] = &clone
	return eca, nil
}

type memInternalCARepo struct {
	icas map[string]*models.InternalCertificateAuthority
}

func (r *memInternalCARepo) SelectExistsByCAID(ctx context.Context, caID string) (bool, *models.InternalCertificateAuthority, error) {
	ica, ok := r.icas[caID]
	if !ok {
		return false, nil, nil
	}
	clone := *ica
	return true, &clone, nil
}

func (r *memInternalCARepo) Insert(ctx context.Context, ica *models.InternalCertificateAuthority) (*models.InternalCertificateAuthority, error) {
	clone := *ica
	r.icas[ica.CAID] = &clone
	return ica, nil
}

func (r *memInternalCARepo) Update(ctx context.Context, ica *models.InternalCertificateAuthority) (*models.InternalCertificateAuthority, error) {
	clone := *ica
	r.icas[ica.CAID] = &clone
	return ica, nil
}

type memCertRepo struct {
	certs map[string]*models.Certificate
}

func (r *memCertRepo) SelectExistsByID(ctx context.Context, id string) (bool, *models.Certificate, error) {
	cert, ok := r.certs[id]
	if !ok {
		return false, nil, nil
	}
	clone := *cert
	return true, &clone, nil
}

func (r *memCertRepo) SelectExistsByCAAndSerialNumber(ctx context.Context, caID string, serialNumber string) (bool, *models.Certificate, error) {
	for _, cert := range r.certs {
		if cert.CAID == caID && cert.SerialNumber == serialNumber {
			clone := *cert
			return true, &clone, nil
		}
	}
	return false, nil, nil
}

func (r *memCertRepo) SelectRenewalCandidates(ctx context.Context, now time.Time, req storage.StorageListRequest[models.Certificate]) error {
	for _, cert := range r.certs {
		if cert.Status != models.StatusActive || cert.RenewBeforeDays == nil || cert.RenewedByCertificateID != nil {
			continue
		}
		window := time.Duration(*cert.RenewBeforeDays) * 24 * time.Hour
		if !cert.NotAfter.After(now.Add(window)) {
			req.ApplyFunc(*cert)
		}
	}
	return nil
}

func (r *memCertRepo) Insert(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	for _, existing := range r.certs {
		if existing.CAID == cert.CAID && existing.SerialNumber == cert.SerialNumber {
			return nil, errs.ErrCertificateAlreadyExists
		}
	}
	clone := *cert
	r.certs[cert.ID] = &clone
	return cert, nil
}

func (r *memCertRepo) Update(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	clone := *cert
	r.certs[cert.ID] = &clone
	return cert, nil
}

func (r *memCertRepo) SelectForUpdateByID(ctx context.Context, id string) (bool, *models.Certificate, error) {
	return r.SelectExistsByID(ctx, id)
}

type memBodyRepo struct {
	bodies map[string]*models.CertificateBody
}

func (r *memBodyRepo) SelectExistsByCertID(ctx context.Context, certID string) (bool, *models.CertificateBody, error) {
	body, ok := r.bodies[certID]
	if !ok {
		return false, nil, nil
	}
	clone := *body
	return true, &clone, nil
}

func (r *memBodyRepo) Insert(ctx context.Context, body *models.CertificateBody) (*models.CertificateBody, error) {
	clone := *body
	r.bodies[body.CertID] = &clone
	return body, nil
}

type memSecretRepo struct {
	secrets map[string]*models.CertificateSecret
}

func (r *memSecretRepo) SelectExistsByCertID(ctx context.Context, certID string) (bool, *models.CertificateSecret, error) {
	secret, ok := r.secrets[certID]
	if !ok {
		return false, nil, nil
	}
	clone := *secret
	return true, &clone, nil
}

func (r *memSecretRepo) Insert(ctx context.Context, secret *models.CertificateSecret) (*models.CertificateSecret, error) {
	clone := *secret
	r.secrets[secret.CertID] = &clone
	return secret, nil
}

type memProfileRepo struct {
	profiles map[string]*models.CertificateProfile
}

func (r *memProfileRepo) SelectExistsByID(ctx context.Context, id string) (bool, *models.CertificateProfile, error) {
	profile, ok := r.profiles[id]
	if !ok {
		return false, nil, nil
	}
	clone := *profile
	return true, &clone, nil
}

type memConnRepo struct {
	conns map[string]*models.AppConnection
}

func (r *memConnRepo) SelectExistsByID(ctx context.Context, id string) (bool, *models.AppConnection, error) {
	conn, ok := r.conns[id]
	if !ok {
		return false, nil, nil
	}
	clone := *conn
	return true, &clone, nil
}

type memTxRunner struct {
	repos storage.Repositories
}

func (tx *memTxRunner) Transaction(ctx context.Context, fn func(repos storage.Repositories) error) error {
	return fn(tx.repos)
}

func newMemRepositories() (storage.Repositories, storage.TxRunner) {
	repos := storage.Repositories{
		CAs:                &memCARepo{cas: map[string]*models.CertificateAuthority{}},
		ExternalCAs:        &memExternalCARepo{ecas: map[string]*models.ExternalCertificateAuthority{}},
		InternalCAs:        &memInternalCARepo{icas: map[string]*models.InternalCertificateAuthority{}},
		Certificates:       &memCertRepo{certs: map[string]*models.Certificate{}},
		CertificateBodies:  &memBodyRepo{bodies: map[string]*models.CertificateBody{}},
		CertificateSecrets: &memSecretRepo{secrets: map[string]*models.CertificateSecret{}},
		Profiles:           &memProfileRepo{profiles: map[string]*models.CertificateProfile{}},
		AppConnections:     &memConnRepo{conns: map[string]*models.AppConnection{}},
	}

	return repos, &memTxRunner{repos: repos}
}

// fakeKMS prefixes instead of encrypting, so tests can assert both that the
// blob went through the encryptor and what the plaintext was.
type fakeKMS struct{}

func (fakeKMS) EncryptorForKey(kmsKeyID string) kms.Encryptor {
	return func(ctx context.Context, plaintext []byte) ([]byte, error) {
		return append([]byte("sealed:"), plaintext...), nil
	}
}

func (fakeKMS) DecryptorForKey(kmsKeyID string) kms.Decryptor {
	return func(ctx context.Context, ciphertext []byte) ([]byte, error) {
		if len(ciphertext) < 7 || string(ciphertext[:7]) != "sealed:" {
			return nil, fmt.Errorf("blob was not sealed by this key")
		}
		return ciphertext[7:], nil
	}
}

func testLogger() *logrus.Entry {
	logger := logrus.New()
	return logrus.NewEntry(logger)
}

// fakeAdapter records the calls the facade dispatches to it.
type fakeAdapter struct {
	caType models.CAType

	createdWith *CreateCAInput
	orderedWith *OrderContext
	revokedWith string

	orderResult *IssuedCertificate
	orderErr    error
}

func (a *fakeAdapter) Type() models.CAType {
	return a.caType
}

func (a *fakeAdapter) CreateCertificateAuthority(ctx context.Context, input CreateCAInput) (*models.CertificateAuthority, error) {
	a.createdWith = &input
	return &models.CertificateAuthority{ID: "created", Name: input.Name, Type: a.caType}, nil
}

func (a *fakeAdapter) UpdateCertificateAuthority(ctx context.Context, ca *models.CertificateAuthority, input UpdateCAInput) (*models.CertificateAuthority, error) {
	return ca, nil
}

func (a *fakeAdapter) ListCertificateAuthorities(ctx context.Context, input ListCAsInput) ([]models.CertificateAuthority, error) {
	return nil, nil
}

func (a *fakeAdapter) OrderCertificateFromProfile(ctx context.Context, order OrderContext) (*IssuedCertificate, error) {
	a.orderedWith = &order
	if a.orderErr != nil {
		return nil, a.orderErr
	}
	if a.orderResult != nil {
		return a.orderResult, nil
	}
	return &IssuedCertificate{CertificateID: "issued", CA: order.CA}, nil
}

func (a *fakeAdapter) RevokeCertificate(ctx context.Context, ca *models.CertificateAuthority, externalCA *models.ExternalCertificateAuthority, serialNumber string, reason models.CrlReason) error {
	a.revokedWith = serialNumber
	return nil
}
