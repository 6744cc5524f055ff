package services

import (
	"context"
	"testing"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type facadeFixture struct {
	svc     CAService
	repos   storage.Repositories
	adapter *fakeAdapter
}

func newFacadeFixture(t *testing.T, caType models.CAType) *facadeFixture {
	t.Helper()

	repos, _ := newMemRepositories()
	adapter := &fakeAdapter{caType: caType}

	svc, err := NewCAService(CAEngineBuilder{
		Logger:       testLogger(),
		Repositories: repos,
		Adapters:     []CAAdapter{adapter},
	})
	require.NoError(t, err)

	return &facadeFixture{svc: svc, repos: repos, adapter: adapter}
}

func (f *facadeFixture) seedCA(t *testing.T, ca models.CertificateAuthority) {
	t.Helper()
	_, err := f.repos.CAs.Insert(context.Background(), &ca)
	require.NoError(t, err)
}

func TestCreateCA(t *testing.T) {
	ctx := context.Background()

	t.Run("Err/MissingFields", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		_, err := f.svc.CreateCA(ctx, CreateCAInput{Name: "no-project"})
		assert.ErrorIs(t, err, errs.ErrValidateBadRequest)
	})

	t.Run("Err/UnknownBackendType", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		_, err := f.svc.CreateCA(ctx, CreateCAInput{ProjectID: "proj-1", Name: "ca", Type: models.CATypeAWSPCA})
		assert.ErrorIs(t, err, errs.ErrCAType)
	})

	t.Run("Err/DuplicateNameInProject", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "taken", Type: models.CATypeInternal})

		_, err := f.svc.CreateCA(ctx, CreateCAInput{ProjectID: "proj-1", Name: "taken", Type: models.CATypeInternal})
		assert.ErrorIs(t, err, errs.ErrCAAlreadyExists)
		assert.Nil(t, f.adapter.createdWith)
	})

	t.Run("OK/DelegatesToAdapter", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)

		ca, err := f.svc.CreateCA(ctx, CreateCAInput{ProjectID: "proj-1", Name: "fresh", Type: models.CATypeInternal})
		assert.NoError(t, err)
		assert.Equal(t, "fresh", ca.Name)
		require.NotNil(t, f.adapter.createdWith)
		assert.Equal(t, "proj-1", f.adapter.createdWith.ProjectID)
	})
}

func TestIssueCertificateResolution(t *testing.T) {
	ctx := context.Background()

	seedProfile := func(t *testing.T, f *facadeFixture, id, caID string) {
		t.Helper()
		repo := f.repos.Profiles.(*memProfileRepo)
		repo.profiles[id] = &models.CertificateProfile{ID: id, CAID: caID}
	}

	baseInput := IssueCertificateInput{
		CAID:      "ca-1",
		ProfileID: "profile-1",
		Subject:   models.Subject{CommonName: "svc.example.com"},
	}

	t.Run("Err/CANotFound", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeAWSPCA)
		_, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.ErrorIs(t, err, errs.ErrCANotFound)
	})

	t.Run("Err/DisabledCA", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeAWSPCA)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeAWSPCA, Status: models.CAStatusDisabled, EnableDirectIssuance: true})

		_, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.ErrorIs(t, err, errs.ErrCADisabled)
	})

	t.Run("Err/DirectIssuanceDisabled", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeAWSPCA)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeAWSPCA, Status: models.CAStatusActive})

		_, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.ErrorIs(t, err, errs.ErrDirectIssuanceDisabled)
	})

	t.Run("Err/MissingExternalRecord", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeAWSPCA)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeAWSPCA, Status: models.CAStatusActive, EnableDirectIssuance: true})

		_, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.ErrorIs(t, err, errs.ErrCAType)
	})

	t.Run("Err/ProfileNotFound", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeInternal, Status: models.CAStatusActive, EnableDirectIssuance: true})

		_, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.ErrorIs(t, err, errs.ErrProfileNotFound)
	})

	t.Run("Err/ProfileBoundToOtherCA", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeInternal, Status: models.CAStatusActive, EnableDirectIssuance: true})
		seedProfile(t, f, "profile-1", "other-ca")

		_, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.ErrorIs(t, err, errs.ErrProfileCA)
	})

	t.Run("OK/AdapterReceivesResolvedOrder", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeAWSPCA)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeAWSPCA, Status: models.CAStatusActive, EnableDirectIssuance: true})
		seedProfile(t, f, "profile-1", "ca-1")

		_, err := f.repos.ExternalCAs.Insert(ctx, &models.ExternalCertificateAuthority{CAID: "ca-1", Type: models.CATypeAWSPCA})
		require.NoError(t, err)

		issued, err := f.svc.IssueCertificate(ctx, baseInput)
		assert.NoError(t, err)
		assert.Equal(t, "issued", issued.CertificateID)
		require.NotNil(t, f.adapter.orderedWith)
		assert.Equal(t, "ca-1", f.adapter.orderedWith.CA.ID)
		assert.Equal(t, "profile-1", f.adapter.orderedWith.Profile.ID)
		require.NotNil(t, f.adapter.orderedWith.ExternalCA)
		assert.Equal(t, "ca-1", f.adapter.orderedWith.ExternalCA.CAID)
	})
}

func TestRenewCertificate(t *testing.T) {
	ctx := context.Background()

	seedCert := func(t *testing.T, f *facadeFixture, cert models.Certificate) {
		t.Helper()
		repo := f.repos.Certificates.(*memCertRepo)
		clone := cert
		repo.certs[cert.ID] = &clone
	}

	t.Run("Err/NotFound", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		_, err := f.svc.RenewCertificate(ctx, RenewCertificateInput{CertificateID: "ghost"})
		assert.ErrorIs(t, err, errs.ErrCertificateNotFound)
	})

	t.Run("Err/AlreadyRenewed", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		successor := "cert-2"
		seedCert(t, f, models.Certificate{ID: "cert-1", Status: models.StatusActive, RenewedByCertificateID: &successor})

		_, err := f.svc.RenewCertificate(ctx, RenewCertificateInput{CertificateID: "cert-1"})
		assert.ErrorIs(t, err, errs.ErrCertificateAlreadyRenewed)
	})

	t.Run("Err/NotActive", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		seedCert(t, f, models.Certificate{ID: "cert-1", Status: models.StatusRevoked})

		_, err := f.svc.RenewCertificate(ctx, RenewCertificateInput{CertificateID: "cert-1"})
		assert.ErrorIs(t, err, errs.ErrValidateBadRequest)
	})

	t.Run("OK/ReissuesThroughFacade", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeInternal, Status: models.CAStatusActive})
		repo := f.repos.Profiles.(*memProfileRepo)
		repo.profiles["profile-1"] = &models.CertificateProfile{ID: "profile-1", CAID: "ca-1"}
		seedCert(t, f, models.Certificate{
			ID:           "cert-1",
			CAID:         "ca-1",
			ProfileID:    "profile-1",
			ProjectID:    "proj-1",
			Status:       models.StatusActive,
			CommonName:   "svc.example.com",
			AltNames:     []string{"alt.example.com"},
			KeyAlgorithm: models.KeyAlgorithmECPrime256,
			NotAfter:     time.Now().Add(24 * time.Hour),
		})

		_, err := f.svc.RenewCertificate(ctx, RenewCertificateInput{CertificateID: "cert-1"})
		assert.NoError(t, err)
		require.NotNil(t, f.adapter.orderedWith)
		// renewal bypasses the direct-issuance gate and carries the old
		// certificate's identity forward
		assert.True(t, f.adapter.orderedWith.Input.IsRenewal)
		assert.Equal(t, "cert-1", f.adapter.orderedWith.Input.RenewedFromCertificateID)
		assert.Equal(t, "svc.example.com", f.adapter.orderedWith.Input.Subject.CommonName)
		assert.Equal(t, []string{"alt.example.com"}, f.adapter.orderedWith.Input.AltNames)
	})
}

func TestRevokeCertificate(t *testing.T) {
	ctx := context.Background()

	t.Run("Err/CANotFound", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		err := f.svc.RevokeCertificate(ctx, RevokeCertificateInput{CAID: "ghost", SerialNumber: "ab", Reason: models.CrlReasonSuperseded})
		assert.ErrorIs(t, err, errs.ErrCANotFound)
	})

	t.Run("Err/CertificateNotFound", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeInternal, Status: models.CAStatusActive})

		err := f.svc.RevokeCertificate(ctx, RevokeCertificateInput{CAID: "ca-1", SerialNumber: "ab", Reason: models.CrlReasonSuperseded})
		assert.ErrorIs(t, err, errs.ErrCertificateNotFound)
	})

	t.Run("Err/AlreadyRevoked", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeInternal, Status: models.CAStatusActive})
		repo := f.repos.Certificates.(*memCertRepo)
		repo.certs["cert-1"] = &models.Certificate{ID: "cert-1", CAID: "ca-1", SerialNumber: "ab", Status: models.StatusRevoked}

		err := f.svc.RevokeCertificate(ctx, RevokeCertificateInput{CAID: "ca-1", SerialNumber: "ab", Reason: models.CrlReasonSuperseded})
		assert.ErrorIs(t, err, errs.ErrCertificateAlreadyRevoked)
	})

	t.Run("OK/DelegatesToAdapter", func(t *testing.T) {
		f := newFacadeFixture(t, models.CATypeInternal)
		f.seedCA(t, models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Name: "ca", Type: models.CATypeInternal, Status: models.CAStatusActive})
		repo := f.repos.Certificates.(*memCertRepo)
		repo.certs["cert-1"] = &models.Certificate{ID: "cert-1", CAID: "ca-1", SerialNumber: "ab", Status: models.StatusActive}

		err := f.svc.RevokeCertificate(ctx, RevokeCertificateInput{CAID: "ca-1", SerialNumber: "ab", Reason: models.CrlReasonSuperseded})
		assert.NoError(t, err)
		assert.Equal(t, "ab", f.adapter.revokedWith)
	})
}
