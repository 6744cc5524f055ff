package services

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuedLeafPEM(t *testing.T, cn string, validityDays int) string {
	t.Helper()

	key, err := helpers.GenerateKeyPair(models.KeyAlgorithmECPrime256)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(0xabcdef),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(0, 0, validityDays),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func persistenceFixture(t *testing.T) (IssuanceDeps, storage.Repositories) {
	t.Helper()

	repos, tx := newMemRepositories()
	deps := IssuanceDeps{
		Logger:   testLogger(),
		Tx:       tx,
		KMS:      fakeKMS{},
		KMSKeyID: "master-key",
	}

	return deps, repos
}

func baseOrder() OrderContext {
	return OrderContext{
		CA: models.CertificateAuthority{ID: "ca-1", ProjectID: "proj-1", Type: models.CATypeAWSPCA},
		Profile: models.CertificateProfile{
			ID: "profile-1",
			APIConfig: models.ProfileAPIConfig{
				AutoRenew:       true,
				RenewBeforeDays: 45,
				TTL:             "30d",
			},
		},
		Input: IssueCertificateInput{
			CAID:         "ca-1",
			ProfileID:    "profile-1",
			AltNames:     []string{"alt.example.com"},
			KeyUsages:    []models.KeyUsage{models.KeyUsageDigitalSignature},
			KeyAlgorithm: models.KeyAlgorithmECPrime256,
		},
	}
}

func TestPersistIssuedCertificate(t *testing.T) {
	ctx := context.Background()

	t.Run("OK/RecordsEncryptedMaterial", func(t *testing.T) {
		deps, repos := persistenceFixture(t)
		leafPEM := issuedLeafPEM(t, "svc.example.com", 30)

		issued, err := PersistIssuedCertificate(ctx, deps, baseOrder(), IssuedMaterial{
			CertificatePEM: leafPEM,
			ChainPEM:       "chain-pem",
			PrivateKeyPEM:  "key-pem",
			ExternalID:     "arn:aws:acm-pca::cert/abc",
		})
		require.NoError(t, err)
		assert.Equal(t, "abcdef", issued.SerialNumber)
		assert.Equal(t, leafPEM, issued.Certificate)

		exists, cert, err := repos.Certificates.SelectExistsByID(ctx, issued.CertificateID)
		require.NoError(t, err)
		require.True(t, exists)
		assert.Equal(t, models.StatusActive, cert.Status)
		assert.Equal(t, "svc.example.com", cert.CommonName)
		assert.Equal(t, "svc.example.com", cert.FriendlyName)
		assert.Equal(t, "abcdef", cert.SerialNumber)
		// profile wants renewal 45 days ahead of a 30 day certificate, so the
		// stored window clamps to validity minus one
		require.NotNil(t, cert.RenewBeforeDays)
		assert.Equal(t, 29, *cert.RenewBeforeDays)

		bodyExists, body, err := repos.CertificateBodies.SelectExistsByCertID(ctx, issued.CertificateID)
		require.NoError(t, err)
		require.True(t, bodyExists)
		assert.Equal(t, "sealed:"+leafPEM, string(body.EncryptedCertificate))
		assert.Equal(t, "sealed:chain-pem", string(body.EncryptedCertificateChain))

		secretExists, secret, err := repos.CertificateSecrets.SelectExistsByCertID(ctx, issued.CertificateID)
		require.NoError(t, err)
		require.True(t, secretExists)
		assert.Equal(t, "sealed:key-pem", string(secret.EncryptedPrivateKey))
	})

	t.Run("OK/NoSecretForExternalKeypair", func(t *testing.T) {
		deps, repos := persistenceFixture(t)

		issued, err := PersistIssuedCertificate(ctx, deps, baseOrder(), IssuedMaterial{
			CertificatePEM: issuedLeafPEM(t, "svc.example.com", 30),
		})
		require.NoError(t, err)

		secretExists, _, err := repos.CertificateSecrets.SelectExistsByCertID(ctx, issued.CertificateID)
		require.NoError(t, err)
		assert.False(t, secretExists)
	})

	t.Run("OK/NoRenewWindowWithoutAutoRenew", func(t *testing.T) {
		deps, repos := persistenceFixture(t)

		order := baseOrder()
		order.Profile.APIConfig.AutoRenew = false

		issued, err := PersistIssuedCertificate(ctx, deps, order, IssuedMaterial{
			CertificatePEM: issuedLeafPEM(t, "svc.example.com", 30),
		})
		require.NoError(t, err)

		_, cert, err := repos.Certificates.SelectExistsByID(ctx, issued.CertificateID)
		require.NoError(t, err)
		assert.Nil(t, cert.RenewBeforeDays)
	})

	t.Run("Err/UnparsableCertificate", func(t *testing.T) {
		deps, _ := persistenceFixture(t)

		_, err := PersistIssuedCertificate(ctx, deps, baseOrder(), IssuedMaterial{
			CertificatePEM: "not a certificate",
		})
		assert.Error(t, err)
	})
}

func TestPersistIssuedCertificateRenewal(t *testing.T) {
	ctx := context.Background()

	seedOriginal := func(t *testing.T, repos storage.Repositories, renewedBy *string) {
		t.Helper()
		repo := repos.Certificates.(*memCertRepo)
		repo.certs["orig-1"] = &models.Certificate{
			ID:                     "orig-1",
			CAID:                   "ca-1",
			SerialNumber:           "11",
			Status:                 models.StatusActive,
			RenewedByCertificateID: renewedBy,
		}
	}

	renewalOrder := func() OrderContext {
		order := baseOrder()
		order.Input.IsRenewal = true
		order.Input.RenewedFromCertificateID = "orig-1"
		return order
	}

	t.Run("OK/LinksBothDirections", func(t *testing.T) {
		deps, repos := persistenceFixture(t)
		seedOriginal(t, repos, nil)

		issued, err := PersistIssuedCertificate(ctx, deps, renewalOrder(), IssuedMaterial{
			CertificatePEM: issuedLeafPEM(t, "svc.example.com", 30),
		})
		require.NoError(t, err)

		_, original, err := repos.Certificates.SelectExistsByID(ctx, "orig-1")
		require.NoError(t, err)
		require.NotNil(t, original.RenewedByCertificateID)
		assert.Equal(t, issued.CertificateID, *original.RenewedByCertificateID)

		_, successor, err := repos.Certificates.SelectExistsByID(ctx, issued.CertificateID)
		require.NoError(t, err)
		require.NotNil(t, successor.RenewedFromCertificateID)
		assert.Equal(t, "orig-1", *successor.RenewedFromCertificateID)
	})

	t.Run("Err/OriginalAlreadyRenewed", func(t *testing.T) {
		deps, repos := persistenceFixture(t)
		successor := "cert-other"
		seedOriginal(t, repos, &successor)

		_, err := PersistIssuedCertificate(ctx, deps, renewalOrder(), IssuedMaterial{
			CertificatePEM: issuedLeafPEM(t, "svc.example.com", 30),
		})
		assert.ErrorIs(t, err, errs.ErrCertificateAlreadyRenewed)
	})

	t.Run("Err/OriginalMissing", func(t *testing.T) {
		deps, _ := persistenceFixture(t)

		_, err := PersistIssuedCertificate(ctx, deps, renewalOrder(), IssuedMaterial{
			CertificatePEM: issuedLeafPEM(t, "svc.example.com", 30),
		})
		assert.ErrorIs(t, err, errs.ErrCertificateNotFound)
	})
}
