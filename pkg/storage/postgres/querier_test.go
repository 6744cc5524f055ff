package postgres

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestMain(m *testing.M) {
	schema.RegisterSerializer("text", TextSerializer{})
	os.Exit(m.Run())
}

func testCertificate(t *testing.T, cn string) *models.X509Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return (*models.X509Certificate)(parsed)
}

func TestTextSerializerRoundTripsRootCertificateField(t *testing.T) {
	s, err := schema.Parse(&models.InternalCertificateAuthority{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := s.LookUpField("Certificate")
	require.NotNil(t, field)

	cert := testCertificate(t, "root.example.com")
	pemText, err := cert.MarshalText()
	require.NoError(t, err)

	value, err := TextSerializer{}.Value(context.Background(), field, reflect.Value{}, cert)
	require.NoError(t, err)
	assert.Equal(t, string(pemText), value)

	ica := models.InternalCertificateAuthority{CAID: "ca-1"}
	dst := reflect.ValueOf(&ica)

	require.NoError(t, TextSerializer{}.Scan(context.Background(), field, dst, string(pemText)))
	require.NotNil(t, ica.Certificate)
	assert.Equal(t, "root.example.com", ica.Certificate.Subject.CommonName)
	assert.Equal(t, cert.Raw, ica.Certificate.Raw)
}

func TestTextSerializerSkipsNullColumn(t *testing.T) {
	s, err := schema.Parse(&models.InternalCertificateAuthority{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := s.LookUpField("Certificate")
	require.NotNil(t, field)

	ica := models.InternalCertificateAuthority{CAID: "ca-1"}
	require.NoError(t, TextSerializer{}.Scan(context.Background(), field, reflect.ValueOf(&ica), nil))
	assert.Nil(t, ica.Certificate)
}
