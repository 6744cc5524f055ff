package models

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testX509Certificate(t *testing.T, cn string) *X509Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(99),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return (*X509Certificate)(parsed)
}

func TestX509CertificateTextRoundTrip(t *testing.T) {
	cert := testX509Certificate(t, "text.example.com")

	text, err := cert.MarshalText()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "-----BEGIN CERTIFICATE-----"))

	var decoded X509Certificate
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, "text.example.com", decoded.Subject.CommonName)
	assert.Equal(t, cert.Raw, decoded.Raw)

	assert.Error(t, decoded.UnmarshalText([]byte("not pem")))
}

func TestX509CertificateJSONRoundTrip(t *testing.T) {
	cert := testX509Certificate(t, "json.example.com")

	data, err := json.Marshal(cert)
	require.NoError(t, err)

	var decoded X509Certificate
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "json.example.com", decoded.Subject.CommonName)
}

func TestX509CertificateEmptyMarshalsToEmptyText(t *testing.T) {
	var cert *X509Certificate

	text, err := cert.MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text)
}
