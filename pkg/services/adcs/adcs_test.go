package adcs

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend() *ADCSBackend {
	adapter := NewADCSAdapter(ADCSBuilder{
		Logger: logrus.NewEntry(logrus.New()),
		ClientFactory: func(creds models.ADCSConnectionCredentials, skipTLSVerify bool, timeout time.Duration) *http.Client {
			return &http.Client{Timeout: timeout}
		},
	})
	return adapter.(*ADCSBackend)
}

func testCreds() models.ADCSConnectionCredentials {
	return models.ADCSConnectionCredentials{Username: "CORP\\enroll", Password: "hunter2"}
}

func TestSubmitRequestParsesRequestID(t *testing.T) {
	backend := newTestBackend()

	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/certsrv/certfnsh.asp", r.URL.Path)
		require.NoError(t, r.ParseForm())

		gotForm = map[string]string{
			"Mode":       r.PostFormValue("Mode"),
			"CertAttrib": r.PostFormValue("CertAttrib"),
		}

		fmt.Fprint(w, `<A HREF="certnew.cer?ReqID=4217&amp;Enc=b64">download</A>`)
	}))
	defer server.Close()

	conf := models.ADCSConfiguration{URL: server.URL, CertificateTemplate: "WebServer"}
	reqID, err := backend.submitRequest(context.Background(), &http.Client{}, testCreds(), conf, "csr-pem", time.Now().AddDate(0, 0, 30))
	require.NoError(t, err)
	assert.Equal(t, "4217", reqID)
	assert.Equal(t, "newreq", gotForm["Mode"])
	assert.Contains(t, gotForm["CertAttrib"], "CertificateTemplate:WebServer")
	assert.Contains(t, gotForm["CertAttrib"], "ExpirationDate:")
}

func TestSubmitRequestPendingTemplate(t *testing.T) {
	backend := newTestBackend()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Your certificate request has been received. Certificate Pending")
	}))
	defer server.Close()

	conf := models.ADCSConfiguration{URL: server.URL, CertificateTemplate: "Approval"}
	_, err := backend.submitRequest(context.Background(), &http.Client{}, testCreds(), conf, "csr-pem", time.Now())
	assert.ErrorIs(t, err, errs.ErrIssuancePending)
}

func TestSubmitRequestDenied(t *testing.T) {
	backend := newTestBackend()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Your request was denied. Denied by Policy Module")
	}))
	defer server.Close()

	conf := models.ADCSConfiguration{URL: server.URL, CertificateTemplate: "WebServer"}
	_, err := backend.submitRequest(context.Background(), &http.Client{}, testCreds(), conf, "csr-pem", time.Now())
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)
}

func TestRetrieveCertificate(t *testing.T) {
	backend := newTestBackend()
	der := testCertificateDER(t, "adcs.example.com")

	t.Run("Base64Body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/certsrv/certnew.cer", r.URL.Path)
			require.Equal(t, "17", r.URL.Query().Get("ReqID"))
			require.Equal(t, "b64", r.URL.Query().Get("Enc"))

			fmt.Fprint(w, base64.StdEncoding.EncodeToString(der))
		}))
		defer server.Close()

		certPEM, err := backend.retrieveCertificate(context.Background(), &http.Client{}, testCreds(), server.URL, "17")
		require.NoError(t, err)

		cert, err := helpers.ParseCertificatePEM([]byte(certPEM))
		require.NoError(t, err)
		assert.Equal(t, "adcs.example.com", cert.Subject.CommonName)
	})

	t.Run("PEMBody", func(t *testing.T) {
		pemBody := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, pemBody)
		}))
		defer server.Close()

		certPEM, err := backend.retrieveCertificate(context.Background(), &http.Client{}, testCreds(), server.URL, "17")
		require.NoError(t, err)

		cert, err := helpers.ParseCertificatePEM([]byte(certPEM))
		require.NoError(t, err)
		assert.Equal(t, "adcs.example.com", cert.Subject.CommonName)
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		_, err := backend.retrieveCertificate(context.Background(), &http.Client{}, testCreds(), server.URL, "17")
		assert.Error(t, err)
	})
}

func TestDecodeConfiguration(t *testing.T) {
	backend := newTestBackend()

	_, err := backend.decodeConfiguration(map[string]interface{}{"url": "https://adcs.corp.local"})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)

	conf, err := backend.decodeConfiguration(map[string]interface{}{
		"url":                  "https://adcs.corp.local",
		"certificate_template": "WebServer",
	})
	assert.NoError(t, err)
	assert.Equal(t, "WebServer", conf.CertificateTemplate)
}

func testCertificateDER(t *testing.T, cn string) []byte {
	t.Helper()

	key, err := helpers.GenerateKeyPair(models.KeyAlgorithmECPrime256)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	require.NoError(t, err)

	return der
}
