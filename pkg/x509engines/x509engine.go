package x509engines

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/sirupsen/logrus"
)

var oidExtensionSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

type X509Engine struct {
	logger *logrus.Entry
}

func NewX509Engine(logger *logrus.Entry) X509Engine {
	return X509Engine{
		logger: logger,
	}
}

// CreateRootCA self-signs a root certificate for an internal CA. The key pair
// is generated by the caller, the engine only shapes and signs the template.
func (engine X509Engine) CreateRootCA(ctx context.Context, signer crypto.Signer, subject models.Subject, validityDays int) (*x509.Certificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, engine.logger)

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	sn, _ := rand.Int(rand.Reader, serialNumberLimit)

	now := time.Now()
	caExpiration := now.AddDate(0, 0, validityDays)

	ski, err := subjectKeyID(signer.Public())
	if err != nil {
		lFunc.Errorf("could not derive subject key id: %s", err)
		return nil, err
	}

	lFunc.Debugf("generated serial number for root CA: %s", sn.Text(16))
	lFunc.Debugf("validity of root CA: %s", caExpiration)

	template := x509.Certificate{
		SerialNumber:          sn,
		Subject:               helpers.SubjectToPkixName(subject),
		AuthorityKeyId:        ski,
		SubjectKeyId:          ski,
		NotBefore:             now,
		NotAfter:              caExpiration,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certificateBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, signer.Public(), signer)
	if err != nil {
		lFunc.Errorf("could not sign certificate: %s", err)
		return nil, err
	}

	certificate, err := x509.ParseCertificate(certificateBytes)
	if err != nil {
		lFunc.Errorf("could not parse signed certificate %s", err)
		return nil, err
	}

	return certificate, nil
}

// SignCertificateRequest issues a leaf certificate from the given CSR under
// the internal root. SAN extensions are honored from the CSR, key usages come
// from the request.
func (engine X509Engine) SignCertificateRequest(ctx context.Context, csr *x509.CertificateRequest, ca *x509.Certificate, caSigner crypto.Signer, validityDays int, keyUsages []models.KeyUsage, extKeyUsages []models.ExtendedKeyUsage) (*x509.Certificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, engine.logger)

	now := time.Now()
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	sn, _ := rand.Int(rand.Reader, serialNumberLimit)

	ski, err := subjectKeyID(csr.PublicKey)
	if err != nil {
		lFunc.Errorf("could not derive subject key id: %s", err)
		return nil, err
	}

	certificateTemplate := x509.Certificate{
		PublicKeyAlgorithm: csr.PublicKeyAlgorithm,
		PublicKey:          csr.PublicKey,
		SubjectKeyId:       ski,
		AuthorityKeyId:     ca.SubjectKeyId,
		SerialNumber:       sn,
		Issuer:             ca.Subject,
		Subject:            csr.Subject,
		NotBefore:          now,
		NotAfter:           now.AddDate(0, 0, validityDays),
		KeyUsage:           helpers.KeyUsageToX509(keyUsages),
		ExtKeyUsage:        helpers.ExtKeyUsageToX509(extKeyUsages),
	}

	exts := []pkix.Extension{}
	for _, csrExt := range csr.Extensions {
		if csrExt.Id.Equal(oidExtensionSubjectAltName) {
			exts = append(exts, csrExt)
		}
	}
	certificateTemplate.ExtraExtensions = exts

	certificateBytes, err := x509.CreateCertificate(rand.Reader, &certificateTemplate, ca, csr.PublicKey, caSigner)
	if err != nil {
		lFunc.Errorf("could not sign certificate: %s", err)
		return nil, err
	}

	certificate, err := x509.ParseCertificate(certificateBytes)
	if err != nil {
		lFunc.Errorf("could not parse signed certificate %s", err)
		return nil, err
	}

	return certificate, nil
}

// subjectKeyID is the RFC 5280 method 1 key identifier, the SHA-1 digest of
// the subjectPublicKey bit string.
func subjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(spki, &wrapper); err != nil {
		return nil, err
	}

	digest := sha1.Sum(wrapper.PublicKey.RightAlign())
	return digest[:], nil
}
