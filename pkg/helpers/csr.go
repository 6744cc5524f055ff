package helpers

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"net"
	"net/mail"
	"net/url"
	"strings"

	"github.com/Infisical/infisical-sub034/pkg/models"
)

const (
	csrPEMHeader    = "-----BEGIN CERTIFICATE REQUEST-----"
	csrPEMHeaderAlt = "-----BEGIN NEW CERTIFICATE REQUEST-----"
)

var (
	oidExtensionSubjectAltName   = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidExtensionKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtensionExtendedKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
)

// EnsureCSRPEM normalizes a caller-supplied CSR to PEM. Input already carrying
// CSR PEM delimiters is passed through verbatim. Anything else is treated as
// base64url, re-padded to valid base64 and wrapped at 64 characters.
func EnsureCSRPEM(csr string) string {
	if strings.Contains(csr, csrPEMHeader) || strings.Contains(csr, csrPEMHeaderAlt) {
		return csr
	}

	b64 := strings.ReplaceAll(csr, "-", "+")
	b64 = strings.ReplaceAll(b64, "_", "/")
	b64 = strings.TrimRight(b64, "=")

	switch len(b64) % 4 {
	case 2:
		b64 += "=="
	case 3:
		b64 += "="
	}

	var sb strings.Builder
	sb.WriteString(csrPEMHeader)
	sb.WriteString("\n")
	for i := 0; i < len(b64); i += 64 {
		end := i + 64
		if end > len(b64) {
			end = len(b64)
		}
		sb.WriteString(b64[i:end])
		sb.WriteString("\n")
	}
	sb.WriteString("-----END CERTIFICATE REQUEST-----")

	return sb.String()
}

func GenerateKeyPair(alg models.KeyAlgorithm) (crypto.Signer, error) {
	switch alg {
	case models.KeyAlgorithmRSA2048:
		return rsa.GenerateKey(rand.Reader, 2048)
	case models.KeyAlgorithmRSA4096:
		return rsa.GenerateKey(rand.Reader, 4096)
	case models.KeyAlgorithmECPrime256:
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case models.KeyAlgorithmECSecp384:
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported key algorithm: %s", alg)
	}
}

func PrivateKeyPEM(key crypto.Signer) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// GenerateCSR builds a PKCS#10 request for the given subject and extension
// set. The SAN extension is marked critical when the common name is empty,
// per RFC 5280. Key usage and extended key usage are always critical.
func GenerateCSR(subject models.Subject, altNames []string, keyUsages []models.KeyUsage, extKeyUsages []models.ExtendedKeyUsage, key crypto.Signer) (string, error) {
	template := x509.CertificateRequest{
		Subject: SubjectToPkixName(subject),
	}

	if len(altNames) > 0 {
		sanExt, err := marshalSANExtension(altNames, subject.CommonName == "")
		if err != nil {
			return "", fmt.Errorf("could not build SAN extension: %w", err)
		}
		template.ExtraExtensions = append(template.ExtraExtensions, sanExt)
	}

	if len(keyUsages) > 0 {
		kuExt, err := marshalKeyUsageExtension(keyUsages)
		if err != nil {
			return "", fmt.Errorf("could not build key usage extension: %w", err)
		}
		template.ExtraExtensions = append(template.ExtraExtensions, kuExt)
	}

	if len(extKeyUsages) > 0 {
		ekuExt, err := marshalExtKeyUsageExtension(extKeyUsages)
		if err != nil {
			return "", fmt.Errorf("could not build extended key usage extension: %w", err)
		}
		template.ExtraExtensions = append(template.ExtraExtensions, ekuExt)
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &template, key)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})), nil
}

func marshalSANExtension(altNames []string, critical bool) (pkix.Extension, error) {
	var rawValues []asn1.RawValue

	for _, name := range altNames {
		switch {
		case net.ParseIP(name) != nil:
			ip := net.ParseIP(name)
			if v4 := ip.To4(); v4 != nil {
				ip = v4
			}
			rawValues = append(rawValues, asn1.RawValue{Tag: 7, Class: asn1.ClassContextSpecific, Bytes: ip})
		case isEmailAddress(name):
			rawValues = append(rawValues, asn1.RawValue{Tag: 1, Class: asn1.ClassContextSpecific, Bytes: []byte(name)})
		case isURI(name):
			rawValues = append(rawValues, asn1.RawValue{Tag: 6, Class: asn1.ClassContextSpecific, Bytes: []byte(name)})
		default:
			rawValues = append(rawValues, asn1.RawValue{Tag: 2, Class: asn1.ClassContextSpecific, Bytes: []byte(name)})
		}
	}

	value, err := asn1.Marshal(rawValues)
	if err != nil {
		return pkix.Extension{}, err
	}

	return pkix.Extension{
		Id:       oidExtensionSubjectAltName,
		Critical: critical,
		Value:    value,
	}, nil
}

func isEmailAddress(s string) bool {
	if !strings.Contains(s, "@") {
		return false
	}
	_, err := mail.ParseAddress(s)
	return err == nil
}

func isURI(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

var keyUsageBits = map[models.KeyUsage]x509.KeyUsage{
	models.KeyUsageDigitalSignature: x509.KeyUsageDigitalSignature,
	models.KeyUsageNonRepudiation:   x509.KeyUsageContentCommitment,
	models.KeyUsageKeyEncipherment:  x509.KeyUsageKeyEncipherment,
	models.KeyUsageDataEncipherment: x509.KeyUsageDataEncipherment,
	models.KeyUsageKeyAgreement:     x509.KeyUsageKeyAgreement,
	models.KeyUsageKeyCertSign:      x509.KeyUsageCertSign,
	models.KeyUsageCRLSign:          x509.KeyUsageCRLSign,
	models.KeyUsageEncipherOnly:     x509.KeyUsageEncipherOnly,
	models.KeyUsageDecipherOnly:     x509.KeyUsageDecipherOnly,
}

// KeyUsageToX509 folds the requested usage flags into a single bitmask.
func KeyUsageToX509(usages []models.KeyUsage) x509.KeyUsage {
	var ku x509.KeyUsage
	for _, u := range usages {
		ku |= keyUsageBits[u]
	}
	return ku
}

func marshalKeyUsageExtension(usages []models.KeyUsage) (pkix.Extension, error) {
	ku := KeyUsageToX509(usages)

	// RFC 5280 KeyUsage is a BIT STRING with bit 0 as the MSB.
	var bits [2]byte
	for i := 0; i < 9; i++ {
		if ku&(1<<uint(i)) != 0 {
			bits[i/8] |= 1 << uint(7-i%8)
		}
	}

	bitLen := 9
	for bitLen > 0 {
		i := bitLen - 1
		if bits[i/8]&(1<<uint(7-i%8)) != 0 {
			break
		}
		bitLen--
	}

	value, err := asn1.Marshal(asn1.BitString{Bytes: bits[:(bitLen+7)/8], BitLength: bitLen})
	if err != nil {
		return pkix.Extension{}, err
	}

	return pkix.Extension{
		Id:       oidExtensionKeyUsage,
		Critical: true,
		Value:    value,
	}, nil
}

var extKeyUsageOIDs = map[models.ExtendedKeyUsage]asn1.ObjectIdentifier{
	models.ExtKeyUsageServerAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 1},
	models.ExtKeyUsageClientAuth:      {1, 3, 6, 1, 5, 5, 7, 3, 2},
	models.ExtKeyUsageCodeSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 3},
	models.ExtKeyUsageEmailProtection: {1, 3, 6, 1, 5, 5, 7, 3, 4},
	models.ExtKeyUsageTimestamping:    {1, 3, 6, 1, 5, 5, 7, 3, 8},
	models.ExtKeyUsageOCSPSigning:     {1, 3, 6, 1, 5, 5, 7, 3, 9},
}

// ExtKeyUsageToX509 maps the usage names onto the stdlib enumeration, for the
// internal signing path.
func ExtKeyUsageToX509(usages []models.ExtendedKeyUsage) []x509.ExtKeyUsage {
	mapping := map[models.ExtendedKeyUsage]x509.ExtKeyUsage{
		models.ExtKeyUsageServerAuth:      x509.ExtKeyUsageServerAuth,
		models.ExtKeyUsageClientAuth:      x509.ExtKeyUsageClientAuth,
		models.ExtKeyUsageCodeSigning:     x509.ExtKeyUsageCodeSigning,
		models.ExtKeyUsageEmailProtection: x509.ExtKeyUsageEmailProtection,
		models.ExtKeyUsageTimestamping:    x509.ExtKeyUsageTimeStamping,
		models.ExtKeyUsageOCSPSigning:     x509.ExtKeyUsageOCSPSigning,
	}

	ekus := []x509.ExtKeyUsage{}
	for _, u := range usages {
		if eku, ok := mapping[u]; ok {
			ekus = append(ekus, eku)
		}
	}
	return ekus
}

func marshalExtKeyUsageExtension(usages []models.ExtendedKeyUsage) (pkix.Extension, error) {
	oids := []asn1.ObjectIdentifier{}
	for _, u := range usages {
		oid, ok := extKeyUsageOIDs[u]
		if !ok {
			return pkix.Extension{}, fmt.Errorf("unsupported extended key usage: %s", u)
		}
		oids = append(oids, oid)
	}

	value, err := asn1.Marshal(oids)
	if err != nil {
		return pkix.Extension{}, err
	}

	return pkix.Extension{
		Id:       oidExtensionExtendedKeyUsage,
		Critical: true,
		Value:    value,
	}, nil
}

// ParseCertificatePEM decodes the first certificate block of a PEM bundle.
func ParseCertificatePEM(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("missing certificate block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// SplitCertificateChain separates a PEM bundle into the leaf certificate and
// the remainder of the chain.
func SplitCertificateChain(bundle string) (string, string) {
	rest := []byte(bundle)
	pems := []string{}

	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			pems = append(pems, string(pem.EncodeToMemory(block)))
		}
	}

	if len(pems) == 0 {
		return "", ""
	}

	return pems[0], strings.Join(pems[1:], "")
}
