package models

import (
	"time"
)

type CertificateStatus string

const (
	StatusActive  CertificateStatus = "ACTIVE"
	StatusExpired CertificateStatus = "EXPIRED"
	StatusRevoked CertificateStatus = "REVOKED"
)

type KeyAlgorithm string

const (
	KeyAlgorithmRSA2048    KeyAlgorithm = "RSA_2048"
	KeyAlgorithmRSA4096    KeyAlgorithm = "RSA_4096"
	KeyAlgorithmECPrime256 KeyAlgorithm = "EC_prime256v1"
	KeyAlgorithmECSecp384  KeyAlgorithm = "EC_secp384r1"
)

type KeyUsage string

const (
	KeyUsageDigitalSignature KeyUsage = "digitalSignature"
	KeyUsageKeyEncipherment  KeyUsage = "keyEncipherment"
	KeyUsageNonRepudiation   KeyUsage = "nonRepudiation"
	KeyUsageDataEncipherment KeyUsage = "dataEncipherment"
	KeyUsageKeyAgreement     KeyUsage = "keyAgreement"
	KeyUsageKeyCertSign      KeyUsage = "keyCertSign"
	KeyUsageCRLSign          KeyUsage = "cRLSign"
	KeyUsageEncipherOnly     KeyUsage = "encipherOnly"
	KeyUsageDecipherOnly     KeyUsage = "decipherOnly"
)

type ExtendedKeyUsage string

const (
	ExtKeyUsageClientAuth      ExtendedKeyUsage = "clientAuth"
	ExtKeyUsageServerAuth      ExtendedKeyUsage = "serverAuth"
	ExtKeyUsageCodeSigning     ExtendedKeyUsage = "codeSigning"
	ExtKeyUsageEmailProtection ExtendedKeyUsage = "emailProtection"
	ExtKeyUsageTimestamping    ExtendedKeyUsage = "timestamping"
	ExtKeyUsageOCSPSigning     ExtendedKeyUsage = "ocspSigning"
)

type CrlReason string

const (
	CrlReasonUnspecified          CrlReason = "UNSPECIFIED"
	CrlReasonKeyCompromise        CrlReason = "KEY_COMPROMISE"
	CrlReasonCACompromise         CrlReason = "CA_COMPROMISE"
	CrlReasonAffiliationChanged   CrlReason = "AFFILIATION_CHANGED"
	CrlReasonSuperseded           CrlReason = "SUPERSEDED"
	CrlReasonCessationOfOperation CrlReason = "CESSATION_OF_OPERATION"
	CrlReasonCertificateHold      CrlReason = "CERTIFICATE_HOLD"
	CrlReasonPrivilegeWithdrawn   CrlReason = "PRIVILEGE_WITHDRAWN"
	CrlReasonAACompromise         CrlReason = "A_A_COMPROMISE"
	CrlReasonRemoveFromCrl        CrlReason = "REMOVE_FROM_CRL"
)

type Certificate struct {
	ID                       string             `json:"id" gorm:"primaryKey"`
	CAID                     string             `json:"ca_id" gorm:"column:ca_id;uniqueIndex:idx_cert_ca_serial"`
	ProfileID                string             `json:"profile_id"`
	ProjectID                string             `json:"project_id"`
	Status                   CertificateStatus  `json:"status"`
	FriendlyName             string             `json:"friendly_name"`
	CommonName               string             `json:"common_name"`
	AltNames                 []string           `json:"alt_names" gorm:"serializer:json"`
	SerialNumber             string             `json:"serial_number" gorm:"uniqueIndex:idx_cert_ca_serial"`
	NotBefore                time.Time          `json:"not_before"`
	NotAfter                 time.Time          `json:"not_after"`
	KeyUsages                []KeyUsage         `json:"key_usages" gorm:"serializer:json"`
	ExtendedKeyUsages        []ExtendedKeyUsage `json:"extended_key_usages" gorm:"serializer:json"`
	KeyAlgorithm             KeyAlgorithm       `json:"key_algorithm"`
	SignatureAlgorithm       string             `json:"signature_algorithm"`
	RevocationTimestamp      *time.Time         `json:"revocation_timestamp,omitempty"`
	RevocationReason         *CrlReason         `json:"revocation_reason,omitempty"`
	RenewedFromCertificateID *string            `json:"renewed_from_certificate_id,omitempty" gorm:"column:renewed_from_certificate_id"`
	RenewedByCertificateID   *string            `json:"renewed_by_certificate_id,omitempty" gorm:"column:renewed_by_certificate_id"`
	RenewBeforeDays          *int               `json:"renew_before_days,omitempty"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// CertificateBody is 1:1 with Certificate and is always written in the same
// transaction. Both blobs are KMS-encrypted; plaintext never reaches the table.
type CertificateBody struct {
	CertID                    string `json:"cert_id" gorm:"primaryKey;column:cert_id"`
	EncryptedCertificate      []byte `json:"-"`
	EncryptedCertificateChain []byte `json:"-"`
}

// CertificateSecret exists only when the engine generated the keypair.
type CertificateSecret struct {
	CertID              string `json:"cert_id" gorm:"primaryKey;column:cert_id"`
	EncryptedPrivateKey []byte `json:"-"`
}
