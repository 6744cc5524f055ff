package models

import (
	"time"
)

type CAType string

const (
	CATypeInternal  CAType = "internal"
	CATypeACME      CAType = "acme"
	CATypeAWSPCA    CAType = "aws-pca"
	CATypeAzureADCS CAType = "azure-ad-cs"
)

type CAStatus string

const (
	CAStatusActive             CAStatus = "ACTIVE"
	CAStatusDisabled           CAStatus = "DISABLED"
	CAStatusPendingCertificate CAStatus = "PENDING_CERTIFICATE"
)

type CertificateAuthority struct {
	ID                   string   `json:"id" gorm:"primaryKey"`
	ProjectID            string   `json:"project_id" gorm:"column:project_id;uniqueIndex:idx_ca_project_name"`
	Name                 string   `json:"name" gorm:"uniqueIndex:idx_ca_project_name"`
	Status               CAStatus `json:"status"`
	Type                 CAType   `json:"type"`
	EnableDirectIssuance bool     `json:"enable_direct_issuance"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ExternalCertificateAuthority holds backend-specific connection details for
// every non-internal CA. Configuration is decoded into the per-backend config
// struct by the owning adapter.
type ExternalCertificateAuthority struct {
	CAID                 string                 `json:"ca_id" gorm:"primaryKey;column:ca_id"`
	AppConnectionID      string                 `json:"app_connection_id"`
	Type                 CAType                 `json:"type"`
	Configuration        map[string]interface{} `json:"configuration" gorm:"serializer:json"`
	EncryptedCredentials []byte                 `json:"-"`
}

// InternalCertificateAuthority holds the self-signed root material for the
// internal backend. The private key is always KMS-encrypted at rest.
type InternalCertificateAuthority struct {
	CAID                string           `json:"ca_id" gorm:"primaryKey;column:ca_id"`
	EncryptedPrivateKey []byte           `json:"-"`
	Certificate         *X509Certificate `json:"certificate" gorm:"serializer:text"`
	CertificateChain    string           `json:"certificate_chain"`
	KeyAlgorithm        KeyAlgorithm     `json:"key_algorithm"`
	SerialNumber        string           `json:"serial_number"`
	NotBefore           time.Time        `json:"not_before"`
	NotAfter            time.Time        `json:"not_after"`
}

// AWSPCAConfiguration is the Configuration payload for aws-pca CAs.
type AWSPCAConfiguration struct {
	Region string `mapstructure:"region" json:"region"`
	ARN    string `mapstructure:"arn" json:"arn"`
}

// ACMEConfiguration is the Configuration payload for acme CAs.
type ACMEConfiguration struct {
	DirectoryURL      string `mapstructure:"directory_url" json:"directory_url"`
	AccountEmail      string `mapstructure:"account_email" json:"account_email"`
	EABKid            string `mapstructure:"eab_kid" json:"eab_kid"`
	EABHmacKey        string `mapstructure:"eab_hmac_key" json:"eab_hmac_key"`
	DNSProvider       string `mapstructure:"dns_provider" json:"dns_provider"`
	DNSHostedZoneID   string `mapstructure:"dns_hosted_zone_id" json:"dns_hosted_zone_id"`
	DNSProviderRegion string `mapstructure:"dns_provider_region" json:"dns_provider_region"`
}

// ADCSConfiguration is the Configuration payload for azure-ad-cs CAs.
type ADCSConfiguration struct {
	URL                 string `mapstructure:"url" json:"url"`
	CertificateTemplate string `mapstructure:"certificate_template" json:"certificate_template"`
}
