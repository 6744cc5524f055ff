package models

import "time"

// CertificateProfile is read-only to the issuance engine. Its APIConfig
// drives the renew-before-days bookkeeping on issued certificates.
type CertificateProfile struct {
	ID        string           `json:"id" gorm:"primaryKey"`
	ProjectID string           `json:"project_id"`
	CAID      string           `json:"ca_id" gorm:"column:ca_id"`
	Name      string           `json:"name"`
	APIConfig ProfileAPIConfig `json:"api_config" gorm:"embedded;embeddedPrefix:api_config_"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProfileAPIConfig struct {
	AutoRenew       bool   `json:"auto_renew"`
	RenewBeforeDays int    `json:"renew_before_days"`
	TTL             string `json:"ttl"`
}
