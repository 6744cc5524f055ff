package models

import "time"

type AppType string

const (
	AppTypeAWS       AppType = "aws"
	AppTypeAzureADCS AppType = "azure-adcs"
)

// AppConnection stores third-party credentials, encrypted at rest. The engine
// only ever reads connections; lifecycle management lives elsewhere.
type AppConnection struct {
	ID                   string  `json:"id" gorm:"primaryKey"`
	Name                 string  `json:"name"`
	App                  AppType `json:"app"`
	ProjectID            string  `json:"project_id"`
	EncryptedCredentials []byte  `json:"-"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// AWSConnectionCredentials is the decrypted credential payload for aws connections.
type AWSConnectionCredentials struct {
	AccessKeyID     string `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" mapstructure:"secret_access_key"`
	RoleARN         string `json:"role_arn" mapstructure:"role_arn"`
}

// ADCSConnectionCredentials is the decrypted credential payload for azure-adcs connections.
type ADCSConnectionCredentials struct {
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
}
