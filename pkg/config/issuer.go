package config

type IssuerConfig struct {
	Logs    Logging           `mapstructure:"logs"`
	Storage PostgresSQLConfig `mapstructure:"storage"`
	KMS     KMSConfig         `mapstructure:"kms"`
	Polling PollingConfig     `mapstructure:"polling"`
	Renewal RenewalConfig     `mapstructure:"renewal"`
	ACME    ACMEConfig        `mapstructure:"acme"`
	ADCS    ADCSConfig        `mapstructure:"adcs"`
}

type PostgresSQLConfig struct {
	LogLevel LogLevel `mapstructure:"log_level"`
	Hostname string   `mapstructure:"hostname"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password Password `mapstructure:"password"`
	Database string   `mapstructure:"database"`
}

type KMSConfig struct {
	AWSSDKConfig `mapstructure:",squash"`
	KeyID        string `mapstructure:"key_id"`
}

type PollingConfig struct {
	MaxAttempts  int    `mapstructure:"max_attempts"`
	InitialDelay string `mapstructure:"initial_delay"`
}

type RenewalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Frequency string `mapstructure:"frequency"`
}

type ACMEConfig struct {
	UserAgent          string `mapstructure:"user_agent"`
	PropagationTimeout string `mapstructure:"propagation_timeout"`
}

type ADCSConfig struct {
	SkipTLSVerify  bool   `mapstructure:"skip_tls_verify"`
	RequestTimeout string `mapstructure:"request_timeout"`
}

type AWSAuthenticationMethod string

const (
	Static     AWSAuthenticationMethod = "static"
	Default    AWSAuthenticationMethod = "default"
	AssumeRole AWSAuthenticationMethod = "role"
)

type AWSSDKConfig struct {
	AWSAuthenticationMethod AWSAuthenticationMethod `mapstructure:"auth_method"`
	EndpointURL             string                  `mapstructure:"endpoint_url"`
	AccessKeyID             string                  `mapstructure:"access_key_id"`
	SecretAccessKey         Password                `mapstructure:"secret_access_key"`
	SessionToken            string                  `mapstructure:"session_token"`
	Region                  string                  `mapstructure:"region"`
	RoleARN                 string                  `mapstructure:"role_arn"`
}
