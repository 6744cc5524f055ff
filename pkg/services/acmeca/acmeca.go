package acmeca

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/clients/appconnection"
	"github.com/Infisical/infisical-sub034/pkg/config"
	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/services"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/providers/dns/route53"
	"github.com/go-acme/lego/v4/registration"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"
)

const dnsProviderRoute53 = "route53"

var keyTypeForAlgorithm = map[models.KeyAlgorithm]certcrypto.KeyType{
	models.KeyAlgorithmRSA2048:    certcrypto.RSA2048,
	models.KeyAlgorithmRSA4096:    certcrypto.RSA4096,
	models.KeyAlgorithmECPrime256: certcrypto.EC256,
	models.KeyAlgorithmECSecp384:  certcrypto.EC384,
}

// ACMEUser satisfies lego's account contract. The key is unsealed from the
// external CA record on every use.
type ACMEUser struct {
	Email        string
	Registration *registration.Resource
	Key          crypto.PrivateKey
}

func (u *ACMEUser) GetEmail() string {
	return u.Email
}

func (u *ACMEUser) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *ACMEUser) GetPrivateKey() crypto.PrivateKey {
	return u.Key
}

// ACMEClient is the slice of lego the adapter drives. Tests swap in a fake
// directory-less implementation.
type ACMEClient interface {
	Register(eab bool, kid string, hmacKey string) (*registration.Resource, error)
	ObtainForCSR(request certificate.ObtainForCSRRequest) (*certificate.Resource, error)
	RevokeWithReason(cert []byte, reason *uint) error
}

// ClientFactory builds an ACME client for one account against one directory.
type ClientFactory func(ctx context.Context, user *ACMEUser, conf models.ACMEConfiguration, creds models.AWSConnectionCredentials, keyType certcrypto.KeyType) (ACMEClient, error)

type ACMEBackend struct {
	logger             *logrus.Entry
	repos              storage.Repositories
	appConnections     appconnection.Service
	issuance           services.IssuanceDeps
	userAgent          string
	propagationTimeout time.Duration
	clientFor          ClientFactory
}

type ACMEBuilder struct {
	Logger             *logrus.Entry
	Repositories       storage.Repositories
	AppConnections     appconnection.Service
	Issuance           services.IssuanceDeps
	UserAgent          string
	PropagationTimeout time.Duration
	ClientFactory      ClientFactory
}

func NewACMEAdapter(builder ACMEBuilder) services.CAAdapter {
	backend := &ACMEBackend{
		logger:             builder.Logger,
		repos:              builder.Repositories,
		appConnections:     builder.AppConnections,
		issuance:           builder.Issuance,
		userAgent:          builder.UserAgent,
		propagationTimeout: builder.PropagationTimeout,
	}

	backend.clientFor = builder.ClientFactory
	if backend.clientFor == nil {
		backend.clientFor = backend.defaultClientFactory
	}

	return backend
}

type legoClient struct {
	inner *lego.Client
}

func (c *legoClient) Register(eab bool, kid string, hmacKey string) (*registration.Resource, error) {
	if eab {
		return c.inner.Registration.RegisterWithExternalAccountBinding(registration.RegisterEABOptions{
			TermsOfServiceAgreed: true,
			Kid:                  kid,
			HmacEncoded:          hmacKey,
		})
	}

	return c.inner.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
}

func (c *legoClient) ObtainForCSR(request certificate.ObtainForCSRRequest) (*certificate.Resource, error) {
	return c.inner.Certificate.ObtainForCSR(request)
}

func (c *legoClient) RevokeWithReason(cert []byte, reason *uint) error {
	return c.inner.Certificate.RevokeWithReason(cert, reason)
}

func (b *ACMEBackend) defaultClientFactory(ctx context.Context, user *ACMEUser, conf models.ACMEConfiguration, creds models.AWSConnectionCredentials, keyType certcrypto.KeyType) (ACMEClient, error) {
	legoConf := lego.NewConfig(user)
	legoConf.CADirURL = conf.DirectoryURL
	legoConf.Certificate.KeyType = keyType
	if b.userAgent != "" {
		legoConf.UserAgent = b.userAgent
	}

	cli, err := lego.NewClient(legoConf)
	if err != nil {
		return nil, fmt.Errorf("could not build acme client for %s: %w", conf.DirectoryURL, err)
	}

	dnsConf := route53.NewDefaultConfig()
	dnsConf.HostedZoneID = conf.DNSHostedZoneID
	dnsConf.Region = conf.DNSProviderRegion
	dnsConf.AccessKeyID = creds.AccessKeyID
	dnsConf.SecretAccessKey = creds.SecretAccessKey
	dnsConf.AssumeRoleArn = creds.RoleARN
	if b.propagationTimeout > 0 {
		dnsConf.PropagationTimeout = b.propagationTimeout
	}

	provider, err := route53.NewDNSProviderConfig(dnsConf)
	if err != nil {
		return nil, fmt.Errorf("could not build route53 dns provider: %w", err)
	}

	if err := cli.Challenge.SetDNS01Provider(provider); err != nil {
		return nil, err
	}

	return &legoClient{inner: cli}, nil
}

func (b *ACMEBackend) Type() models.CAType {
	return models.CATypeACME
}

func (b *ACMEBackend) decodeConfiguration(raw map[string]interface{}) (models.ACMEConfiguration, error) {
	conf, err := config.DecodeStruct[models.ACMEConfiguration](raw)
	if err != nil {
		return conf, fmt.Errorf("%w: invalid acme configuration: %s", errs.ErrValidateBadRequest, err)
	}

	if conf.DirectoryURL == "" || conf.AccountEmail == "" {
		return conf, fmt.Errorf("%w: acme configuration requires directory_url and account_email", errs.ErrValidateBadRequest)
	}

	if conf.DNSProvider != dnsProviderRoute53 {
		return conf, fmt.Errorf("%w: unsupported dns provider %q, only %s is available", errs.ErrValidateBadRequest, conf.DNSProvider, dnsProviderRoute53)
	}

	return conf, nil
}

func (b *ACMEBackend) CreateCertificateAuthority(ctx context.Context, input services.CreateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	conf, err := b.decodeConfiguration(input.Configuration)
	if err != nil {
		return nil, err
	}

	// The DNS-01 solver drives route53, so the connection must be an AWS one.
	conn, err := b.appConnections.ValidateUsage(ctx, models.AppTypeAWS, input.AppConnectionID, input.ProjectID)
	if err != nil {
		return nil, err
	}

	ca := models.CertificateAuthority{
		ID:                   goid.NewV4UUID().String(),
		ProjectID:            input.ProjectID,
		Name:                 input.Name,
		Status:               models.CAStatusActive,
		Type:                 models.CATypeACME,
		EnableDirectIssuance: input.EnableDirectIssuance,
	}

	rawConf, err := config.EncodeStruct(conf)
	if err != nil {
		return nil, err
	}

	err = b.issuance.Tx.Transaction(ctx, func(repos storage.Repositories) error {
		if _, err := repos.CAs.Insert(ctx, &ca); err != nil {
			return err
		}

		_, err := repos.ExternalCAs.Insert(ctx, &models.ExternalCertificateAuthority{
			CAID:            ca.ID,
			AppConnectionID: conn.ID,
			Type:            models.CATypeACME,
			Configuration:   rawConf,
		})
		return err
	})
	if err != nil {
		lFunc.Errorf("could not persist CA '%s': %s", input.Name, err)
		return nil, err
	}

	lFunc.Infof("registered acme CA '%s' against %s, account will be created on first order", ca.Name, conf.DirectoryURL)
	return &ca, nil
}

func (b *ACMEBackend) UpdateCertificateAuthority(ctx context.Context, ca *models.CertificateAuthority, input services.UpdateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	exists, eca, err := b.repos.ExternalCAs.SelectExistsByCAID(ctx, ca.ID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.ErrCANotFound
	}

	if input.Name != nil {
		ca.Name = *input.Name
	}
	if input.Status != nil {
		ca.Status = *input.Status
	}

	if input.Configuration != nil {
		conf, err := b.decodeConfiguration(input.Configuration)
		if err != nil {
			return nil, err
		}
		rawConf, err := config.EncodeStruct(conf)
		if err != nil {
			return nil, err
		}

		// A directory change invalidates the registered account.
		if current, cerr := b.decodeConfiguration(eca.Configuration); cerr == nil && current.DirectoryURL != conf.DirectoryURL {
			eca.EncryptedCredentials = nil
		}
		eca.Configuration = rawConf
	}
	if input.AppConnectionID != nil {
		if _, err := b.appConnections.ValidateUsage(ctx, models.AppTypeAWS, *input.AppConnectionID, ca.ProjectID); err != nil {
			return nil, err
		}
		eca.AppConnectionID = *input.AppConnectionID
	}

	err = b.issuance.Tx.Transaction(ctx, func(repos storage.Repositories) error {
		if _, err := repos.CAs.Update(ctx, ca); err != nil {
			return err
		}
		_, err := repos.ExternalCAs.Update(ctx, eca)
		return err
	})
	if err != nil {
		lFunc.Errorf("could not update CA '%s': %s", ca.ID, err)
		return nil, err
	}

	return ca, nil
}

func (b *ACMEBackend) ListCertificateAuthorities(ctx context.Context, input services.ListCAsInput) ([]models.CertificateAuthority, error) {
	cas := []models.CertificateAuthority{}

	err := b.repos.CAs.SelectByProjectAndType(ctx, input.ProjectID, models.CATypeACME, storage.StorageListRequest[models.CertificateAuthority]{
		ExhaustiveRun: true,
		PageSize:      input.PageSize,
		ApplyFunc: func(ca models.CertificateAuthority) {
			cas = append(cas, ca)
		},
	})
	if err != nil {
		return nil, err
	}

	return cas, nil
}

// storedAccount is the EncryptedCredentials payload for acme CAs.
type storedAccount struct {
	PrivateKeyPEM   string `json:"private_key_pem"`
	RegistrationURI string `json:"registration_uri"`
}

// loadOrRegisterAccount unseals the CA's ACME account, creating and sealing a
// fresh one on first use. Registration happens against the live directory, so
// EAB settings are taken from the CA configuration.
func (b *ACMEBackend) loadOrRegisterAccount(ctx context.Context, eca *models.ExternalCertificateAuthority, conf models.ACMEConfiguration, creds models.AWSConnectionCredentials, keyType certcrypto.KeyType) (*ACMEUser, ACMEClient, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	if len(eca.EncryptedCredentials) > 0 {
		decrypt := b.issuance.KMS.DecryptorForKey(b.issuance.KMSKeyID)
		plaintext, err := decrypt(ctx, eca.EncryptedCredentials)
		if err != nil {
			return nil, nil, err
		}

		var account storedAccount
		if err := json.Unmarshal(plaintext, &account); err != nil {
			return nil, nil, fmt.Errorf("could not decode stored acme account: %w", err)
		}

		key, err := parseAccountKey(account.PrivateKeyPEM)
		if err != nil {
			return nil, nil, err
		}

		user := &ACMEUser{
			Email:        conf.AccountEmail,
			Registration: &registration.Resource{URI: account.RegistrationURI},
			Key:          key,
		}

		cli, err := b.clientFor(ctx, user, conf, creds, keyType)
		if err != nil {
			return nil, nil, err
		}

		return user, cli, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	user := &ACMEUser{
		Email: conf.AccountEmail,
		Key:   key,
	}

	cli, err := b.clientFor(ctx, user, conf, creds, keyType)
	if err != nil {
		return nil, nil, err
	}

	useEAB := conf.EABKid != "" && conf.EABHmacKey != ""
	reg, err := cli.Register(useEAB, conf.EABKid, conf.EABHmacKey)
	if err != nil {
		lFunc.Errorf("could not register acme account at %s: %s", conf.DirectoryURL, err)
		return nil, nil, err
	}
	user.Registration = reg

	keyPEM, err := encodeAccountKey(key)
	if err != nil {
		return nil, nil, err
	}

	payload, err := json.Marshal(storedAccount{
		PrivateKeyPEM:   keyPEM,
		RegistrationURI: reg.URI,
	})
	if err != nil {
		return nil, nil, err
	}

	encrypt := b.issuance.KMS.EncryptorForKey(b.issuance.KMSKeyID)
	sealed, err := encrypt(ctx, payload)
	if err != nil {
		return nil, nil, err
	}

	eca.EncryptedCredentials = sealed
	if _, err := b.repos.ExternalCAs.Update(ctx, eca); err != nil {
		lFunc.Errorf("could not store acme account for CA '%s': %s", eca.CAID, err)
		return nil, nil, err
	}

	lFunc.Infof("registered acme account %s at %s", reg.URI, conf.DirectoryURL)
	return user, cli, nil
}

func (b *ACMEBackend) OrderCertificateFromProfile(ctx context.Context, order services.OrderContext) (*services.IssuedCertificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	keyType, ok := keyTypeForAlgorithm[order.Input.KeyAlgorithm]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key algorithm %q for acme", errs.ErrValidateBadRequest, order.Input.KeyAlgorithm)
	}

	conf, err := b.decodeConfiguration(order.ExternalCA.Configuration)
	if err != nil {
		return nil, err
	}

	conn, err := b.appConnections.FindByID(ctx, order.ExternalCA.AppConnectionID)
	if err != nil {
		return nil, err
	}

	rawCreds, err := b.appConnections.DecryptCredentials(ctx, conn)
	if err != nil {
		return nil, err
	}

	creds, err := config.DecodeStruct[models.AWSConnectionCredentials](rawCreds)
	if err != nil {
		return nil, fmt.Errorf("could not decode aws credentials for connection '%s': %w", conn.ID, err)
	}

	_, cli, err := b.loadOrRegisterAccount(ctx, order.ExternalCA, conf, creds, keyType)
	if err != nil {
		return nil, err
	}

	csrPEM, privateKeyPEM, err := services.ResolveOrderCSR(order)
	if err != nil {
		return nil, err
	}

	csr, err := parseCSRPEM(csrPEM)
	if err != nil {
		return nil, err
	}

	obtainReq := certificate.ObtainForCSRRequest{
		CSR:    csr,
		Bundle: true,
	}
	if order.Input.NotBefore != nil {
		obtainReq.NotBefore = *order.Input.NotBefore
	}
	if order.Input.NotAfter != nil {
		obtainReq.NotAfter = *order.Input.NotAfter
	}

	resource, err := cli.ObtainForCSR(obtainReq)
	if err != nil {
		lFunc.Errorf("acme order against %s failed: %s", conf.DirectoryURL, err)
		return nil, err
	}

	leaf, chain := helpers.SplitCertificateChain(string(resource.Certificate))
	if leaf == "" {
		return nil, fmt.Errorf("acme order %s returned no certificate", resource.CertURL)
	}

	return services.PersistIssuedCertificate(ctx, b.issuance, order, services.IssuedMaterial{
		CertificatePEM: leaf,
		ChainPEM:       chain,
		PrivateKeyPEM:  privateKeyPEM,
		ExternalID:     resource.CertURL,
	})
}

// RFC 5280 reason codes, as the ACME revocation endpoint expects them.
var acmeReasonCodes = map[models.CrlReason]uint{
	models.CrlReasonUnspecified:          0,
	models.CrlReasonKeyCompromise:        1,
	models.CrlReasonCACompromise:         2,
	models.CrlReasonAffiliationChanged:   3,
	models.CrlReasonSuperseded:           4,
	models.CrlReasonCessationOfOperation: 5,
	models.CrlReasonCertificateHold:      6,
	models.CrlReasonRemoveFromCrl:        8,
	models.CrlReasonPrivilegeWithdrawn:   9,
	models.CrlReasonAACompromise:         10,
}

func (b *ACMEBackend) RevokeCertificate(ctx context.Context, ca *models.CertificateAuthority, externalCA *models.ExternalCertificateAuthority, serialNumber string, reason models.CrlReason) error {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	conf, err := b.decodeConfiguration(externalCA.Configuration)
	if err != nil {
		return err
	}

	conn, err := b.appConnections.FindByID(ctx, externalCA.AppConnectionID)
	if err != nil {
		return err
	}

	rawCreds, err := b.appConnections.DecryptCredentials(ctx, conn)
	if err != nil {
		return err
	}

	creds, err := config.DecodeStruct[models.AWSConnectionCredentials](rawCreds)
	if err != nil {
		return err
	}

	exists, cert, err := b.repos.Certificates.SelectExistsByCAAndSerialNumber(ctx, ca.ID, serialNumber)
	if err != nil {
		return err
	}
	if !exists {
		return errs.ErrCertificateNotFound
	}

	bodyExists, body, err := b.repos.CertificateBodies.SelectExistsByCertID(ctx, cert.ID)
	if err != nil {
		return err
	}
	if !bodyExists {
		return errs.ErrCertificateNotFound
	}

	decrypt := b.issuance.KMS.DecryptorForKey(b.issuance.KMSKeyID)
	certPEM, err := decrypt(ctx, body.EncryptedCertificate)
	if err != nil {
		return err
	}

	_, cli, err := b.loadOrRegisterAccount(ctx, externalCA, conf, creds, certcrypto.EC256)
	if err != nil {
		return err
	}

	reasonCode := acmeReasonCodes[reason]
	if err := cli.RevokeWithReason(certPEM, &reasonCode); err != nil {
		lFunc.Errorf("could not revoke serial %s at %s: %s", serialNumber, conf.DirectoryURL, err)
		return err
	}

	return services.MarkCertificateRevoked(ctx, b.issuance, ca.ID, serialNumber, reason)
}

func parseAccountKey(keyPEM string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("stored acme account key is not PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("could not parse stored acme account key: %w", err)
	}

	return key, nil
}

func encodeAccountKey(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

func parseCSRPEM(csrPEM string) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode([]byte(csrPEM))
	if block == nil {
		return nil, fmt.Errorf("%w: CSR is not PEM", errs.ErrValidateBadRequest)
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse CSR: %s", errs.ErrValidateBadRequest, err)
	}

	return csr, nil
}
