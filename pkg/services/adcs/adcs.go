package adcs

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Azure/go-ntlmssp"
	"github.com/Infisical/infisical-sub034/pkg/clients/appconnection"
	"github.com/Infisical/infisical-sub034/pkg/config"
	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/services"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 30 * time.Second

var (
	requestIDPattern = regexp.MustCompile(`certnew\.cer\?ReqID=(\d+)`)

	pendingMarkers = []string{
		"Certificate Pending",
		"Taken Under Submission",
	}
	deniedMarkers = []string{
		"Denied by Policy Module",
		"request was denied",
	}
)

// ClientFactory builds an HTTP client that authenticates against the web
// enrollment endpoint with the connection's NTLM credentials.
type ClientFactory func(creds models.ADCSConnectionCredentials, skipTLSVerify bool, timeout time.Duration) *http.Client

type ADCSBackend struct {
	logger         *logrus.Entry
	repos          storage.Repositories
	appConnections appconnection.Service
	issuance       services.IssuanceDeps
	skipTLSVerify  bool
	requestTimeout time.Duration
	clientFor      ClientFactory
}

type ADCSBuilder struct {
	Logger         *logrus.Entry
	Repositories   storage.Repositories
	AppConnections appconnection.Service
	Issuance       services.IssuanceDeps
	SkipTLSVerify  bool
	RequestTimeout time.Duration
	ClientFactory  ClientFactory
}

func NewADCSAdapter(builder ADCSBuilder) services.CAAdapter {
	factory := builder.ClientFactory
	if factory == nil {
		factory = defaultClientFactory
	}

	timeout := builder.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &ADCSBackend{
		logger:         builder.Logger,
		repos:          builder.Repositories,
		appConnections: builder.AppConnections,
		issuance:       builder.Issuance,
		skipTLSVerify:  builder.SkipTLSVerify,
		requestTimeout: timeout,
		clientFor:      factory,
	}
}

func defaultClientFactory(creds models.ADCSConnectionCredentials, skipTLSVerify bool, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: ntlmssp.Negotiator{
			RoundTripper: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: skipTLSVerify},
			},
		},
	}
}

func (b *ADCSBackend) Type() models.CAType {
	return models.CATypeAzureADCS
}

func (b *ADCSBackend) decodeConfiguration(raw map[string]interface{}) (models.ADCSConfiguration, error) {
	conf, err := config.DecodeStruct[models.ADCSConfiguration](raw)
	if err != nil {
		return conf, fmt.Errorf("%w: invalid azure-ad-cs configuration: %s", errs.ErrValidateBadRequest, err)
	}

	if conf.URL == "" || conf.CertificateTemplate == "" {
		return conf, fmt.Errorf("%w: azure-ad-cs configuration requires url and certificate_template", errs.ErrValidateBadRequest)
	}

	return conf, nil
}

func (b *ADCSBackend) enrollmentClient(ctx context.Context, conn *models.AppConnection) (*http.Client, models.ADCSConnectionCredentials, error) {
	rawCreds, err := b.appConnections.DecryptCredentials(ctx, conn)
	if err != nil {
		return nil, models.ADCSConnectionCredentials{}, err
	}

	creds, err := config.DecodeStruct[models.ADCSConnectionCredentials](rawCreds)
	if err != nil {
		return nil, creds, fmt.Errorf("could not decode adcs credentials for connection '%s': %w", conn.ID, err)
	}

	return b.clientFor(creds, b.skipTLSVerify, b.requestTimeout), creds, nil
}

// checkEndpoint probes the web enrollment frontend so misconfigured URLs and
// bad credentials fail at registration time, not at first issuance.
func (b *ADCSBackend) checkEndpoint(ctx context.Context, cli *http.Client, creds models.ADCSConnectionCredentials, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/certsrv/", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := cli.Do(req)
	if err != nil {
		return fmt.Errorf("could not reach web enrollment endpoint %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("web enrollment endpoint %s answered %d", baseURL, resp.StatusCode)
	}

	return nil
}

func (b *ADCSBackend) CreateCertificateAuthority(ctx context.Context, input services.CreateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	conf, err := b.decodeConfiguration(input.Configuration)
	if err != nil {
		return nil, err
	}

	conn, err := b.appConnections.ValidateUsage(ctx, models.AppTypeAzureADCS, input.AppConnectionID, input.ProjectID)
	if err != nil {
		return nil, err
	}

	cli, creds, err := b.enrollmentClient(ctx, conn)
	if err != nil {
		return nil, err
	}

	if err := b.checkEndpoint(ctx, cli, creds, conf.URL); err != nil {
		lFunc.Errorf("refusing to register CA '%s': %s", input.Name, err)
		return nil, err
	}

	ca := models.CertificateAuthority{
		ID:                   goid.NewV4UUID().String(),
		ProjectID:            input.ProjectID,
		Name:                 input.Name,
		Status:               models.CAStatusActive,
		Type:                 models.CATypeAzureADCS,
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
			Type:            models.CATypeAzureADCS,
			Configuration:   rawConf,
		})
		return err
	})
	if err != nil {
		lFunc.Errorf("could not persist CA '%s': %s", input.Name, err)
		return nil, err
	}

	lFunc.Infof("registered azure-ad-cs CA '%s' against %s", ca.Name, conf.URL)
	return &ca, nil
}

func (b *ADCSBackend) UpdateCertificateAuthority(ctx context.Context, ca *models.CertificateAuthority, input services.UpdateCAInput) (*models.CertificateAuthority, error) {
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

	reverify := false
	if input.Configuration != nil {
		conf, err := b.decodeConfiguration(input.Configuration)
		if err != nil {
			return nil, err
		}
		rawConf, err := config.EncodeStruct(conf)
		if err != nil {
			return nil, err
		}
		eca.Configuration = rawConf
		reverify = true
	}
	if input.AppConnectionID != nil {
		eca.AppConnectionID = *input.AppConnectionID
		reverify = true
	}

	if reverify {
		conf, err := b.decodeConfiguration(eca.Configuration)
		if err != nil {
			return nil, err
		}

		conn, err := b.appConnections.ValidateUsage(ctx, models.AppTypeAzureADCS, eca.AppConnectionID, ca.ProjectID)
		if err != nil {
			return nil, err
		}

		cli, creds, err := b.enrollmentClient(ctx, conn)
		if err != nil {
			return nil, err
		}

		if err := b.checkEndpoint(ctx, cli, creds, conf.URL); err != nil {
			lFunc.Errorf("refusing to update CA '%s': %s", ca.ID, err)
			return nil, err
		}
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

func (b *ADCSBackend) ListCertificateAuthorities(ctx context.Context, input services.ListCAsInput) ([]models.CertificateAuthority, error) {
	cas := []models.CertificateAuthority{}

	err := b.repos.CAs.SelectByProjectAndType(ctx, input.ProjectID, models.CATypeAzureADCS, storage.StorageListRequest[models.CertificateAuthority]{
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

func (b *ADCSBackend) OrderCertificateFromProfile(ctx context.Context, order services.OrderContext) (*services.IssuedCertificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	conf, err := b.decodeConfiguration(order.ExternalCA.Configuration)
	if err != nil {
		return nil, err
	}

	ttl := order.Input.TTL
	if ttl == "" {
		ttl = order.Profile.APIConfig.TTL
	}

	validityDays, err := helpers.ResolveValidityDays(order.Input.NotBefore, order.Input.NotAfter, ttl, time.Now())
	if err != nil {
		return nil, err
	}

	csrPEM, privateKeyPEM, err := services.ResolveOrderCSR(order)
	if err != nil {
		return nil, err
	}

	conn, err := b.appConnections.FindByID(ctx, order.ExternalCA.AppConnectionID)
	if err != nil {
		return nil, err
	}

	cli, creds, err := b.enrollmentClient(ctx, conn)
	if err != nil {
		return nil, err
	}

	expiration := time.Now().AddDate(0, 0, validityDays)
	reqID, err := b.submitRequest(ctx, cli, creds, conf, csrPEM, expiration)
	if err != nil {
		lFunc.Errorf("could not submit request to %s: %s", conf.URL, err)
		return nil, err
	}

	lFunc.Debugf("request %s accepted by %s, fetching certificate", reqID, conf.URL)
	certPEM, err := b.retrieveCertificate(ctx, cli, creds, conf.URL, reqID)
	if err != nil {
		lFunc.Errorf("could not retrieve request %s from %s: %s", reqID, conf.URL, err)
		return nil, err
	}

	return services.PersistIssuedCertificate(ctx, b.issuance, order, services.IssuedMaterial{
		CertificatePEM: certPEM,
		PrivateKeyPEM:  privateKeyPEM,
		ExternalID:     reqID,
	})
}

// submitRequest posts the CSR to certfnsh.asp and extracts the request ID
// from the result page. A pending page means the template requires manager
// approval, which the engine does not support.
func (b *ADCSBackend) submitRequest(ctx context.Context, cli *http.Client, creds models.ADCSConnectionCredentials, conf models.ADCSConfiguration, csrPEM string, expiration time.Time) (string, error) {
	attributes := fmt.Sprintf("CertificateTemplate:%s", conf.CertificateTemplate)
	attributes += fmt.Sprintf("\r\nExpirationDate:%s", expiration.UTC().Format("1/2/2006 3:04 PM"))

	form := url.Values{}
	form.Set("Mode", "newreq")
	form.Set("CertRequest", csrPEM)
	form.Set("CertAttrib", attributes)
	form.Set("TargetStoreFlags", "0")
	form.Set("SaveCert", "yes")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(conf.URL, "/")+"/certsrv/certfnsh.asp", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := cli.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("enrollment endpoint answered %d", resp.StatusCode)
	}

	page := string(body)
	for _, marker := range pendingMarkers {
		if strings.Contains(page, marker) {
			return "", fmt.Errorf("%w: template %s requires manual approval", errs.ErrIssuancePending, conf.CertificateTemplate)
		}
	}
	for _, marker := range deniedMarkers {
		if strings.Contains(page, marker) {
			return "", fmt.Errorf("%w: request denied by policy for template %s", errs.ErrValidateBadRequest, conf.CertificateTemplate)
		}
	}

	match := requestIDPattern.FindStringSubmatch(page)
	if match == nil {
		return "", fmt.Errorf("could not locate request id in enrollment response")
	}

	return match[1], nil
}

func (b *ADCSBackend) retrieveCertificate(ctx context.Context, cli *http.Client, creds models.ADCSConnectionCredentials, baseURL string, reqID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/certsrv/certnew.cer?ReqID=%s&Enc=b64", strings.TrimSuffix(baseURL, "/"), reqID), nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := cli.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("certificate download answered %d", resp.StatusCode)
	}

	return normalizeCertificate(string(body))
}

// normalizeCertificate accepts either PEM or bare base64 DER, which older
// AD CS versions serve despite Enc=b64.
func normalizeCertificate(payload string) (string, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.Contains(trimmed, "-----BEGIN CERTIFICATE-----") {
		return trimmed + "\n", nil
	}

	der, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(trimmed, "\r\n", "\n"))
	if err != nil {
		der, err = base64.StdEncoding.DecodeString(strings.Join(strings.Fields(trimmed), ""))
		if err != nil {
			return "", fmt.Errorf("certificate download is neither PEM nor base64: %w", err)
		}
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}

// RevokeCertificate records the revocation locally. The web enrollment
// frontend exposes no revocation API, the CRL entry has to be created with
// certutil on the CA host.
func (b *ADCSBackend) RevokeCertificate(ctx context.Context, ca *models.CertificateAuthority, externalCA *models.ExternalCertificateAuthority, serialNumber string, reason models.CrlReason) error {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)
	lFunc.Warnf("serial %s marked revoked locally only, revoke it on the AD CS host as well", serialNumber)

	return services.MarkCertificateRevoked(ctx, b.issuance, ca.ID, serialNumber, reason)
}
