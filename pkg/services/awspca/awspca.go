package awspca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/clients/appconnection"
	"github.com/Infisical/infisical-sub034/pkg/config"
	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/services"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acmpca"
	"github.com/aws/aws-sdk-go-v2/service/acmpca/types"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"
)

const passthroughTemplateARN = "arn:aws:acm-pca:::template/BlankEndEntityCertificate_APICSRPassthrough/V1"

// PCAClient is the subset of the ACM PCA API the adapter calls. Tests swap in
// a fake; production uses acmpca.Client.
type PCAClient interface {
	DescribeCertificateAuthority(ctx context.Context, params *acmpca.DescribeCertificateAuthorityInput, optFns ...func(*acmpca.Options)) (*acmpca.DescribeCertificateAuthorityOutput, error)
	IssueCertificate(ctx context.Context, params *acmpca.IssueCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.IssueCertificateOutput, error)
	GetCertificate(ctx context.Context, params *acmpca.GetCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.GetCertificateOutput, error)
	RevokeCertificate(ctx context.Context, params *acmpca.RevokeCertificateInput, optFns ...func(*acmpca.Options)) (*acmpca.RevokeCertificateOutput, error)
}

// ClientFactory builds a PCA client scoped to one region and one set of
// connection credentials.
type ClientFactory func(ctx context.Context, region string, creds models.AWSConnectionCredentials) (PCAClient, error)

// The signing algorithm is dictated by the authority's own key, not by the
// keypair of the leaf being issued.
var signingAlgorithmForCAKey = map[types.KeyAlgorithm]types.SigningAlgorithm{
	types.KeyAlgorithmRsa2048:      types.SigningAlgorithmSha256withrsa,
	types.KeyAlgorithmRsa4096:      types.SigningAlgorithmSha512withrsa,
	types.KeyAlgorithmEcPrime256v1: types.SigningAlgorithmSha256withecdsa,
	types.KeyAlgorithmEcSecp384r1:  types.SigningAlgorithmSha384withecdsa,
}

var revocationReasonFor = map[models.CrlReason]types.RevocationReason{
	models.CrlReasonUnspecified:          types.RevocationReasonUnspecified,
	models.CrlReasonKeyCompromise:        types.RevocationReasonKeyCompromise,
	models.CrlReasonCACompromise:         types.RevocationReasonCertificateAuthorityCompromise,
	models.CrlReasonAffiliationChanged:   types.RevocationReasonAffiliationChanged,
	models.CrlReasonSuperseded:           types.RevocationReasonSuperseded,
	models.CrlReasonCessationOfOperation: types.RevocationReasonCessationOfOperation,
	models.CrlReasonPrivilegeWithdrawn:   types.RevocationReasonPrivilegeWithdrawn,
	models.CrlReasonAACompromise:         types.RevocationReasonAACompromise,
}

type AWSPCABackend struct {
	logger         *logrus.Entry
	repos          storage.Repositories
	appConnections appconnection.Service
	issuance       services.IssuanceDeps
	poll           services.PollConfig
	clientFor      ClientFactory
}

type AWSPCABuilder struct {
	Logger         *logrus.Entry
	Repositories   storage.Repositories
	AppConnections appconnection.Service
	Issuance       services.IssuanceDeps
	Poll           services.PollConfig
	ClientFactory  ClientFactory
}

func NewAWSPCAAdapter(builder AWSPCABuilder) services.CAAdapter {
	factory := builder.ClientFactory
	if factory == nil {
		factory = defaultClientFactory
	}

	return &AWSPCABackend{
		logger:         builder.Logger,
		repos:          builder.Repositories,
		appConnections: builder.AppConnections,
		issuance:       builder.Issuance,
		poll:           builder.Poll,
		clientFor:      factory,
	}
}

func defaultClientFactory(ctx context.Context, region string, creds models.AWSConnectionCredentials) (PCAClient, error) {
	sdkConf := config.AWSSDKConfig{
		Region: region,
	}

	if creds.RoleARN != "" {
		sdkConf.AWSAuthenticationMethod = config.AssumeRole
		sdkConf.RoleARN = creds.RoleARN
	} else {
		sdkConf.AWSAuthenticationMethod = config.Static
		sdkConf.AccessKeyID = creds.AccessKeyID
		sdkConf.SecretAccessKey = config.Password(creds.SecretAccessKey)
	}

	awsConf, err := config.GetAwsSdkConfig(ctx, sdkConf)
	if err != nil {
		return nil, err
	}

	return acmpca.NewFromConfig(*awsConf), nil
}

func (b *AWSPCABackend) Type() models.CAType {
	return models.CATypeAWSPCA
}

func (b *AWSPCABackend) decodeConfiguration(raw map[string]interface{}) (models.AWSPCAConfiguration, error) {
	conf, err := config.DecodeStruct[models.AWSPCAConfiguration](raw)
	if err != nil {
		return conf, fmt.Errorf("%w: invalid aws-pca configuration: %s", errs.ErrValidateBadRequest, err)
	}

	if conf.Region == "" || conf.ARN == "" {
		return conf, fmt.Errorf("%w: aws-pca configuration requires region and arn", errs.ErrValidateBadRequest)
	}

	return conf, nil
}

func (b *AWSPCABackend) clientForConnection(ctx context.Context, conn *models.AppConnection, region string) (PCAClient, error) {
	rawCreds, err := b.appConnections.DecryptCredentials(ctx, conn)
	if err != nil {
		return nil, err
	}

	creds, err := config.DecodeStruct[models.AWSConnectionCredentials](rawCreds)
	if err != nil {
		return nil, fmt.Errorf("could not decode aws credentials for connection '%s': %w", conn.ID, err)
	}

	return b.clientFor(ctx, region, creds)
}

// checkAuthorityActive verifies the referenced private CA exists and is usable
// before any record is written or any issuance attempted.
func (b *AWSPCABackend) checkAuthorityActive(ctx context.Context, cli PCAClient, arn string) error {
	out, err := cli.DescribeCertificateAuthority(ctx, &acmpca.DescribeCertificateAuthorityInput{
		CertificateAuthorityArn: aws.String(arn),
	})
	if err != nil {
		return fmt.Errorf("could not describe certificate authority %s: %w", arn, err)
	}

	if out.CertificateAuthority == nil || out.CertificateAuthority.Status != types.CertificateAuthorityStatusActive {
		return fmt.Errorf("%w: certificate authority %s is not in ACTIVE state", errs.ErrCAStatus, arn)
	}

	return nil
}

// signingAlgorithmForAuthority asks PCA for the authority's key algorithm and
// maps it onto the matching signing algorithm.
func (b *AWSPCABackend) signingAlgorithmForAuthority(ctx context.Context, cli PCAClient, arn string) (types.SigningAlgorithm, error) {
	out, err := cli.DescribeCertificateAuthority(ctx, &acmpca.DescribeCertificateAuthorityInput{
		CertificateAuthorityArn: aws.String(arn),
	})
	if err != nil {
		return "", fmt.Errorf("could not describe certificate authority %s: %w", arn, err)
	}

	if out.CertificateAuthority == nil || out.CertificateAuthority.CertificateAuthorityConfiguration == nil {
		return "", fmt.Errorf("%w: certificate authority %s reports no key configuration", errs.ErrCAStatus, arn)
	}

	caKey := out.CertificateAuthority.CertificateAuthorityConfiguration.KeyAlgorithm
	signingAlgorithm, ok := signingAlgorithmForCAKey[caKey]
	if !ok {
		return "", fmt.Errorf("%w: unsupported authority key algorithm %q", errs.ErrValidateBadRequest, caKey)
	}

	return signingAlgorithm, nil
}

func (b *AWSPCABackend) CreateCertificateAuthority(ctx context.Context, input services.CreateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	conf, err := b.decodeConfiguration(input.Configuration)
	if err != nil {
		return nil, err
	}

	conn, err := b.appConnections.ValidateUsage(ctx, models.AppTypeAWS, input.AppConnectionID, input.ProjectID)
	if err != nil {
		return nil, err
	}

	cli, err := b.clientForConnection(ctx, conn, conf.Region)
	if err != nil {
		return nil, err
	}

	if err := b.checkAuthorityActive(ctx, cli, conf.ARN); err != nil {
		lFunc.Errorf("refusing to register CA '%s': %s", input.Name, err)
		return nil, err
	}

	ca := models.CertificateAuthority{
		ID:                   goid.NewV4UUID().String(),
		ProjectID:            input.ProjectID,
		Name:                 input.Name,
		Status:               models.CAStatusActive,
		Type:                 models.CATypeAWSPCA,
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
			Type:            models.CATypeAWSPCA,
			Configuration:   rawConf,
		})
		return err
	})
	if err != nil {
		lFunc.Errorf("could not persist CA '%s': %s", input.Name, err)
		return nil, err
	}

	lFunc.Infof("registered aws-pca CA '%s' for authority %s", ca.Name, conf.ARN)
	return &ca, nil
}

func (b *AWSPCABackend) UpdateCertificateAuthority(ctx context.Context, ca *models.CertificateAuthority, input services.UpdateCAInput) (*models.CertificateAuthority, error) {
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

		conn, err := b.appConnections.ValidateUsage(ctx, models.AppTypeAWS, eca.AppConnectionID, ca.ProjectID)
		if err != nil {
			return nil, err
		}

		cli, err := b.clientForConnection(ctx, conn, conf.Region)
		if err != nil {
			return nil, err
		}

		if err := b.checkAuthorityActive(ctx, cli, conf.ARN); err != nil {
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

func (b *AWSPCABackend) ListCertificateAuthorities(ctx context.Context, input services.ListCAsInput) ([]models.CertificateAuthority, error) {
	cas := []models.CertificateAuthority{}

	err := b.repos.CAs.SelectByProjectAndType(ctx, input.ProjectID, models.CATypeAWSPCA, storage.StorageListRequest[models.CertificateAuthority]{
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

func (b *AWSPCABackend) OrderCertificateFromProfile(ctx context.Context, order services.OrderContext) (*services.IssuedCertificate, error) {
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

	cli, err := b.clientForConnection(ctx, conn, conf.Region)
	if err != nil {
		return nil, err
	}

	signingAlgorithm, err := b.signingAlgorithmForAuthority(ctx, cli, conf.ARN)
	if err != nil {
		lFunc.Errorf("could not negotiate signing algorithm with authority %s: %s", conf.ARN, err)
		return nil, err
	}

	issueInput := &acmpca.IssueCertificateInput{
		CertificateAuthorityArn: aws.String(conf.ARN),
		Csr:                     []byte(csrPEM),
		SigningAlgorithm:        signingAlgorithm,
		TemplateArn:             aws.String(passthroughTemplateARN),
		Validity: &types.Validity{
			Type:  types.ValidityPeriodTypeDays,
			Value: aws.Int64(int64(validityDays)),
		},
	}

	if len(order.Input.AltNames) > 0 {
		issueInput.ApiPassthrough = &types.ApiPassthrough{
			Extensions: &types.Extensions{
				SubjectAlternativeNames: sanGeneralNames(order.Input.AltNames),
			},
		}
	}

	issued, err := cli.IssueCertificate(ctx, issueInput)
	if err != nil {
		lFunc.Errorf("could not request certificate from authority %s: %s", conf.ARN, err)
		return nil, err
	}

	certARN := aws.ToString(issued.CertificateArn)
	lFunc.Debugf("certificate requested, waiting for %s", certARN)

	cert, err := services.Poll(ctx, b.poll, certARN, func(ctx context.Context) (*acmpca.GetCertificateOutput, error) {
		out, err := cli.GetCertificate(ctx, &acmpca.GetCertificateInput{
			CertificateArn:          aws.String(certARN),
			CertificateAuthorityArn: aws.String(conf.ARN),
		})
		if err != nil {
			var inProgress *types.RequestInProgressException
			if errors.As(err, &inProgress) {
				return nil, services.ErrNotReady
			}
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		lFunc.Errorf("issuance through authority %s failed: %s", conf.ARN, err)
		return nil, err
	}

	return services.PersistIssuedCertificate(ctx, b.issuance, order, services.IssuedMaterial{
		CertificatePEM: aws.ToString(cert.Certificate),
		ChainPEM:       aws.ToString(cert.CertificateChain),
		PrivateKeyPEM:  privateKeyPEM,
		ExternalID:     certARN,
	})
}

func (b *AWSPCABackend) RevokeCertificate(ctx context.Context, ca *models.CertificateAuthority, externalCA *models.ExternalCertificateAuthority, serialNumber string, reason models.CrlReason) error {
	lFunc := helpers.ConfigureLogger(ctx, b.logger)

	conf, err := b.decodeConfiguration(externalCA.Configuration)
	if err != nil {
		return err
	}

	conn, err := b.appConnections.FindByID(ctx, externalCA.AppConnectionID)
	if err != nil {
		return err
	}

	cli, err := b.clientForConnection(ctx, conn, conf.Region)
	if err != nil {
		return err
	}

	// ACM PCA has no hold or unhold semantics, those reasons degrade to
	// unspecified.
	pcaReason, ok := revocationReasonFor[reason]
	if !ok {
		pcaReason = types.RevocationReasonUnspecified
	}

	_, err = cli.RevokeCertificate(ctx, &acmpca.RevokeCertificateInput{
		CertificateAuthorityArn: aws.String(conf.ARN),
		CertificateSerial:       aws.String(serialNumber),
		RevocationReason:        pcaReason,
	})
	if err != nil {
		lFunc.Errorf("could not revoke serial %s at authority %s: %s", serialNumber, conf.ARN, err)
		return err
	}

	return services.MarkCertificateRevoked(ctx, b.issuance, ca.ID, serialNumber, reason)
}

func sanGeneralNames(altNames []string) []types.GeneralName {
	names := make([]types.GeneralName, 0, len(altNames))
	for _, name := range altNames {
		names = append(names, types.GeneralName{DnsName: aws.String(name)})
	}
	return names
}
