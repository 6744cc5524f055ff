package services

import (
	"context"
	"fmt"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type CAMiddleware func(CAService) CAService

var validate *validator.Validate

type CAEngineBackend struct {
	service  CAService
	adapters map[models.CAType]CAAdapter
	repos    storage.Repositories
	logger   *logrus.Entry
}

type CAEngineBuilder struct {
	Logger       *logrus.Entry
	Repositories storage.Repositories
	Adapters     []CAAdapter
}

func NewCAService(builder CAEngineBuilder) (CAService, error) {
	validate = validator.New()

	adapters := map[models.CAType]CAAdapter{}
	for _, adapter := range builder.Adapters {
		adapters[adapter.Type()] = adapter
	}

	svc := CAEngineBackend{
		adapters: adapters,
		repos:    builder.Repositories,
		logger:   builder.Logger,
	}

	svc.service = &svc

	return &svc, nil
}

func (svc *CAEngineBackend) SetService(service CAService) {
	svc.service = service
}

func (svc *CAEngineBackend) adapterFor(caType models.CAType) (CAAdapter, error) {
	adapter, ok := svc.adapters[caType]
	if !ok {
		return nil, fmt.Errorf("%w: no backend adapter for type '%s'", errs.ErrCAType, caType)
	}

	return adapter, nil
}

func (svc *CAEngineBackend) CreateCA(ctx context.Context, input CreateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := validate.Struct(input)
	if err != nil {
		lFunc.Errorf("CreateCAInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	adapter, err := svc.adapterFor(input.Type)
	if err != nil {
		return nil, err
	}

	lFunc.Debugf("checking if CA '%s' already exists in project %s", input.Name, input.ProjectID)
	exists, _, err := svc.repos.CAs.SelectExistsByProjectAndName(ctx, input.ProjectID, input.Name)
	if err != nil {
		lFunc.Errorf("could not check if CA '%s' exists: %s", input.Name, err)
		return nil, err
	}
	if exists {
		return nil, errs.ErrCAAlreadyExists
	}

	return adapter.CreateCertificateAuthority(ctx, input)
}

func (svc *CAEngineBackend) UpdateCA(ctx context.Context, input UpdateCAInput) (*models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := validate.Struct(input)
	if err != nil {
		lFunc.Errorf("UpdateCAInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	exists, ca, err := svc.repos.CAs.SelectExistsByID(ctx, input.ID)
	if err != nil {
		lFunc.Errorf("could not load CA '%s': %s", input.ID, err)
		return nil, err
	}
	if !exists {
		return nil, errs.ErrCANotFound
	}

	adapter, err := svc.adapterFor(ca.Type)
	if err != nil {
		return nil, err
	}

	return adapter.UpdateCertificateAuthority(ctx, ca, input)
}

func (svc *CAEngineBackend) ListCAs(ctx context.Context, input ListCAsInput) ([]models.CertificateAuthority, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := validate.Struct(input)
	if err != nil {
		lFunc.Errorf("ListCAsInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	adapter, err := svc.adapterFor(input.Type)
	if err != nil {
		return nil, err
	}

	return adapter.ListCertificateAuthorities(ctx, input)
}

func (svc *CAEngineBackend) IssueCertificate(ctx context.Context, input IssueCertificateInput) (*IssuedCertificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := validate.Struct(input)
	if err != nil {
		lFunc.Errorf("IssueCertificateInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	order, adapter, err := svc.resolveOrder(ctx, input)
	if err != nil {
		return nil, err
	}

	lFunc.Infof("issuing certificate for CN '%s' through CA '%s' (%s)", input.Subject.CommonName, order.CA.Name, order.CA.Type)
	return adapter.OrderCertificateFromProfile(ctx, *order)
}

// resolveOrder loads and cross-checks the CA, its external configuration and
// the profile before any adapter work happens.
func (svc *CAEngineBackend) resolveOrder(ctx context.Context, input IssueCertificateInput) (*OrderContext, CAAdapter, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	exists, ca, err := svc.repos.CAs.SelectExistsByID(ctx, input.CAID)
	if err != nil {
		lFunc.Errorf("could not load CA '%s': %s", input.CAID, err)
		return nil, nil, err
	}
	if !exists {
		return nil, nil, errs.ErrCANotFound
	}

	if ca.Status != models.CAStatusActive {
		lFunc.Warnf("CA '%s' is in status %s, refusing issuance", ca.ID, ca.Status)
		return nil, nil, errs.ErrCADisabled
	}

	if !ca.EnableDirectIssuance && !input.IsRenewal {
		return nil, nil, errs.ErrDirectIssuanceDisabled
	}

	adapter, err := svc.adapterFor(ca.Type)
	if err != nil {
		return nil, nil, err
	}

	var externalCA *models.ExternalCertificateAuthority
	if ca.Type != models.CATypeInternal {
		ecaExists, eca, err := svc.repos.ExternalCAs.SelectExistsByCAID(ctx, ca.ID)
		if err != nil {
			lFunc.Errorf("could not load external CA record for '%s': %s", ca.ID, err)
			return nil, nil, err
		}
		if !ecaExists || eca.Type != ca.Type {
			// A non-internal CA without a matching external record is malformed.
			lFunc.Errorf("CA '%s' of type %s has no matching external CA record", ca.ID, ca.Type)
			return nil, nil, errs.ErrCAType
		}
		externalCA = eca
	}

	profExists, profile, err := svc.repos.Profiles.SelectExistsByID(ctx, input.ProfileID)
	if err != nil {
		lFunc.Errorf("could not load profile '%s': %s", input.ProfileID, err)
		return nil, nil, err
	}
	if !profExists {
		return nil, nil, errs.ErrProfileNotFound
	}
	if profile.CAID != ca.ID {
		return nil, nil, errs.ErrProfileCA
	}

	return &OrderContext{
		Input:      input,
		CA:         *ca,
		ExternalCA: externalCA,
		Profile:    *profile,
	}, adapter, nil
}

func (svc *CAEngineBackend) RenewCertificate(ctx context.Context, input RenewCertificateInput) (*IssuedCertificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := validate.Struct(input)
	if err != nil {
		lFunc.Errorf("RenewCertificateInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	exists, cert, err := svc.repos.Certificates.SelectExistsByID(ctx, input.CertificateID)
	if err != nil {
		lFunc.Errorf("could not load certificate '%s': %s", input.CertificateID, err)
		return nil, err
	}
	if !exists {
		return nil, errs.ErrCertificateNotFound
	}

	if cert.RenewedByCertificateID != nil {
		return nil, errs.ErrCertificateAlreadyRenewed
	}

	if cert.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: certificate '%s' is %s", errs.ErrValidateBadRequest, cert.ID, cert.Status)
	}

	lFunc.Infof("renewing certificate '%s' (serial %s)", cert.ID, cert.SerialNumber)
	return svc.service.IssueCertificate(ctx, IssueCertificateInput{
		CAID:                     cert.CAID,
		ProfileID:                cert.ProfileID,
		ProjectID:                cert.ProjectID,
		Subject:                  models.Subject{CommonName: cert.CommonName},
		AltNames:                 cert.AltNames,
		KeyUsages:                cert.KeyUsages,
		ExtendedKeyUsages:        cert.ExtendedKeyUsages,
		KeyAlgorithm:             cert.KeyAlgorithm,
		Actor:                    input.Actor,
		IsRenewal:                true,
		RenewedFromCertificateID: cert.ID,
	})
}

func (svc *CAEngineBackend) RevokeCertificate(ctx context.Context, input RevokeCertificateInput) error {
	lFunc := helpers.ConfigureLogger(ctx, svc.logger)

	err := validate.Struct(input)
	if err != nil {
		lFunc.Errorf("RevokeCertificateInput struct validation error: %s", err)
		return errs.ErrValidateBadRequest
	}

	exists, ca, err := svc.repos.CAs.SelectExistsByID(ctx, input.CAID)
	if err != nil {
		lFunc.Errorf("could not load CA '%s': %s", input.CAID, err)
		return err
	}
	if !exists {
		return errs.ErrCANotFound
	}

	adapter, err := svc.adapterFor(ca.Type)
	if err != nil {
		return err
	}

	var externalCA *models.ExternalCertificateAuthority
	if ca.Type != models.CATypeInternal {
		ecaExists, eca, err := svc.repos.ExternalCAs.SelectExistsByCAID(ctx, ca.ID)
		if err != nil {
			return err
		}
		if !ecaExists || eca.Type != ca.Type {
			return errs.ErrCAType
		}
		externalCA = eca
	}

	certExists, cert, err := svc.repos.Certificates.SelectExistsByCAAndSerialNumber(ctx, ca.ID, input.SerialNumber)
	if err != nil {
		return err
	}
	if !certExists {
		return errs.ErrCertificateNotFound
	}
	if cert.Status == models.StatusRevoked {
		return errs.ErrCertificateAlreadyRevoked
	}

	lFunc.Infof("revoking certificate serial %s through CA '%s' (%s) with reason %s", input.SerialNumber, ca.Name, ca.Type, input.Reason)
	return adapter.RevokeCertificate(ctx, ca, externalCA, input.SerialNumber, input.Reason)
}
