package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/kms"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/jakehl/goid"
	"github.com/sirupsen/logrus"
)

// IssuanceDeps is the shared dependency set every backend adapter uses to
// record an issued certificate.
type IssuanceDeps struct {
	Logger   *logrus.Entry
	Tx       storage.TxRunner
	KMS      kms.Service
	KMSKeyID string
}

// IssuedMaterial is what the adapter got back from its external CA (or the
// local signer). ExternalID is the backend's own identifier for the
// certificate, logged for manual reconciliation when persistence fails after
// external issuance already happened.
type IssuedMaterial struct {
	CertificatePEM string
	ChainPEM       string
	PrivateKeyPEM  string
	ExternalID     string
}

// ResolveOrderCSR either normalizes the caller-provided CSR or generates a
// fresh keypair and builds one from the requested subject and extensions. The
// private key PEM is empty in the first case.
func ResolveOrderCSR(order OrderContext) (string, string, error) {
	if order.Input.CSR != "" {
		return helpers.EnsureCSRPEM(order.Input.CSR), "", nil
	}

	key, err := helpers.GenerateKeyPair(order.Input.KeyAlgorithm)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", errs.ErrValidateBadRequest, err)
	}

	csrPEM, err := helpers.GenerateCSR(order.Input.Subject, order.Input.AltNames, order.Input.KeyUsages, order.Input.ExtendedKeyUsages, key)
	if err != nil {
		return "", "", err
	}

	keyPEM, err := helpers.PrivateKeyPEM(key)
	if err != nil {
		return "", "", err
	}

	return csrPEM, keyPEM, nil
}

// PersistIssuedCertificate encrypts the issued material and records it in one
// transaction: Certificate, CertificateBody, optionally CertificateSecret,
// plus the renewal back-references. A failure here rolls everything back and
// surfaces a hard error; the certificate still exists at the external CA.
func PersistIssuedCertificate(ctx context.Context, deps IssuanceDeps, order OrderContext, material IssuedMaterial) (*IssuedCertificate, error) {
	lFunc := helpers.ConfigureLogger(ctx, deps.Logger)

	leaf, err := helpers.ParseCertificatePEM([]byte(material.CertificatePEM))
	if err != nil {
		lFunc.Errorf("could not parse issued certificate (external id %s): %s", material.ExternalID, err)
		return nil, fmt.Errorf("could not parse issued certificate: %w", err)
	}

	encrypt := deps.KMS.EncryptorForKey(deps.KMSKeyID)

	encCert, err := encrypt(ctx, []byte(material.CertificatePEM))
	if err != nil {
		return nil, err
	}

	encChain, err := encrypt(ctx, []byte(material.ChainPEM))
	if err != nil {
		return nil, err
	}

	var encKey []byte
	if material.PrivateKeyPEM != "" {
		encKey, err = encrypt(ctx, []byte(material.PrivateKeyPEM))
		if err != nil {
			return nil, err
		}
	}

	validityDays := int(leaf.NotAfter.Sub(leaf.NotBefore) / (24 * time.Hour))
	if validityDays < 1 {
		validityDays = 1
	}

	cert := models.Certificate{
		ID:                 goid.NewV4UUID().String(),
		CAID:               order.CA.ID,
		ProfileID:          order.Profile.ID,
		ProjectID:          order.CA.ProjectID,
		Status:             models.StatusActive,
		FriendlyName:       leaf.Subject.CommonName,
		CommonName:         leaf.Subject.CommonName,
		AltNames:           order.Input.AltNames,
		SerialNumber:       leaf.SerialNumber.Text(16),
		NotBefore:          leaf.NotBefore,
		NotAfter:           leaf.NotAfter,
		KeyUsages:          order.Input.KeyUsages,
		ExtendedKeyUsages:  order.Input.ExtendedKeyUsages,
		KeyAlgorithm:       order.Input.KeyAlgorithm,
		SignatureAlgorithm: leaf.SignatureAlgorithm.String(),
		RenewBeforeDays:    helpers.CalculateRenewBeforeDays(order.Profile.APIConfig.AutoRenew, order.Profile.APIConfig.RenewBeforeDays, validityDays),
	}

	if order.Input.IsRenewal {
		renewedFrom := order.Input.RenewedFromCertificateID
		cert.RenewedFromCertificateID = &renewedFrom
	}

	err = deps.Tx.Transaction(ctx, func(repos storage.Repositories) error {
		if order.Input.IsRenewal {
			exists, original, err := repos.Certificates.SelectForUpdateByID(ctx, order.Input.RenewedFromCertificateID)
			if err != nil {
				return err
			}
			if !exists {
				return errs.ErrCertificateNotFound
			}
			if original.RenewedByCertificateID != nil {
				return errs.ErrCertificateAlreadyRenewed
			}

			original.RenewedByCertificateID = &cert.ID
			if _, err := repos.Certificates.Update(ctx, original); err != nil {
				return err
			}
		}

		if _, err := repos.Certificates.Insert(ctx, &cert); err != nil {
			return err
		}

		if _, err := repos.CertificateBodies.Insert(ctx, &models.CertificateBody{
			CertID:                    cert.ID,
			EncryptedCertificate:      encCert,
			EncryptedCertificateChain: encChain,
		}); err != nil {
			return err
		}

		if encKey != nil {
			if _, err := repos.CertificateSecrets.Insert(ctx, &models.CertificateSecret{
				CertID:              cert.ID,
				EncryptedPrivateKey: encKey,
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		lFunc.Errorf("could not record issued certificate, external CA already issued it (external id %s, serial %s): %s", material.ExternalID, cert.SerialNumber, err)
		return nil, err
	}

	lFunc.Infof("issued certificate %s with serial %s for %s", cert.ID, cert.SerialNumber, helpers.BuildDistinguishedName(helpers.PkixNameToSubject(leaf.Subject)))

	return &IssuedCertificate{
		CertificateID:    cert.ID,
		SerialNumber:     cert.SerialNumber,
		Certificate:      material.CertificatePEM,
		CertificateChain: material.ChainPEM,
		PrivateKey:       material.PrivateKeyPEM,
		CA:               order.CA,
	}, nil
}
