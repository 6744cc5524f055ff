package services

import (
	"context"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
)

// MarkCertificateRevoked records a revocation locally after the backend
// already accepted it. Runs in its own transaction so a concurrent revoke of
// the same serial loses cleanly.
func MarkCertificateRevoked(ctx context.Context, deps IssuanceDeps, caID string, serialNumber string, reason models.CrlReason) error {
	lFunc := helpers.ConfigureLogger(ctx, deps.Logger)

	err := deps.Tx.Transaction(ctx, func(repos storage.Repositories) error {
		exists, cert, err := repos.Certificates.SelectExistsByCAAndSerialNumber(ctx, caID, serialNumber)
		if err != nil {
			return err
		}
		if !exists {
			return errs.ErrCertificateNotFound
		}
		if cert.Status == models.StatusRevoked {
			return errs.ErrCertificateAlreadyRevoked
		}

		now := time.Now()
		cert.Status = models.StatusRevoked
		cert.RevocationTimestamp = &now
		cert.RevocationReason = &reason

		_, err = repos.Certificates.Update(ctx, cert)
		return err
	})
	if err != nil {
		lFunc.Errorf("could not record revocation of serial %s: %s", serialNumber, err)
		return err
	}

	return nil
}
