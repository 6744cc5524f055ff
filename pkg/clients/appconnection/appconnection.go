package appconnection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Infisical/infisical-sub034/pkg/errs"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/kms"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Service resolves third-party connections and decrypts their credentials
// before an adapter builds an external client from them.
type Service interface {
	FindByID(ctx context.Context, id string) (*models.AppConnection, error)
	ValidateUsage(ctx context.Context, app models.AppType, connectionID string, projectID string) (*models.AppConnection, error)
	DecryptCredentials(ctx context.Context, conn *models.AppConnection) (map[string]interface{}, error)
}

type resolver struct {
	repo     storage.AppConnectionRepo
	kms      kms.Service
	kmsKeyID string
	logger   *logrus.Entry
}

func NewService(logger *logrus.Entry, repo storage.AppConnectionRepo, kmsSvc kms.Service, kmsKeyID string) Service {
	return &resolver{
		repo:     repo,
		kms:      kmsSvc,
		kmsKeyID: kmsKeyID,
		logger:   logger,
	}
}

func (r *resolver) FindByID(ctx context.Context, id string) (*models.AppConnection, error) {
	exists, conn, err := r.repo.SelectExistsByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.ErrAppConnectionNotFound
	}

	return conn, nil
}

func (r *resolver) ValidateUsage(ctx context.Context, app models.AppType, connectionID string, projectID string) (*models.AppConnection, error) {
	lFunc := helpers.ConfigureLogger(ctx, r.logger)

	conn, err := r.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	// A connection outside the caller's project is reported as missing, not
	// as forbidden.
	if conn.ProjectID != projectID {
		lFunc.Warnf("connection '%s' belongs to another project", connectionID)
		return nil, errs.ErrAppConnectionNotFound
	}

	if conn.App != app {
		lFunc.Warnf("connection '%s' is of app type %s, expected %s", connectionID, conn.App, app)
		return nil, errs.ErrAppConnectionType
	}

	return conn, nil
}

func (r *resolver) DecryptCredentials(ctx context.Context, conn *models.AppConnection) (map[string]interface{}, error) {
	decrypt := r.kms.DecryptorForKey(r.kmsKeyID)

	plaintext, err := decrypt(ctx, conn.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt credentials for connection '%s': %w", conn.ID, err)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("could not decode credentials for connection '%s': %w", conn.ID, err)
	}

	return creds, nil
}
