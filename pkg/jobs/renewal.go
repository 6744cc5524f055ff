package jobs

import (
	"time"

	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/models"
	"github.com/Infisical/infisical-sub034/pkg/services"
	"github.com/Infisical/infisical-sub034/pkg/storage"
	"github.com/sirupsen/logrus"
)

// RenewalJob sweeps for certificates inside their renew-before window and
// reissues them through the facade. One failed renewal never stops the sweep.
type RenewalJob struct {
	logger  *logrus.Entry
	service services.CAService
	repos   storage.Repositories
}

func NewRenewalJob(logger *logrus.Entry, service services.CAService, repos storage.Repositories) *RenewalJob {
	return &RenewalJob{
		logger:  logger,
		service: service,
		repos:   repos,
	}
}

func (j *RenewalJob) Run() {
	ctx := helpers.InitContext()
	lFunc := helpers.ConfigureLogger(ctx, j.logger)

	candidates := []models.Certificate{}
	err := j.repos.Certificates.SelectRenewalCandidates(ctx, time.Now(), storage.StorageListRequest[models.Certificate]{
		ExhaustiveRun: true,
		ApplyFunc: func(cert models.Certificate) {
			candidates = append(candidates, cert)
		},
	})
	if err != nil {
		lFunc.Errorf("could not list renewal candidates: %s", err)
		return
	}

	if len(candidates) == 0 {
		lFunc.Debugf("no certificates due for renewal")
		return
	}

	lFunc.Infof("renewing %d certificate(s)", len(candidates))

	renewed := 0
	for _, cert := range candidates {
		_, err := j.service.RenewCertificate(ctx, services.RenewCertificateInput{
			CertificateID: cert.ID,
			Actor:         services.Actor{Type: "system", ID: "renewal-sweep"},
		})
		if err != nil {
			lFunc.Errorf("could not renew certificate '%s' (serial %s): %s", cert.ID, cert.SerialNumber, err)
			continue
		}
		renewed++
	}

	lFunc.Infof("renewal sweep finished, %d/%d renewed", renewed, len(candidates))
}
