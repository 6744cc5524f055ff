package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Infisical/infisical-sub034/pkg/clients/appconnection"
	"github.com/Infisical/infisical-sub034/pkg/config"
	"github.com/Infisical/infisical-sub034/pkg/helpers"
	"github.com/Infisical/infisical-sub034/pkg/jobs"
	"github.com/Infisical/infisical-sub034/pkg/kms"
	"github.com/Infisical/infisical-sub034/pkg/services"
	"github.com/Infisical/infisical-sub034/pkg/services/acmeca"
	"github.com/Infisical/infisical-sub034/pkg/services/adcs"
	"github.com/Infisical/infisical-sub034/pkg/services/awspca"
	"github.com/Infisical/infisical-sub034/pkg/services/internalca"
	"github.com/Infisical/infisical-sub034/pkg/storage/postgres"
	log "github.com/sirupsen/logrus"
)

const serviceID = "issuer"

func main() {
	log.SetFormatter(helpers.LogFormatter)

	conf, err := config.LoadConfig[config.IssuerConfig](nil)
	if err != nil {
		log.Fatalf("could not load config: %s", err)
	}

	globalLogLevel, err := log.ParseLevel(string(conf.Logs.Level))
	if err != nil {
		log.Warn("unknown log level. defaulting to 'info'")
		globalLogLevel = log.InfoLevel
	}
	log.SetLevel(globalLogLevel)
	log.Infof("global log level set to '%s'", globalLogLevel)

	lSvc := helpers.SetupLogger(config.LogLevel(globalLogLevel.String()), serviceID, "Service")
	lStorage := helpers.SetupLogger(conf.Storage.LogLevel, serviceID, "Storage")
	lKMS := helpers.SetupLogger(config.LogLevel(globalLogLevel.String()), serviceID, "KMS")
	lJobs := helpers.SetupLogger(config.LogLevel(globalLogLevel.String()), serviceID, "Jobs")

	db, err := postgres.CreatePostgresDBConnection(lStorage, conf.Storage)
	if err != nil {
		log.Fatalf("could not connect to postgres: %s", err)
	}

	repos, txRunner, err := postgres.NewRepositories(lStorage, db)
	if err != nil {
		log.Fatalf("could not initialize repositories: %s", err)
	}

	awsConf, err := config.GetAwsSdkConfig(context.Background(), conf.KMS.AWSSDKConfig)
	if err != nil {
		log.Fatalf("could not build AWS config for KMS: %s", err)
	}
	kmsSvc := kms.NewAWSKMSService(lKMS, *awsConf)

	issuanceDeps := services.IssuanceDeps{
		Logger:   lSvc,
		Tx:       txRunner,
		KMS:      kmsSvc,
		KMSKeyID: conf.KMS.KeyID,
	}

	appConns := appconnection.NewService(lSvc, repos.AppConnections, kmsSvc, conf.KMS.KeyID)

	pollConf := services.PollConfig{
		MaxAttempts: conf.Polling.MaxAttempts,
	}
	if conf.Polling.InitialDelay != "" {
		delay, err := time.ParseDuration(conf.Polling.InitialDelay)
		if err != nil {
			log.Fatalf("invalid polling.initial_delay: %s", err)
		}
		pollConf.InitialDelay = delay
	}

	var propagationTimeout time.Duration
	if conf.ACME.PropagationTimeout != "" {
		propagationTimeout, err = time.ParseDuration(conf.ACME.PropagationTimeout)
		if err != nil {
			log.Fatalf("invalid acme.propagation_timeout: %s", err)
		}
	}

	var adcsRequestTimeout time.Duration
	if conf.ADCS.RequestTimeout != "" {
		adcsRequestTimeout, err = time.ParseDuration(conf.ADCS.RequestTimeout)
		if err != nil {
			log.Fatalf("invalid adcs.request_timeout: %s", err)
		}
	}

	svc, err := services.NewCAService(services.CAEngineBuilder{
		Logger:       lSvc,
		Repositories: repos,
		Adapters: []services.CAAdapter{
			internalca.NewInternalCAAdapter(internalca.InternalCABuilder{
				Logger:       lSvc,
				Repositories: repos,
				Issuance:     issuanceDeps,
			}),
			awspca.NewAWSPCAAdapter(awspca.AWSPCABuilder{
				Logger:         lSvc,
				Repositories:   repos,
				AppConnections: appConns,
				Issuance:       issuanceDeps,
				Poll:           pollConf,
			}),
			acmeca.NewACMEAdapter(acmeca.ACMEBuilder{
				Logger:             lSvc,
				Repositories:       repos,
				AppConnections:     appConns,
				Issuance:           issuanceDeps,
				UserAgent:          conf.ACME.UserAgent,
				PropagationTimeout: propagationTimeout,
			}),
			adcs.NewADCSAdapter(adcs.ADCSBuilder{
				Logger:         lSvc,
				Repositories:   repos,
				AppConnections: appConns,
				Issuance:       issuanceDeps,
				SkipTLSVerify:  conf.ADCS.SkipTLSVerify,
				RequestTimeout: adcsRequestTimeout,
			}),
		},
	})
	if err != nil {
		log.Fatalf("could not build CA service: %s", err)
	}

	var scheduler *jobs.JobScheduler
	if conf.Renewal.Enabled {
		frequency := conf.Renewal.Frequency
		if frequency == "" {
			frequency = "0 * * * *"
		}

		renewalJob := jobs.NewRenewalJob(lJobs, svc, repos)
		scheduler = jobs.NewJobScheduler(lJobs, frequency, renewalJob)
		scheduler.Start()
		log.Infof("renewal sweep scheduled, next run at %s", scheduler.NextRun())
	} else {
		log.Info("renewal sweep disabled")
	}

	log.Info("issuer engine ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	if scheduler != nil {
		scheduler.Stop()
	}
	log.Info("shutting down")
}
