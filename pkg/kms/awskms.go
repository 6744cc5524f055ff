package kms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/sirupsen/logrus"
)

var lAWSKMS *logrus.Entry

type AWSKMSService struct {
	kmscli *awskms.Client
}

func NewAWSKMSService(logger *logrus.Entry, awsConf aws.Config) Service {
	lAWSKMS = logger.WithField("subsystem-provider", "AWS-KMS")

	return &AWSKMSService{
		kmscli: awskms.NewFromConfig(awsConf),
	}
}

func (s *AWSKMSService) EncryptorForKey(kmsKeyID string) Encryptor {
	return func(ctx context.Context, plaintext []byte) ([]byte, error) {
		out, err := s.kmscli.Encrypt(ctx, &awskms.EncryptInput{
			KeyId:     aws.String(kmsKeyID),
			Plaintext: plaintext,
		})
		if err != nil {
			lAWSKMS.Errorf("could not encrypt with key %s: %s", kmsKeyID, err)
			return nil, fmt.Errorf("kms encrypt: %w", err)
		}

		return out.CiphertextBlob, nil
	}
}

func (s *AWSKMSService) DecryptorForKey(kmsKeyID string) Decryptor {
	return func(ctx context.Context, ciphertext []byte) ([]byte, error) {
		out, err := s.kmscli.Decrypt(ctx, &awskms.DecryptInput{
			KeyId:          aws.String(kmsKeyID),
			CiphertextBlob: ciphertext,
		})
		if err != nil {
			lAWSKMS.Errorf("could not decrypt with key %s: %s", kmsKeyID, err)
			return nil, fmt.Errorf("kms decrypt: %w", err)
		}

		return out.Plaintext, nil
	}
}
