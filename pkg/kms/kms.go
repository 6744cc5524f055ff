package kms

import "context"

// Encryptor seals one plaintext blob under a KMS master key.
type Encryptor func(ctx context.Context, plaintext []byte) ([]byte, error)

// Decryptor opens one ciphertext blob previously sealed by an Encryptor.
type Decryptor func(ctx context.Context, ciphertext []byte) ([]byte, error)

// Service is the envelope-encryption capability the issuance engine depends
// on. The engine never sees raw key material, only sealed blobs.
type Service interface {
	EncryptorForKey(kmsKeyID string) Encryptor
	DecryptorForKey(kmsKeyID string) Decryptor
}
