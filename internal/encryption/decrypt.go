// Package encryption opens secrets that are stored sealed with AWS KMS, either
// as raw KMS ciphertext or as AWS Encryption SDK messages.
package encryption

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/client"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/clientconfig"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/materials"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/providers/kmsprovider"
	"github.com/chainifynet/aws-encryption-sdk-go/pkg/suite"

	"github.com/cruxstack/form-mail-relay-go/internal/config"
)

// MockedKeyID short-circuits decryption in debug mode so secrets can be given
// in plaintext.
const MockedKeyID = "MOCKED_KEY_ID"

// KMSAPI is the subset of the KMS client used for raw decryption.
type KMSAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// NewDecrypter picks a decrypter matching APP_SECRETS_ENCRYPTION.
func NewDecrypter(cfg *config.Config) (config.Decrypter, error) {
	if cfg.DebugMode && cfg.SecretsKmsKeyID == MockedKeyID {
		return &PlaintextDecrypter{}, nil
	}

	switch cfg.SecretsEncryption {
	case "kms":
		if cfg.AWSConfig == nil {
			return nil, fmt.Errorf("aws config is required for kms decryption")
		}
		return NewKMSDecrypter(kms.NewFromConfig(*cfg.AWSConfig)), nil
	case "envelope":
		return NewEnvelopeDecrypter()
	default:
		return nil, fmt.Errorf("unknown secrets encryption: %s", cfg.SecretsEncryption)
	}
}

// KMSDecrypter opens base64 ciphertext blobs produced by kms:Encrypt.
type KMSDecrypter struct {
	Client KMSAPI
}

func NewKMSDecrypter(client KMSAPI) *KMSDecrypter {
	return &KMSDecrypter{Client: client}
}

func (d *KMSDecrypter) Decrypt(ctx context.Context, keyID, encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 ciphertext: %w", err)
	}

	out, err := d.Client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: blob,
		KeyId:          aws.String(keyID),
	})
	if err != nil {
		return "", fmt.Errorf("kms decrypt failed: %w", err)
	}

	return string(out.Plaintext), nil
}

// EnvelopeDecrypter opens AWS Encryption SDK messages.
type EnvelopeDecrypter struct {
	client *client.Client
}

func NewEnvelopeDecrypter() (*EnvelopeDecrypter, error) {
	cfg, err := clientconfig.NewConfigWithOpts(
		clientconfig.WithCommitmentPolicy(suite.CommitmentPolicyForbidEncryptAllowDecrypt),
	)
	if err != nil {
		return nil, fmt.Errorf("client config setup failed: %w", err)
	}
	return &EnvelopeDecrypter{client: client.NewClientWithConfig(cfg)}, nil
}

func (d *EnvelopeDecrypter) Decrypt(ctx context.Context, keyID, encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	kmsKeyProvider, err := kmsprovider.New(keyID)
	if err != nil {
		return "", fmt.Errorf("kms key provider setup failed: %w", err)
	}

	cmm, err := materials.NewDefault(kmsKeyProvider)
	if err != nil {
		return "", fmt.Errorf("materials manager setup failed: %w", err)
	}

	cipherText, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid base64 ciphertext: %w", err)
	}

	plaintext, _, err := d.client.Decrypt(ctx, cipherText, cmm)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}

// PlaintextDecrypter returns values unchanged.
type PlaintextDecrypter struct{}

func (PlaintextDecrypter) Decrypt(_ context.Context, _, value string) (string, error) {
	return value, nil
}
