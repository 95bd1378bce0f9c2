package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// KMSService opens gocloud.dev secrets keepers. The client uses it to unseal
// a master secret that is stored KMS-encrypted instead of in plain config.
type KMSService interface {
	// OpenKeeper opens a keeper for keyURI. Supported schemes: gcpkms://,
	// awskms://, azurekeyvault://, hashivault:// and base64key://.
	OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error)
}

type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// SealMasterSecret encrypts secret with the keeper at keyURI and returns the
// base64 ciphertext accepted by UnsealMasterSecret.
func SealMasterSecret(ctx context.Context, kms KMSService, keyURI string, secret []byte) (string, error) {
	keeper, err := kms.OpenKeeper(ctx, keyURI)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = keeper.Close()
	}()

	ciphertext, err := keeper.Encrypt(ctx, secret)
	if err != nil {
		return "", fmt.Errorf("failed to seal master secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// UnsealMasterSecret opens keyURI and decrypts the base64 sealed master secret.
func UnsealMasterSecret(ctx context.Context, kms KMSService, keyURI, sealed string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sealed master secret: %w", err)
	}

	keeper, err := kms.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = keeper.Close()
	}()

	secret, err := keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal master secret: %w", err)
	}
	return secret, nil
}
