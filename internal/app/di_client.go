package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	"github.com/allisson/logvault/internal/client"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
)

const (
	rotationBackOffInitial = 200 * time.Millisecond
	rotationBackOffMax     = 5 * time.Second
)

// KMSService returns the KMS service used to unseal the master secret.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// MasterSecret loads the tenant master secret from the first configured
// source: the raw base64 secret, a KMS-sealed ciphertext or a passphrase.
// The caller owns the returned slice and should zero it.
func (c *Container) MasterSecret(ctx context.Context) ([]byte, error) {
	switch {
	case c.config.MasterSecret != "":
		secret, err := base64.StdEncoding.DecodeString(c.config.MasterSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode master secret: %w", err)
		}
		return secret, nil
	case c.config.MasterSecretCiphertext != "":
		if c.config.MasterSecretKMSKeyURI == "" {
			return nil, fmt.Errorf("MASTER_SECRET_KMS_KEY_URI is required with a sealed master secret: %w",
				client.ErrNoMasterSecret)
		}
		return cryptoService.UnsealMasterSecret(
			ctx,
			c.KMSService(),
			c.config.MasterSecretKMSKeyURI,
			c.config.MasterSecretCiphertext,
		)
	case c.config.MasterSecretPassphrase != "":
		return cryptoService.DeriveMasterSecret([]byte(c.config.MasterSecretPassphrase), c.config.TenantID)
	default:
		return nil, client.ErrNoMasterSecret
	}
}

// Client returns an initialized SDK client acting for TENANT_ID and USER_ID
// against the in-process services. The caller must Close it.
func (c *Container) Client(ctx context.Context) (*client.Client, error) {
	if c.config.TenantID == "" || c.config.UserID == "" {
		return nil, fmt.Errorf("TENANT_ID and USER_ID are required: %w", authDomain.ErrEmptyIdentity)
	}

	keys, err := c.KekService()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek service for client: %w", err)
	}
	store, err := c.LogStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get log store for client: %w", err)
	}
	retention, err := c.RetentionService()
	if err != nil {
		return nil, fmt.Errorf("failed to get retention service for client: %w", err)
	}

	sdk, err := c.newClient(client.Deps{Keys: keys, Logs: store, Retention: retention, Logger: c.Logger()})
	if err != nil {
		return nil, err
	}

	principal := &authDomain.Principal{
		TenantID: c.config.TenantID,
		UserID:   c.config.UserID,
		Role:     authDomain.RoleAdmin,
	}
	if err := c.initializeClient(ctx, sdk, principal); err != nil {
		return nil, err
	}
	return sdk, nil
}

// OfflineClient returns a client holding only the master secret. It reaches
// no database and can only split the secret.
func (c *Container) OfflineClient(ctx context.Context) (*client.Client, error) {
	sdk, err := c.newClient(client.Deps{Logger: c.Logger()})
	if err != nil {
		return nil, err
	}
	if err := c.initializeClient(ctx, sdk, nil); err != nil {
		return nil, err
	}
	return sdk, nil
}

func (c *Container) newClient(deps client.Deps) (*client.Client, error) {
	opts := []client.Option{
		client.WithRotationBackOff(rotationBackOffInitial, rotationBackOffMax),
	}
	if c.config.DEKAlgorithm != "" {
		alg, err := cryptoDomain.ParseAlgorithm(c.config.DEKAlgorithm)
		if err != nil {
			return nil, fmt.Errorf("invalid DEK_ALGORITHM: %w", err)
		}
		opts = append(opts, client.WithAlgorithm(alg))
	}
	if c.config.RotationConcurrency > 0 {
		opts = append(opts, client.WithRotationConcurrency(c.config.RotationConcurrency))
	}
	if c.config.RotationMaxRetries > 0 {
		opts = append(opts, client.WithRotationMaxRetries(c.config.RotationMaxRetries))
	}
	return client.New(deps, opts...), nil
}

func (c *Container) initializeClient(ctx context.Context, sdk *client.Client, principal *authDomain.Principal) error {
	secret, err := c.MasterSecret(ctx)
	if err != nil {
		return fmt.Errorf("failed to load master secret: %w", err)
	}
	defer cryptoDomain.Zero(secret)

	if err := sdk.Initialize(ctx, principal, secret); err != nil {
		return err
	}
	return nil
}
