// Package client is the SDK facade of logvault. It holds the tenant master
// secret (or the user's key pair) in memory, turns it into keys through the
// key hierarchy and talks to the key registry and the ciphertext store with
// nothing but ciphertext, wrapped keys and search tokens.
//
// A Client serves one principal. Create it with New, then call Initialize or
// InitializeWithKeyPair before anything else, and Close it to zero its keys.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
	"github.com/allisson/logvault/internal/keyhierarchy"
	"github.com/allisson/logvault/internal/logmanager"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
	"github.com/allisson/logvault/internal/rotation"
)

// Deps are the server-side services a Client calls. The in-process wiring
// passes the use cases directly.
type Deps struct {
	Keys      kekUsecase.KekService
	Logs      logsUsecase.LogStore
	Retention logsUsecase.RetentionService
	Logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAlgorithm sets the AEAD used for new DEKs and entries.
func WithAlgorithm(alg cryptoDomain.Algorithm) Option {
	return func(c *Client) {
		c.alg = alg
	}
}

// WithRotationConcurrency sets how many logs a rotation job moves at once.
func WithRotationConcurrency(n int) Option {
	return func(c *Client) {
		c.runnerOpts = append(c.runnerOpts, rotation.WithConcurrency(n))
	}
}

// WithRotationMaxRetries sets how often a failing log is retried in a job.
func WithRotationMaxRetries(n int) Option {
	return func(c *Client) {
		c.runnerOpts = append(c.runnerOpts, rotation.WithMaxRetries(n))
	}
}

// WithRotationBackOff sets the waits between retries of a failing log.
func WithRotationBackOff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.runnerOpts = append(c.runnerOpts, rotation.WithBackOff(initial, max))
	}
}

// Client is the logvault SDK for one principal.
type Client struct {
	keys       kekUsecase.KekService
	store      logsUsecase.LogStore
	retention  logsUsecase.RetentionService
	logger     *slog.Logger
	alg        cryptoDomain.Algorithm
	runnerOpts []rotation.Option

	aeadManager cryptoService.AEADManager
	sealer      cryptoService.Sealer
	hierarchy   *keyhierarchy.Manager

	// mu is held for reading by every operation and for writing while the
	// key material changes, so keys are never swapped under a running call.
	mu        sync.RWMutex
	principal *authDomain.Principal
	ring      *keyRing
	logs      *logmanager.Manager
}

// New creates an uninitialized Client.
func New(deps Deps, opts ...Option) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		keys:        deps.Keys,
		store:       deps.Logs,
		retention:   deps.Retention,
		logger:      logger,
		alg:         cryptoDomain.AESGCM,
		aeadManager: cryptoService.NewAEADManager(),
		sealer:      cryptoService.NewSealer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hierarchy = keyhierarchy.NewManager(cryptoService.NewKeyDeriver(), c.aeadManager, c.sealer, c.alg)
	return c
}

// Initialize loads the master secret. The secret is copied; the caller may
// zero its own copy afterwards. A nil principal gives an offline client that
// can only split the secret.
func (c *Client) Initialize(ctx context.Context, principal *authDomain.Principal, masterSecret []byte) error {
	if len(masterSecret) == 0 {
		return fmt.Errorf("failed to initialize client: %w", cryptoDomain.ErrEmptySecret)
	}
	secret := make([]byte, len(masterSecret))
	copy(secret, masterSecret)
	return c.initialize(principal, secret, nil)
}

// InitializeWithKeyPair loads the user's key pair instead of the master
// secret. Such a client reads through wrapped grants and can complete a
// recovery sealed to the key pair's public key.
func (c *Client) InitializeWithKeyPair(
	ctx context.Context,
	principal *authDomain.Principal,
	keyPair *cryptoDomain.KeyPair,
) error {
	if keyPair == nil {
		return fmt.Errorf("failed to initialize client: %w", ErrNoKeyPair)
	}
	pair := *keyPair
	return c.initialize(principal, nil, &pair)
}

func (c *Client) initialize(principal *authDomain.Principal, secret []byte, keyPair *cryptoDomain.KeyPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ring != nil {
		c.ring.close()
	}
	tenantID, userID := "", ""
	if principal != nil {
		tenantID, userID = principal.TenantID, principal.UserID
		p := *principal
		c.principal = &p
	} else {
		c.principal = nil
	}

	c.ring = newKeyRing(tenantID, userID, c.keys, c.hierarchy, secret, keyPair)
	c.logs = nil
	if c.principal != nil {
		c.logs = logmanager.New(tenantID, userID, c.hierarchy, c.aeadManager, c.store, c.ring, c.logger)
	}
	return nil
}

// Close zeroes the master secret, the private key and every cached KEK. The
// client must be initialized again before further use.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ring != nil {
		c.ring.close()
	}
	c.ring = nil
	c.logs = nil
	c.principal = nil
	return nil
}

// session returns the principal and the key ring, failing before
// initialization or without a principal. Callers hold c.mu for reading.
func (c *Client) session() (*authDomain.Principal, *keyRing, error) {
	if c.ring == nil {
		return nil, nil, ErrNotInitialized
	}
	if c.principal == nil {
		return nil, nil, ErrNotAuthenticated
	}
	return c.principal, c.ring, nil
}

func (c *Client) runner() *rotation.Runner {
	return rotation.NewRunner(c.keys, c.logger, c.runnerOpts...)
}
