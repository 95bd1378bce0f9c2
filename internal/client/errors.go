package client

import (
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/errors"
)

var (
	// ErrNotInitialized indicates a call before Initialize or after Close.
	ErrNotInitialized = errors.New("client not initialized")

	// ErrNotAuthenticated indicates a server call from a client initialized
	// without a principal.
	ErrNotAuthenticated = errors.Wrap(errors.ErrUnauthorized, "client has no principal")

	// ErrNoMasterSecret indicates an operation that needs the master secret on
	// a client initialized with a key pair only.
	ErrNoMasterSecret = errors.Wrap(errors.ErrInvalidInput, "client holds no master secret")

	// ErrNoKeyPair indicates an operation that needs the user's key pair on a
	// client initialized with the master secret only.
	ErrNoKeyPair = errors.Wrap(errors.ErrInvalidInput, "client holds no key pair")

	// ErrSecretMismatch indicates recovered shares that do not rebuild the
	// secret the tenant's keys were derived from.
	ErrSecretMismatch = errors.Wrap(cryptoDomain.ErrKeyMismatch, "recovered secret does not open existing keys")

	// ErrSecretUnverified indicates a recovering user who can read none of
	// the tenant's log keys, so the recovered secret cannot be checked.
	ErrSecretUnverified = errors.Wrap(errors.ErrForbidden, "recovered secret cannot be verified: no readable log key")
)
