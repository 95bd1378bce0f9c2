package domain

import (
	"github.com/allisson/logvault/internal/errors"
)

// Authentication errors.
var (
	// ErrTokenNotFound indicates no token matches the given id or hash.
	ErrTokenNotFound = errors.Wrap(errors.ErrNotFound, "access token not found")

	// ErrInvalidCredentials covers unknown, expired and revoked tokens alike.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")

	// ErrInvalidRole indicates a role other than admin or member.
	ErrInvalidRole = errors.Wrap(errors.ErrInvalidInput, "invalid role")

	// ErrEmptyIdentity indicates a token request without tenant or user.
	ErrEmptyIdentity = errors.Wrap(errors.ErrInvalidInput, "tenant and user are required")
)
