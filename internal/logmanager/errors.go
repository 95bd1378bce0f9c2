package logmanager

import (
	"github.com/allisson/logvault/internal/errors"
)

var (
	// ErrEmptyLogName indicates an empty log name.
	ErrEmptyLogName = errors.Wrap(errors.ErrInvalidInput, "log name is required")

	// ErrEmptyQuery indicates a search without words or filters.
	ErrEmptyQuery = errors.Wrap(errors.ErrInvalidInput, "search query has no features")

	// ErrMalformedName indicates an encrypted log name that is not base64url.
	ErrMalformedName = errors.Wrap(errors.ErrInvalidInput, "malformed encrypted log name")
)
