// Package errors defines the sentinel errors shared by every logvault module.
//
// Domain packages wrap these sentinels with their own messages so callers can
// branch on the category (errors.Is) and the HTTP layer can map the category to
// a status code without knowing the domain.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist for the tenant.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the operation collides with concurrent or existing state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates malformed input or input rejected by a crypto check.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller without access to the resource.
	ErrForbidden = errors.New("forbidden")
)

// New creates a plain error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Wrap prefixes err with message, keeping err in the chain. A nil err yields nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join combines errs into one error, dropping nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
