package domain

import (
	"github.com/allisson/logvault/internal/errors"
)

// Key registry errors.
var (
	// ErrKEKVersionNotFound indicates an unknown version for the tenant.
	ErrKEKVersionNotFound = errors.Wrap(errors.ErrNotFound, "kek version not found")

	// ErrNoActiveVersion indicates a tenant without any KEK version yet.
	ErrNoActiveVersion = errors.Wrap(errors.ErrNotFound, "no active kek version")

	// ErrGrantNotFound indicates that a user holds no grant for a version.
	ErrGrantNotFound = errors.Wrap(errors.ErrNotFound, "kek grant not found")

	// ErrPublicKeyNotFound indicates a user without a registered public key.
	ErrPublicKeyNotFound = errors.Wrap(errors.ErrNotFound, "public key not found")

	// ErrAccessDenied indicates that the caller has no grant for the KEK
	// version an item is encrypted under.
	ErrAccessDenied = errors.Wrap(errors.ErrForbidden, "access denied")

	// ErrOperationInProgress indicates a rotation or recovery already holds the tenant.
	ErrOperationInProgress = errors.Wrap(errors.ErrConflict, "rotation or recovery in progress")

	// ErrVersionConflict indicates a lost optimistic concurrency race; callers may retry.
	ErrVersionConflict = errors.Wrap(errors.ErrConflict, "tenant key state changed concurrently")

	// ErrVersionDeprecated indicates an attempt to grant a deprecated version.
	ErrVersionDeprecated = errors.Wrap(errors.ErrInvalidInput, "kek version is deprecated")

	// ErrRotationJobNotFound indicates an unknown rotation job.
	ErrRotationJobNotFound = errors.Wrap(errors.ErrNotFound, "rotation job not found")

	// ErrRotationItemNotFound indicates a log that is not part of the job.
	ErrRotationItemNotFound = errors.Wrap(errors.ErrNotFound, "rotation item not found")

	// ErrRotationJobClosed indicates progress reported against a completed
	// or superseded job.
	ErrRotationJobClosed = errors.Wrap(errors.ErrConflict, "rotation job already closed")

	// ErrRecoverySessionNotFound indicates an unknown, expired or finished session.
	ErrRecoverySessionNotFound = errors.Wrap(errors.ErrNotFound, "recovery session not found")

	// ErrRecoveryCompleting indicates that another caller is completing the session.
	ErrRecoveryCompleting = errors.Wrap(errors.ErrConflict, "recovery session is being completed")

	// ErrInvalidCompletionToken indicates a completion token that does not match the session.
	ErrInvalidCompletionToken = errors.Wrap(errors.ErrForbidden, "invalid completion token")
)
