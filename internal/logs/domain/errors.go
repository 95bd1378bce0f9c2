package domain

import (
	"github.com/allisson/logvault/internal/errors"
)

// Ciphertext store errors.
var (
	// ErrLogNotFound indicates an unknown log for the tenant.
	ErrLogNotFound = errors.Wrap(errors.ErrNotFound, "log not found")

	// ErrLogExists indicates an encrypted name already registered for the tenant.
	ErrLogExists = errors.Wrap(errors.ErrConflict, "log already exists")

	// ErrLogKeyNotFound indicates a log without a key for the requested version.
	ErrLogKeyNotFound = errors.Wrap(errors.ErrNotFound, "log key not found")

	// ErrLogKeyExists indicates a second, different key for the same log and version.
	ErrLogKeyExists = errors.Wrap(errors.ErrConflict, "log key already exists")

	// ErrEntryExists indicates a duplicate entry id.
	ErrEntryExists = errors.Wrap(errors.ErrConflict, "log entry already exists")

	// ErrInactiveVersion indicates an append under a version that is not active.
	ErrInactiveVersion = errors.Wrap(errors.ErrConflict, "entries must be written under the active kek version")

	// ErrRetentionPolicyNotFound indicates a log without a retention policy.
	ErrRetentionPolicyNotFound = errors.Wrap(errors.ErrNotFound, "retention policy not found")

	// ErrInvalidRetentionPeriod indicates a zero retention period.
	ErrInvalidRetentionPeriod = errors.Wrap(errors.ErrInvalidInput, "retention period must be positive or unlimited")

	// ErrEmptySearch indicates a search without any token group.
	ErrEmptySearch = errors.Wrap(errors.ErrInvalidInput, "search requires at least one token")
)
