// Package usecase implements the server side of encrypted logs: a
// ciphertext store that enforces grants without ever seeing plaintext, and
// retention of stored entries.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// LogRepository persists log records.
type LogRepository interface {
	// Create returns ErrLogExists when the encrypted name is taken.
	Create(ctx context.Context, log *logsDomain.Log) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*logsDomain.Log, error)
	GetByName(ctx context.Context, tenantID, encryptedName string) (*logsDomain.Log, error)
	List(ctx context.Context, tenantID string) ([]*logsDomain.Log, error)
	ListIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error)
	UpdateName(ctx context.Context, log *logsDomain.Log) error
}

// LogKeyRepository persists wrapped DEKs.
type LogKeyRepository interface {
	// Create returns ErrLogKeyExists when the log already has a key for the version.
	Create(ctx context.Context, key *logsDomain.LogKey) error
	Get(ctx context.Context, tenantID string, logID, versionID uuid.UUID) (*logsDomain.LogKey, error)
	GetByName(
		ctx context.Context,
		tenantID string,
		versionID uuid.UUID,
		encryptedName string,
	) (*logsDomain.LogKey, error)
	List(ctx context.Context, tenantID string, logID uuid.UUID) ([]*logsDomain.LogKey, error)
}

// EntryRepository persists encrypted entries and their search tokens.
type EntryRepository interface {
	Create(ctx context.Context, entry *logsDomain.EncryptedLogEntry) error
	// List returns entries ordered by timestamp, then id.
	List(ctx context.Context, tenantID string, filter logsDomain.EntryFilter) ([]*logsDomain.EncryptedLogEntry, error)
	// Search returns entries holding every token of at least one query group.
	Search(ctx context.Context, tenantID string, query logsDomain.SearchQuery) ([]*logsDomain.EncryptedLogEntry, error)
	CountBefore(ctx context.Context, tenantID string, logID uuid.UUID, cutoff time.Time) (int64, error)
	ListBefore(
		ctx context.Context,
		tenantID string,
		logID uuid.UUID,
		cutoff time.Time,
		limit int,
	) ([]*logsDomain.EncryptedLogEntry, error)
	Delete(ctx context.Context, tenantID string, ids []uuid.UUID) (int64, error)
}

// RetentionPolicyRepository persists retention policies.
type RetentionPolicyRepository interface {
	Upsert(ctx context.Context, policy *logsDomain.RetentionPolicy) error
	Get(ctx context.Context, tenantID string, logID uuid.UUID) (*logsDomain.RetentionPolicy, error)
	Delete(ctx context.Context, tenantID string, logID uuid.UUID) error
	List(ctx context.Context, tenantID string) ([]*logsDomain.RetentionPolicy, error)
	// ListAll returns the policies of every tenant.
	ListAll(ctx context.Context) ([]*logsDomain.RetentionPolicy, error)
}

// KeyRegistry answers the grant questions the ciphertext store needs. The
// kek use case satisfies it.
type KeyRegistry interface {
	GetActiveVersion(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error)
	GetGrant(ctx context.Context, tenantID, userID string, versionID uuid.UUID) (*kekDomain.UserKEKGrant, error)
}

// Archiver copies expired ciphertext somewhere durable before deletion.
type Archiver interface {
	// Archive stores entries and returns the location written.
	Archive(
		ctx context.Context,
		tenantID string,
		logID uuid.UUID,
		entries []*logsDomain.EncryptedLogEntry,
	) (string, error)
}

// LogStore is the ciphertext store of encrypted logs.
type LogStore interface {
	// CreateLog registers a log together with its first wrapped DEK.
	CreateLog(
		ctx context.Context,
		tenantID, userID string,
		log *logsDomain.Log,
		key *logsDomain.LogKey,
	) (*logsDomain.Log, error)
	GetLog(ctx context.Context, tenantID string, logID uuid.UUID) (*logsDomain.Log, error)
	GetLogByName(ctx context.Context, tenantID, encryptedName string) (*logsDomain.Log, error)
	ListLogs(ctx context.Context, tenantID string) ([]*logsDomain.Log, error)
	ListLogIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error)
	// UpdateLogName replaces the encrypted name during rotation.
	UpdateLogName(
		ctx context.Context,
		tenantID, userID string,
		logID uuid.UUID,
		encryptedName string,
		versionID uuid.UUID,
	) (*logsDomain.Log, error)

	// PutLogKey stores a wrapped DEK. Storing an identical key again is a no-op.
	PutLogKey(ctx context.Context, tenantID, userID string, key *logsDomain.LogKey) (*logsDomain.LogKey, error)
	// GetLogKey returns ErrAccessDenied when the user holds no grant for versionID.
	GetLogKey(ctx context.Context, tenantID, userID string, logID, versionID uuid.UUID) (*logsDomain.LogKey, error)
	// FindLogKeyByName looks a log up by the name it had under versionID, so
	// users without the current version still find logs they could read.
	FindLogKeyByName(
		ctx context.Context,
		tenantID, userID string,
		versionID uuid.UUID,
		encryptedName string,
	) (*logsDomain.LogKey, error)
	// ListLogKeys returns the keys of a log the user holds grants for.
	ListLogKeys(ctx context.Context, tenantID, userID string, logID uuid.UUID) ([]*logsDomain.LogKey, error)

	// AppendEntry accepts entries encrypted under the tenant's active version only.
	AppendEntry(
		ctx context.Context,
		tenantID, userID string,
		entry *logsDomain.EncryptedLogEntry,
	) (*logsDomain.EncryptedLogEntry, error)
	ListEntries(
		ctx context.Context,
		tenantID string,
		filter logsDomain.EntryFilter,
	) ([]*logsDomain.EncryptedLogEntry, error)
	Search(
		ctx context.Context,
		tenantID string,
		query logsDomain.SearchQuery,
	) ([]*logsDomain.EncryptedLogEntry, error)
}

// RetentionService manages retention policies and enforces them.
type RetentionService interface {
	SetRetentionPolicy(
		ctx context.Context,
		tenantID, actor string,
		logID uuid.UUID,
		period time.Duration,
	) (*logsDomain.RetentionPolicy, error)
	GetRetentionPolicy(ctx context.Context, tenantID string, logID uuid.UUID) (*logsDomain.RetentionPolicy, error)
	DeleteRetentionPolicy(ctx context.Context, tenantID string, logID uuid.UUID) error
	ListRetentionPolicies(ctx context.Context, tenantID string) ([]*logsDomain.RetentionPolicy, error)
	// CountExpiredEntries returns how many entries the policy of logID expires at now.
	CountExpiredEntries(ctx context.Context, tenantID string, logID uuid.UUID, now time.Time) (int64, error)
	RetentionEnforcer
}

// RetentionEnforcer deletes expired entries of every tenant.
type RetentionEnforcer interface {
	Enforce(ctx context.Context, now time.Time) (*logsDomain.RetentionReport, error)
}
