// Package usecase implements the tenant key registry: the KEK version
// lifecycle, user grants, resumable rotation jobs and threshold recovery.
//
// Every state-changing operation of a tenant is serialized twice: by an
// in-process mutex per tenant and by the optimistic revision stored with the
// tenant key state, so concurrent servers fail with ErrVersionConflict
// instead of overwriting each other.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// KEKVersionRepository persists KEK versions.
type KEKVersionRepository interface {
	Create(ctx context.Context, version *kekDomain.KEKVersion) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*kekDomain.KEKVersion, error)
	// GetActive returns ErrNoActiveVersion for a tenant without versions.
	GetActive(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error)
	// List returns versions newest first.
	List(ctx context.Context, tenantID string) ([]*kekDomain.KEKVersion, error)
	UpdateStatus(ctx context.Context, tenantID string, id uuid.UUID, status kekDomain.VersionStatus) error
}

// GrantRepository persists user KEK grants.
type GrantRepository interface {
	Create(ctx context.Context, grant *kekDomain.UserKEKGrant) error
	Get(ctx context.Context, tenantID, userID string, versionID uuid.UUID) (*kekDomain.UserKEKGrant, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]*kekDomain.UserKEKGrant, error)
	ListByVersion(ctx context.Context, tenantID string, versionID uuid.UUID) ([]*kekDomain.UserKEKGrant, error)
	UpdateWrappedKEK(ctx context.Context, tenantID, userID string, versionID uuid.UUID, wrappedKEK []byte) error
}

// PublicKeyRepository persists user public keys.
type PublicKeyRepository interface {
	Upsert(ctx context.Context, key *kekDomain.UserPublicKey) error
	Get(ctx context.Context, tenantID, userID string) (*kekDomain.UserPublicKey, error)
}

// TenantStateRepository persists tenant key states with optimistic concurrency.
type TenantStateRepository interface {
	// Get returns the stored state, or a fresh no-active-version state with
	// revision zero for an unknown tenant.
	Get(ctx context.Context, tenantID string) (*kekDomain.TenantKeyState, error)
	// Save writes state if the stored revision still equals expectedRevision
	// and sets state.Revision to expectedRevision+1. A mismatch returns
	// ErrVersionConflict.
	Save(ctx context.Context, state *kekDomain.TenantKeyState, expectedRevision int64) error
}

// RotationJobRepository persists rotation jobs and their items.
type RotationJobRepository interface {
	Create(ctx context.Context, job *kekDomain.RotationJob) error
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*kekDomain.RotationJob, error)
	// GetLatest returns the most recent job of the tenant.
	GetLatest(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error)
	Update(ctx context.Context, job *kekDomain.RotationJob) error
	CreateItems(ctx context.Context, items []*kekDomain.RotationItem) error
	GetItem(ctx context.Context, jobID, logID uuid.UUID) (*kekDomain.RotationItem, error)
	// ListItems returns the items of a job, filtered by status unless status is empty.
	ListItems(ctx context.Context, jobID uuid.UUID, status kekDomain.ItemStatus) ([]*kekDomain.RotationItem, error)
	UpdateItem(ctx context.Context, item *kekDomain.RotationItem) error
	CountItems(ctx context.Context, jobID uuid.UUID) (map[kekDomain.ItemStatus]int, error)
}

// LogLister enumerates the logs a rotation job must migrate.
type LogLister interface {
	ListIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error)
}

// RecoverySessionStore keeps recovery sessions outside the database.
type RecoverySessionStore interface {
	Create(ctx context.Context, session *kekDomain.RecoverySession, ttl time.Duration) error
	// Get returns ErrRecoverySessionNotFound for unknown or expired sessions.
	Get(ctx context.Context, tenantID string, id uuid.UUID) (*kekDomain.RecoverySession, error)
	// Update applies fn to the stored session atomically and stores the
	// result unless fn fails.
	Update(
		ctx context.Context,
		tenantID string,
		id uuid.UUID,
		fn func(session *kekDomain.RecoverySession) error,
	) (*kekDomain.RecoverySession, error)
	Delete(ctx context.Context, tenantID string, id uuid.UUID) error
}

// KekService manages KEK versions, grants, rotation jobs and recovery for tenants.
type KekService interface {
	GetKEKVersions(ctx context.Context, tenantID string) ([]*kekDomain.KEKVersion, error)
	GetActiveVersion(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error)
	// CreateKEKVersion makes a new active version, demotes the previous one to
	// decrypt-only and carries every grant forward.
	CreateKEKVersion(ctx context.Context, tenantID, actor, reason string) (*kekDomain.RotationResult, error)
	// RotateKEK is CreateKEKVersion that drops the grants of removedUsers and
	// opens a rotation job over every log of the tenant.
	RotateKEK(
		ctx context.Context,
		tenantID, actor, reason string,
		removedUsers []string,
	) (*kekDomain.RotationResult, error)
	DeprecateKEKVersion(ctx context.Context, tenantID string, versionID uuid.UUID) (*kekDomain.KEKVersion, error)

	GetRotationJob(ctx context.Context, tenantID string, jobID uuid.UUID) (*kekDomain.RotationJob, error)
	GetCurrentRotationJob(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error)
	ListRotationItems(
		ctx context.Context,
		tenantID string,
		jobID uuid.UUID,
		status kekDomain.ItemStatus,
	) ([]*kekDomain.RotationItem, error)
	ReportRotationItem(
		ctx context.Context,
		tenantID string,
		jobID, logID uuid.UUID,
		status kekDomain.ItemStatus,
		lastError string,
	) (*kekDomain.RotationItem, error)
	// FinalizeRotation completes the job once every item is done; otherwise
	// the job is marked partial and the tenant stays rotating.
	FinalizeRotation(ctx context.Context, tenantID string, jobID uuid.UUID) (*kekDomain.RotationJob, error)

	ProvisionKEKForUser(
		ctx context.Context,
		tenantID, userID string,
		versionID uuid.UUID,
		wrappedKEK []byte,
	) (*kekDomain.UserKEKGrant, error)
	GetGrant(ctx context.Context, tenantID, userID string, versionID uuid.UUID) (*kekDomain.UserKEKGrant, error)
	ListGrants(ctx context.Context, tenantID, userID string) ([]*kekDomain.UserKEKGrant, error)
	RegisterPublicKey(
		ctx context.Context,
		tenantID, userID string,
		publicKey [32]byte,
	) (*kekDomain.UserPublicKey, error)
	GetPublicKey(ctx context.Context, tenantID, userID string) (*kekDomain.UserPublicKey, error)

	// InitiateRecovery opens a session and returns the completion token,
	// which is shown once and stored only hashed.
	InitiateRecovery(
		ctx context.Context,
		tenantID, actor string,
		threshold, totalShares int,
		recipientPublicKey [32]byte,
	) (*kekDomain.RecoverySession, string, error)
	GetRecoverySession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*kekDomain.RecoverySession, error)
	CollectShare(
		ctx context.Context,
		tenantID string,
		sessionID uuid.UUID,
		share kekDomain.SealedShare,
	) (*kekDomain.RecoverySession, error)
	// CompleteRecovery commits a ready session: it creates a new active
	// version and opens a rewrap job. The session is consumed.
	CompleteRecovery(
		ctx context.Context,
		tenantID, actor string,
		sessionID uuid.UUID,
		completionToken string,
	) (*kekDomain.RecoveryResult, error)
	CancelRecovery(ctx context.Context, tenantID string, sessionID uuid.UUID) error
}
