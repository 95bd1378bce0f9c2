package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/metrics"
)

const (
	kekMetricsDomain      = "kek"
	recoveryMetricsDomain = "recovery"
)

// kekServiceWithMetrics decorates KekService with metrics instrumentation.
type kekServiceWithMetrics struct {
	next    KekService
	metrics metrics.BusinessMetrics
}

// NewKekServiceWithMetrics wraps a KekService with metrics recording.
func NewKekServiceWithMetrics(service KekService, m metrics.BusinessMetrics) KekService {
	return &kekServiceWithMetrics{
		next:    service,
		metrics: m,
	}
}

func (s *kekServiceWithMetrics) GetKEKVersions(
	ctx context.Context,
	tenantID string,
) (versions []*kekDomain.KEKVersion, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "list_versions", start, err)
	}(time.Now())
	return s.next.GetKEKVersions(ctx, tenantID)
}

func (s *kekServiceWithMetrics) GetActiveVersion(
	ctx context.Context,
	tenantID string,
) (version *kekDomain.KEKVersion, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "get_active_version", start, err)
	}(time.Now())
	return s.next.GetActiveVersion(ctx, tenantID)
}

func (s *kekServiceWithMetrics) CreateKEKVersion(
	ctx context.Context,
	tenantID, actor, reason string,
) (result *kekDomain.RotationResult, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "create_version", start, err)
	}(time.Now())
	return s.next.CreateKEKVersion(ctx, tenantID, actor, reason)
}

func (s *kekServiceWithMetrics) RotateKEK(
	ctx context.Context,
	tenantID, actor, reason string,
	removedUsers []string,
) (result *kekDomain.RotationResult, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "rotate", start, err)
	}(time.Now())
	return s.next.RotateKEK(ctx, tenantID, actor, reason, removedUsers)
}

func (s *kekServiceWithMetrics) DeprecateKEKVersion(
	ctx context.Context,
	tenantID string,
	versionID uuid.UUID,
) (version *kekDomain.KEKVersion, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "deprecate_version", start, err)
	}(time.Now())
	return s.next.DeprecateKEKVersion(ctx, tenantID, versionID)
}

func (s *kekServiceWithMetrics) GetRotationJob(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
) (job *kekDomain.RotationJob, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "get_rotation_job", start, err)
	}(time.Now())
	return s.next.GetRotationJob(ctx, tenantID, jobID)
}

func (s *kekServiceWithMetrics) GetCurrentRotationJob(
	ctx context.Context,
	tenantID string,
) (job *kekDomain.RotationJob, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "get_current_rotation_job", start, err)
	}(time.Now())
	return s.next.GetCurrentRotationJob(ctx, tenantID)
}

func (s *kekServiceWithMetrics) ListRotationItems(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
	status kekDomain.ItemStatus,
) (items []*kekDomain.RotationItem, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "list_rotation_items", start, err)
	}(time.Now())
	return s.next.ListRotationItems(ctx, tenantID, jobID, status)
}

func (s *kekServiceWithMetrics) ReportRotationItem(
	ctx context.Context,
	tenantID string,
	jobID, logID uuid.UUID,
	status kekDomain.ItemStatus,
	lastError string,
) (item *kekDomain.RotationItem, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "report_rotation_item", start, err)
	}(time.Now())
	return s.next.ReportRotationItem(ctx, tenantID, jobID, logID, status, lastError)
}

func (s *kekServiceWithMetrics) FinalizeRotation(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
) (job *kekDomain.RotationJob, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "finalize_rotation", start, err)
	}(time.Now())
	return s.next.FinalizeRotation(ctx, tenantID, jobID)
}

func (s *kekServiceWithMetrics) ProvisionKEKForUser(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	wrappedKEK []byte,
) (grant *kekDomain.UserKEKGrant, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "provision_grant", start, err)
	}(time.Now())
	return s.next.ProvisionKEKForUser(ctx, tenantID, userID, versionID, wrappedKEK)
}

func (s *kekServiceWithMetrics) GetGrant(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (grant *kekDomain.UserKEKGrant, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "get_grant", start, err)
	}(time.Now())
	return s.next.GetGrant(ctx, tenantID, userID, versionID)
}

func (s *kekServiceWithMetrics) ListGrants(
	ctx context.Context,
	tenantID, userID string,
) (grants []*kekDomain.UserKEKGrant, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "list_grants", start, err)
	}(time.Now())
	return s.next.ListGrants(ctx, tenantID, userID)
}

func (s *kekServiceWithMetrics) RegisterPublicKey(
	ctx context.Context,
	tenantID, userID string,
	publicKey [32]byte,
) (key *kekDomain.UserPublicKey, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "register_public_key", start, err)
	}(time.Now())
	return s.next.RegisterPublicKey(ctx, tenantID, userID, publicKey)
}

func (s *kekServiceWithMetrics) GetPublicKey(
	ctx context.Context,
	tenantID, userID string,
) (key *kekDomain.UserPublicKey, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, kekMetricsDomain, "get_public_key", start, err)
	}(time.Now())
	return s.next.GetPublicKey(ctx, tenantID, userID)
}

func (s *kekServiceWithMetrics) InitiateRecovery(
	ctx context.Context,
	tenantID, actor string,
	threshold, totalShares int,
	recipientPublicKey [32]byte,
) (session *kekDomain.RecoverySession, token string, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, recoveryMetricsDomain, "initiate", start, err)
	}(time.Now())
	return s.next.InitiateRecovery(ctx, tenantID, actor, threshold, totalShares, recipientPublicKey)
}

func (s *kekServiceWithMetrics) GetRecoverySession(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
) (session *kekDomain.RecoverySession, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, recoveryMetricsDomain, "get_session", start, err)
	}(time.Now())
	return s.next.GetRecoverySession(ctx, tenantID, sessionID)
}

func (s *kekServiceWithMetrics) CollectShare(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
	share kekDomain.SealedShare,
) (session *kekDomain.RecoverySession, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, recoveryMetricsDomain, "collect_share", start, err)
	}(time.Now())
	return s.next.CollectShare(ctx, tenantID, sessionID, share)
}

func (s *kekServiceWithMetrics) CompleteRecovery(
	ctx context.Context,
	tenantID, actor string,
	sessionID uuid.UUID,
	completionToken string,
) (result *kekDomain.RecoveryResult, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, recoveryMetricsDomain, "complete", start, err)
	}(time.Now())
	return s.next.CompleteRecovery(ctx, tenantID, actor, sessionID, completionToken)
}

func (s *kekServiceWithMetrics) CancelRecovery(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
) (err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, recoveryMetricsDomain, "cancel", start, err)
	}(time.Now())
	return s.next.CancelRecovery(ctx, tenantID, sessionID)
}
