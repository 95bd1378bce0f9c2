package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	"github.com/allisson/logvault/internal/metrics"
)

const authMetricsDomain = "auth"

// accessTokenUseCaseWithMetrics decorates AccessTokenUseCase with metrics instrumentation.
type accessTokenUseCaseWithMetrics struct {
	next    AccessTokenUseCase
	metrics metrics.BusinessMetrics
}

// NewAccessTokenUseCaseWithMetrics wraps an AccessTokenUseCase with metrics recording.
func NewAccessTokenUseCaseWithMetrics(useCase AccessTokenUseCase, m metrics.BusinessMetrics) AccessTokenUseCase {
	return &accessTokenUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (a *accessTokenUseCaseWithMetrics) Create(
	ctx context.Context,
	input *authDomain.CreateAccessTokenInput,
) (output *authDomain.CreateAccessTokenOutput, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, a.metrics, authMetricsDomain, "token_create", start, err)
	}(time.Now())
	return a.next.Create(ctx, input)
}

func (a *accessTokenUseCaseWithMetrics) Authenticate(
	ctx context.Context,
	tokenHash string,
) (principal *authDomain.Principal, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, a.metrics, authMetricsDomain, "token_authenticate", start, err)
	}(time.Now())
	return a.next.Authenticate(ctx, tokenHash)
}

func (a *accessTokenUseCaseWithMetrics) Revoke(ctx context.Context, tenantID string, id uuid.UUID) (err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, a.metrics, authMetricsDomain, "token_revoke", start, err)
	}(time.Now())
	return a.next.Revoke(ctx, tenantID, id)
}

func (a *accessTokenUseCaseWithMetrics) CleanupExpired(
	ctx context.Context,
	days int,
	dryRun bool,
) (count int64, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, a.metrics, authMetricsDomain, "token_cleanup", start, err)
	}(time.Now())
	return a.next.CleanupExpired(ctx, days, dryRun)
}
