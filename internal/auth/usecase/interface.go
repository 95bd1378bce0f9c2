// Package usecase mints and authenticates bearer access tokens.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
)

// AccessTokenRepository persists access tokens.
type AccessTokenRepository interface {
	Create(ctx context.Context, token *authDomain.AccessToken) error
	// GetByTokenHash returns ErrTokenNotFound when no token has the hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*authDomain.AccessToken, error)
	Revoke(ctx context.Context, tenantID string, id uuid.UUID, revokedAt time.Time) error
	CountExpired(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccessTokenUseCase manages the lifecycle of bearer tokens.
type AccessTokenUseCase interface {
	// Create mints a token. The plain value is returned once and never stored.
	Create(
		ctx context.Context,
		input *authDomain.CreateAccessTokenInput,
	) (*authDomain.CreateAccessTokenOutput, error)

	// Authenticate resolves a token hash to its principal. Unknown, expired and
	// revoked tokens all yield ErrInvalidCredentials.
	Authenticate(ctx context.Context, tokenHash string) (*authDomain.Principal, error)

	Revoke(ctx context.Context, tenantID string, id uuid.UUID) error

	// CleanupExpired deletes tokens expired for more than days days, or only
	// counts them when dryRun is set.
	CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error)
}
