package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authService "github.com/allisson/logvault/internal/auth/service"
	"github.com/allisson/logvault/internal/errors"
)

type accessTokenUseCase struct {
	tokenRepo    AccessTokenRepository
	tokenService authService.TokenService
	ttl          time.Duration
}

// NewAccessTokenUseCase creates an AccessTokenUseCase minting tokens valid for ttl.
func NewAccessTokenUseCase(
	tokenRepo AccessTokenRepository,
	tokenService authService.TokenService,
	ttl time.Duration,
) AccessTokenUseCase {
	return &accessTokenUseCase{
		tokenRepo:    tokenRepo,
		tokenService: tokenService,
		ttl:          ttl,
	}
}

func (a *accessTokenUseCase) Create(
	ctx context.Context,
	input *authDomain.CreateAccessTokenInput,
) (*authDomain.CreateAccessTokenOutput, error) {
	if input.TenantID == "" || input.UserID == "" {
		return nil, authDomain.ErrEmptyIdentity
	}
	if _, err := authDomain.ParseRole(string(input.Role)); err != nil {
		return nil, err
	}

	plainToken, tokenHash, err := a.tokenService.GenerateToken()
	if err != nil {
		return nil, err
	}

	ttl := a.ttl
	if input.TTL > 0 {
		ttl = input.TTL
	}
	now := time.Now().UTC()
	token := &authDomain.AccessToken{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  input.TenantID,
		UserID:    input.UserID,
		Role:      input.Role,
		TokenHash: tokenHash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := a.tokenRepo.Create(ctx, token); err != nil {
		return nil, err
	}

	return &authDomain.CreateAccessTokenOutput{
		ID:         token.ID,
		PlainToken: plainToken,
		ExpiresAt:  token.ExpiresAt,
	}, nil
}

func (a *accessTokenUseCase) Authenticate(ctx context.Context, tokenHash string) (*authDomain.Principal, error) {
	token, err := a.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, authDomain.ErrTokenNotFound) {
			return nil, authDomain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !token.Valid(time.Now().UTC()) {
		return nil, authDomain.ErrInvalidCredentials
	}
	return token.Principal(), nil
}

func (a *accessTokenUseCase) Revoke(ctx context.Context, tenantID string, id uuid.UUID) error {
	return a.tokenRepo.Revoke(ctx, tenantID, id, time.Now().UTC())
}

func (a *accessTokenUseCase) CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error) {
	if days < 0 {
		return 0, errors.Wrap(errors.ErrInvalidInput, "days must not be negative")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	if dryRun {
		return a.tokenRepo.CountExpired(ctx, cutoff)
	}
	return a.tokenRepo.DeleteExpired(ctx, cutoff)
}
