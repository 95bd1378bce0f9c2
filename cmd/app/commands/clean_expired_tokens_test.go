package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authMocks "github.com/allisson/logvault/internal/auth/http/mocks"
)

func TestRunCleanExpiredTokens(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	days := 30

	t.Run("Success_Text", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		mockUseCase.On("CleanupExpired", ctx, days, false).Return(int64(10), nil)

		var out bytes.Buffer
		err := RunCleanExpiredTokens(ctx, mockUseCase, logger, &out, days, false, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), "Successfully deleted 10 expired token(s)")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_JSONDryRun", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		mockUseCase.On("CleanupExpired", ctx, days, true).Return(int64(5), nil)

		var out bytes.Buffer
		err := RunCleanExpiredTokens(ctx, mockUseCase, logger, &out, days, true, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"count": 5`)
		require.Contains(t, out.String(), `"dry_run": true`)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Error_NegativeDays", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		err := RunCleanExpiredTokens(ctx, mockUseCase, logger, &bytes.Buffer{}, -1, false, "text")

		require.ErrorContains(t, err, "days must be a positive number")
		mockUseCase.AssertNotCalled(t, "CleanupExpired", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Error_UseCase", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		mockUseCase.On("CleanupExpired", ctx, days, false).Return(int64(0), errors.New("db down"))

		err := RunCleanExpiredTokens(ctx, mockUseCase, logger, &bytes.Buffer{}, days, false, "text")

		require.ErrorContains(t, err, "failed to cleanup expired tokens")
	})
}

func TestRunCreateAccessToken(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	tokenID := uuid.Must(uuid.NewV7())
	expiresAt := time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC)

	t.Run("Success_Text", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		input := &authDomain.CreateAccessTokenInput{TenantID: "acme", UserID: "alice", Role: authDomain.RoleAdmin}
		mockUseCase.On("Create", ctx, input).Return(&authDomain.CreateAccessTokenOutput{
			ID:         tokenID,
			PlainToken: "plain-token",
			ExpiresAt:  expiresAt,
		}, nil)

		var out bytes.Buffer
		err := RunCreateAccessToken(ctx, mockUseCase, logger, &out, "acme", "alice", "admin", 0, "text")

		require.NoError(t, err)
		require.Contains(t, out.String(), tokenID.String())
		require.Contains(t, out.String(), "plain-token")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Success_JSONWithTTL", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		input := &authDomain.CreateAccessTokenInput{
			TenantID: "acme",
			UserID:   "bob",
			Role:     authDomain.RoleMember,
			TTL:      time.Hour,
		}
		mockUseCase.On("Create", ctx, input).Return(&authDomain.CreateAccessTokenOutput{
			ID:         tokenID,
			PlainToken: "plain-token",
			ExpiresAt:  expiresAt,
		}, nil)

		var out bytes.Buffer
		err := RunCreateAccessToken(ctx, mockUseCase, logger, &out, "acme", "bob", "member", time.Hour, "json")

		require.NoError(t, err)
		require.Contains(t, out.String(), `"token": "plain-token"`)
		require.Contains(t, out.String(), `"expires_at": "2026-11-14T00:00:00Z"`)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("Error_InvalidRole", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		err := RunCreateAccessToken(ctx, mockUseCase, logger, &bytes.Buffer{}, "acme", "bob", "root", 0, "text")

		require.ErrorContains(t, err, `invalid role "root"`)
	})

	t.Run("Error_InvalidFormat", func(t *testing.T) {
		mockUseCase := &authMocks.MockAccessTokenUseCase{}
		err := RunCreateAccessToken(ctx, mockUseCase, logger, &bytes.Buffer{}, "acme", "bob", "member", 0, "yaml")

		require.ErrorContains(t, err, "invalid format")
	})
}
