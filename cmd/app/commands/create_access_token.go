package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authUseCase "github.com/allisson/logvault/internal/auth/usecase"
)

// RunCreateAccessToken mints a bearer token for a tenant user. The plain
// token is printed once and cannot be recovered later. A zero ttl uses the
// configured lifetime.
func RunCreateAccessToken(
	ctx context.Context,
	tokenUseCase authUseCase.AccessTokenUseCase,
	logger *slog.Logger,
	w io.Writer,
	tenantID, userID, roleStr string,
	ttl time.Duration,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}
	role, err := authDomain.ParseRole(roleStr)
	if err != nil {
		return fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	output, err := tokenUseCase.Create(ctx, &authDomain.CreateAccessTokenInput{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		TTL:      ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to create access token: %w", err)
	}

	logger.Info("access token created",
		slog.String("token_id", output.ID.String()),
		slog.String("tenant_id", tenantID),
		slog.String("user_id", userID),
		slog.String("role", string(role)),
	)

	if format == "json" {
		return writeJSON(w, map[string]any{
			"id":         output.ID.String(),
			"token":      output.PlainToken,
			"expires_at": output.ExpiresAt.Format(time.RFC3339),
		})
	}

	_, _ = fmt.Fprintf(w, "Token ID: %s\n", output.ID)
	_, _ = fmt.Fprintf(w, "Token: %s\n", output.PlainToken)
	_, _ = fmt.Fprintf(w, "Expires at: %s\n", output.ExpiresAt.Format(time.RFC3339))
	_, _ = fmt.Fprintln(w, "\nStore the token now; it will not be shown again.")
	return nil
}
