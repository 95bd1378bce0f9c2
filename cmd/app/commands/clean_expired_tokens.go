package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	authUseCase "github.com/allisson/logvault/internal/auth/usecase"
)

// RunCleanExpiredTokens deletes access tokens expired for more than days
// days. With dryRun set it only counts them.
func RunCleanExpiredTokens(
	ctx context.Context,
	tokenUseCase authUseCase.AccessTokenUseCase,
	logger *slog.Logger,
	w io.Writer,
	days int,
	dryRun bool,
	format string,
) error {
	if days < 0 {
		return fmt.Errorf("days must be a positive number, got: %d", days)
	}
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("cleaning expired access tokens",
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)

	count, err := tokenUseCase.CleanupExpired(ctx, days, dryRun)
	if err != nil {
		return fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}

	if format == "json" {
		if err := writeJSON(w, map[string]any{"count": count, "days": days, "dry_run": dryRun}); err != nil {
			return err
		}
	} else if dryRun {
		_, _ = fmt.Fprintf(w, "Dry-run mode: Would delete %d expired token(s) older than %d day(s)\n", count, days)
	} else {
		_, _ = fmt.Fprintf(w, "Successfully deleted %d expired token(s) older than %d day(s)\n", count, days)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Int("days", days),
		slog.Bool("dry_run", dryRun),
	)
	return nil
}
