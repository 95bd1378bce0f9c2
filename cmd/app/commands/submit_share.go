package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/client"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// ShareCollector reads recovery sessions and accepts sealed shares.
type ShareCollector interface {
	GetRecoverySession(ctx context.Context, tenantID string, sessionID uuid.UUID) (*kekDomain.RecoverySession, error)
	CollectShare(
		ctx context.Context,
		tenantID string,
		sessionID uuid.UUID,
		share kekDomain.SealedShare,
	) (*kekDomain.RecoverySession, error)
}

// RunSubmitShare seals a share holder's share to the session's recipient key
// and hands it to the server. Holders need no master secret, only the share.
func RunSubmitShare(
	ctx context.Context,
	collector ShareCollector,
	sealer cryptoService.Sealer,
	logger *slog.Logger,
	w io.Writer,
	tenantID, userID, sessionStr, encodedShare string,
) error {
	sessionID, err := uuid.Parse(sessionStr)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", sessionStr, err)
	}
	share, err := cryptoDomain.ParseShare(encodedShare)
	if err != nil {
		return fmt.Errorf("failed to parse share: %w", err)
	}
	defer cryptoDomain.Zero(share.Value)

	session, err := collector.GetRecoverySession(ctx, tenantID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get recovery session: %w", err)
	}
	payload, err := client.SealShare(sealer, session.RecipientPublicKey, share)
	if err != nil {
		return fmt.Errorf("failed to seal share: %w", err)
	}

	session, err = collector.CollectShare(ctx, tenantID, sessionID, kekDomain.SealedShare{
		Index:       share.Index,
		Payload:     payload,
		SubmittedBy: userID,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to submit share: %w", err)
	}

	logger.Info("recovery share submitted",
		slog.String("session_id", sessionID.String()),
		slog.Int("share_index", int(share.Index)),
		slog.Int("collected", len(session.Shares)),
	)
	_, _ = fmt.Fprintf(w, "Share %d submitted: %d of %d required shares collected\n",
		share.Index, len(session.Shares), session.Threshold)
	return nil
}
