package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// RecoveryOutcome is a committed recovery and the rotation it triggered.
type RecoveryOutcome struct {
	RotationOutcome
	Session uuid.UUID
	// Superseded is the unfinished rotation job the recovery closed.
	Superseded *kekDomain.RotationJob
}

// SplitMasterSecret splits the master secret into total shares, any
// threshold of which rebuild it. It needs no principal.
func (c *Client) SplitMasterSecret(total, threshold int) ([]cryptoDomain.Share, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ring == nil {
		return nil, fmt.Errorf("failed to split master secret: %w", ErrNotInitialized)
	}

	var shares []cryptoDomain.Share
	err := c.ring.withSecret(func(secret []byte) error {
		var err error
		shares, err = cryptoService.SplitSecret(secret, total, threshold)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to split master secret: %w", err)
	}
	return shares, nil
}

// SealShare seals share to a recovery session's recipient key, the form in
// which the server stores it.
func SealShare(sealer cryptoService.Sealer, recipient [32]byte, share cryptoDomain.Share) ([]byte, error) {
	encoded := []byte(share.Encode())
	defer cryptoDomain.Zero(encoded)
	return sealer.Seal(encoded, &recipient)
}

// InitiateRecovery opens a recovery session whose shares are sealed to this
// client's key pair. The completion token is returned once and is required
// by CompleteRecovery.
func (c *Client) InitiateRecovery(
	ctx context.Context,
	threshold, total int,
) (*kekDomain.RecoverySession, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, ring, err := c.session()
	if err != nil {
		return nil, "", fmt.Errorf("failed to initiate recovery: %w", err)
	}
	keyPair := ring.pair()
	if keyPair == nil {
		return nil, "", fmt.Errorf("failed to initiate recovery: %w", ErrNoKeyPair)
	}

	session, token, err := c.keys.InitiateRecovery(
		ctx, principal.TenantID, principal.UserID, threshold, total, keyPair.PublicKey,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initiate recovery: %w", err)
	}
	c.logger.Warn("recovery initiated",
		slog.String("tenant_id", principal.TenantID),
		slog.String("session_id", session.ID.String()),
		slog.Int("threshold", threshold),
		slog.Int("total_shares", total),
	)
	return session, token, nil
}

// SubmitShare seals share to the session's recipient and hands it to the
// server, which cannot open it.
func (c *Client) SubmitShare(
	ctx context.Context,
	sessionID uuid.UUID,
	share cryptoDomain.Share,
) (*kekDomain.RecoverySession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to submit share: %w", err)
	}
	session, err := c.keys.GetRecoverySession(ctx, principal.TenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit share: %w", err)
	}

	payload, err := SealShare(c.sealer, session.RecipientPublicKey, share)
	if err != nil {
		return nil, fmt.Errorf("failed to submit share: %w", err)
	}
	session, err = c.keys.CollectShare(ctx, principal.TenantID, sessionID, kekDomain.SealedShare{
		Index:       share.Index,
		Payload:     payload,
		SubmittedBy: principal.UserID,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit share: %w", err)
	}
	return session, nil
}

// CompleteRecovery rebuilds the master secret from the session's shares,
// checks it against an existing wrapped DEK, commits the recovery, adopts
// the secret and moves every log to the new version.
func (c *Client) CompleteRecovery(
	ctx context.Context,
	sessionID uuid.UUID,
	completionToken string,
) (*RecoveryOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	principal, ring, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to complete recovery: %w", err)
	}
	keyPair := ring.pair()
	if keyPair == nil {
		return nil, fmt.Errorf("failed to complete recovery: %w", ErrNoKeyPair)
	}

	session, err := c.keys.GetRecoverySession(ctx, principal.TenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete recovery: %w", err)
	}
	if !session.Ready() {
		return nil, fmt.Errorf("failed to complete recovery: %w", cryptoDomain.ErrInsufficientShares)
	}

	secret, err := c.openShares(session, keyPair)
	if err != nil {
		return nil, fmt.Errorf("failed to complete recovery: %w", err)
	}
	if err := c.verifySecret(ctx, principal.TenantID, principal.UserID, secret); err != nil {
		cryptoDomain.Zero(secret)
		return nil, fmt.Errorf("failed to complete recovery: %w", err)
	}

	result, err := c.keys.CompleteRecovery(ctx, principal.TenantID, principal.UserID, sessionID, completionToken)
	if err != nil {
		cryptoDomain.Zero(secret)
		return nil, fmt.Errorf("failed to complete recovery: %w", err)
	}
	ring.adopt(secret)
	c.logger.Warn("recovery completed",
		slog.String("tenant_id", principal.TenantID),
		slog.String("session_id", sessionID.String()),
		slog.String("kek_version_id", result.Version.ID.String()),
	)
	if result.Superseded != nil {
		c.logger.Warn("unfinished rotation superseded by recovery",
			slog.String("job_id", result.Superseded.ID.String()),
		)
	}

	sealErr := c.sealCarriedGrants(ctx, principal.TenantID, ring, result.Version.ID, result.Carried)

	outcome := &RecoveryOutcome{
		RotationOutcome: RotationOutcome{Version: result.Version, Job: result.Job},
		Session:         sessionID,
		Superseded:      result.Superseded,
	}
	if result.Job != nil {
		outcome.Job, outcome.Report, err = c.runJob(ctx, result.Job)
	}
	if err = errors.Join(err, sealErr); err != nil {
		return outcome, fmt.Errorf("failed to complete recovery: %w", err)
	}
	return outcome, nil
}

// CancelRecovery abandons a session and releases the tenant.
func (c *Client) CancelRecovery(ctx context.Context, sessionID uuid.UUID) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return fmt.Errorf("failed to cancel recovery: %w", err)
	}
	if err := c.keys.CancelRecovery(ctx, principal.TenantID, sessionID); err != nil {
		return fmt.Errorf("failed to cancel recovery: %w", err)
	}
	return nil
}

func (c *Client) openShares(session *kekDomain.RecoverySession, keyPair *cryptoDomain.KeyPair) ([]byte, error) {
	shares := make([]cryptoDomain.Share, 0, len(session.Shares))
	defer func() {
		for _, share := range shares {
			cryptoDomain.Zero(share.Value)
		}
	}()

	for _, sealed := range session.Shares {
		encoded, err := c.sealer.Open(sealed.Payload, keyPair)
		if err != nil {
			return nil, fmt.Errorf("%w: share %d does not open", cryptoDomain.ErrInvalidShare, sealed.Index)
		}
		share, err := cryptoDomain.ParseShare(string(encoded))
		cryptoDomain.Zero(encoded)
		if err != nil {
			return nil, err
		}
		if share.Index != sealed.Index {
			return nil, fmt.Errorf("%w: share %d submitted as %d", cryptoDomain.ErrInvalidShare, share.Index, sealed.Index)
		}
		shares = append(shares, share)
	}
	return cryptoService.CombineShares(shares)
}

// verifySecret unwraps one existing DEK with a KEK derived from secret. A
// tenant without logs has nothing to check against; a tenant whose log keys
// are all hidden from the caller cannot be checked and is refused.
func (c *Client) verifySecret(ctx context.Context, tenantID, userID string, secret []byte) error {
	logIDs, err := c.store.ListLogIDs(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(logIDs) == 0 {
		return nil
	}

	for _, logID := range logIDs {
		logKeys, err := c.store.ListLogKeys(ctx, tenantID, userID, logID)
		if err != nil {
			return err
		}
		for _, logKey := range logKeys {
			kek, err := c.hierarchy.DeriveKEK(secret, logKey.KEKVersionID, tenantID)
			if err != nil {
				return err
			}
			dek, _, err := c.hierarchy.DeriveDEK(kek, logID, logKey)
			kek.Close()
			if err != nil {
				if errors.Is(err, cryptoDomain.ErrIntegrity) {
					return ErrSecretMismatch
				}
				return err
			}
			dek.Close()
			return nil
		}
	}
	return ErrSecretUnverified
}
