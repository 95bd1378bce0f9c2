package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

const maxShares = 255

func (k *kekUseCase) InitiateRecovery(
	ctx context.Context,
	tenantID, actor string,
	threshold, totalShares int,
	recipientPublicKey [32]byte,
) (*kekDomain.RecoverySession, string, error) {
	if threshold < 2 || threshold > totalShares || totalShares > maxShares {
		return nil, "", cryptoDomain.ErrInvalidThreshold
	}
	if recipientPublicKey == ([32]byte{}) {
		return nil, "", cryptoDomain.ErrInvalidPublicKey
	}

	unlock := k.lockTenant(tenantID)
	defer unlock()

	var session *kekDomain.RecoverySession
	var token string
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		state, err := k.stateRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := k.ensureRecoverable(ctx, state); err != nil {
			return err
		}
		expected := state.Revision

		plainToken, tokenHash, err := k.secretService.GenerateSecret()
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		session = &kekDomain.RecoverySession{
			ID:                  uuid.Must(uuid.NewV7()),
			TenantID:            tenantID,
			Threshold:           threshold,
			TotalShares:         totalShares,
			RecipientPublicKey:  recipientPublicKey,
			CompletionTokenHash: tokenHash,
			Status:              kekDomain.RecoveryCollecting,
			CreatedBy:           actor,
			CreatedAt:           now,
			ExpiresAt:           now.Add(k.sessionTTL),
		}

		state.State = kekDomain.StateRecovering
		state.OperationID = session.ID
		if err := k.stateRepo.Save(ctx, state, expected); err != nil {
			return err
		}
		// A session left behind by a failed commit expires with its TTL.
		if err := k.sessions.Create(ctx, session, k.sessionTTL); err != nil {
			return err
		}
		token = plainToken
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return session, token, nil
}

func (k *kekUseCase) GetRecoverySession(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
) (*kekDomain.RecoverySession, error) {
	return k.sessions.Get(ctx, tenantID, sessionID)
}

func (k *kekUseCase) CollectShare(
	ctx context.Context,
	tenantID string,
	sessionID uuid.UUID,
	share kekDomain.SealedShare,
) (*kekDomain.RecoverySession, error) {
	if share.Index == 0 || len(share.Payload) == 0 {
		return nil, cryptoDomain.ErrInvalidShare
	}

	return k.sessions.Update(ctx, tenantID, sessionID, func(session *kekDomain.RecoverySession) error {
		if session.Status == kekDomain.RecoveryCompleting {
			return kekDomain.ErrRecoveryCompleting
		}
		if int(share.Index) > session.TotalShares {
			return fmt.Errorf("%w: index %d exceeds total shares", cryptoDomain.ErrInvalidShare, share.Index)
		}
		if session.HasShare(share.Index) {
			return fmt.Errorf("%w: duplicate index %d", cryptoDomain.ErrInvalidShare, share.Index)
		}
		if len(session.Shares) >= session.TotalShares {
			return fmt.Errorf("%w: all shares already collected", cryptoDomain.ErrInvalidShare)
		}

		share.SubmittedAt = time.Now().UTC()
		session.Shares = append(session.Shares, share)
		if session.Ready() {
			session.Status = kekDomain.RecoveryReady
		}
		return nil
	})
}

func (k *kekUseCase) CompleteRecovery(
	ctx context.Context,
	tenantID, actor string,
	sessionID uuid.UUID,
	completionToken string,
) (*kekDomain.RecoveryResult, error) {
	// Taking the completing status is the single-use guard: a second caller
	// sees ErrRecoveryCompleting, or ErrRecoverySessionNotFound once the
	// first has finished.
	session, err := k.sessions.Update(ctx, tenantID, sessionID, func(session *kekDomain.RecoverySession) error {
		if session.Status == kekDomain.RecoveryCompleting {
			return kekDomain.ErrRecoveryCompleting
		}
		if !session.Ready() {
			return cryptoDomain.ErrInsufficientShares
		}
		if !k.secretService.CompareSecret(completionToken, session.CompletionTokenHash) {
			return kekDomain.ErrInvalidCompletionToken
		}
		session.Status = kekDomain.RecoveryCompleting
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := k.commitRecovery(ctx, session, actor)
	if err != nil {
		_, _ = k.sessions.Update(ctx, tenantID, sessionID, func(session *kekDomain.RecoverySession) error {
			session.Status = kekDomain.RecoveryReady
			return nil
		})
		return nil, err
	}

	if err := k.sessions.Delete(ctx, tenantID, sessionID); err != nil &&
		!errors.Is(err, kekDomain.ErrRecoverySessionNotFound) {
		return nil, err
	}
	return result, nil
}

// commitRecovery creates the version that replaces the lost one and opens a
// rewrap job from the previous active version.
func (k *kekUseCase) commitRecovery(
	ctx context.Context,
	session *kekDomain.RecoverySession,
	actor string,
) (*kekDomain.RecoveryResult, error) {
	unlock := k.lockTenant(session.TenantID)
	defer unlock()

	var result *kekDomain.RecoveryResult
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		state, err := k.stateRepo.Get(ctx, session.TenantID)
		if err != nil {
			return err
		}
		if state.State != kekDomain.StateRecovering || state.OperationID != session.ID {
			return kekDomain.ErrVersionConflict
		}
		expected := state.Revision

		superseded, err := k.supersedeOpenJob(ctx, session.TenantID)
		if err != nil {
			return err
		}

		reason := fmt.Sprintf("recovery %s (%d of %d shares)", session.ID, len(session.Shares), session.TotalShares)
		rotation, err := k.advanceVersion(ctx, session.TenantID, actor, reason, nil)
		if err != nil {
			return err
		}
		if err := k.openJob(ctx, rotation, actor, reason, kekDomain.ModeRewrap); err != nil {
			return err
		}

		k.applyJobState(state, rotation.Job)
		if err := k.stateRepo.Save(ctx, state, expected); err != nil {
			return err
		}

		result = &kekDomain.RecoveryResult{
			Version:    rotation.Version,
			Grant:      rotation.Grant,
			Carried:    rotation.Carried,
			Job:        rotation.Job,
			Superseded: superseded,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// supersedeOpenJob closes the tenant's unfinished rotation job. Its logs are
// picked up by the recovery job, which covers every log of the tenant.
func (k *kekUseCase) supersedeOpenJob(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error) {
	job, err := k.openRotationJob(ctx, tenantID)
	if err != nil || job == nil {
		return nil, err
	}

	counts, err := k.jobRepo.CountItems(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job.DoneItems = counts[kekDomain.ItemDone]
	job.FailedItems = counts[kekDomain.ItemFailed]
	job.Status = kekDomain.JobSuperseded
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := k.jobRepo.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (k *kekUseCase) CancelRecovery(ctx context.Context, tenantID string, sessionID uuid.UUID) error {
	if _, err := k.sessions.Get(ctx, tenantID, sessionID); err != nil {
		return err
	}

	unlock := k.lockTenant(tenantID)
	defer unlock()

	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		state, err := k.stateRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if state.State != kekDomain.StateRecovering || state.OperationID != sessionID {
			return nil
		}
		expected := state.Revision
		if err := k.releaseState(ctx, state); err != nil {
			return err
		}
		return k.stateRepo.Save(ctx, state, expected)
	})
	if err != nil {
		return err
	}

	return k.sessions.Delete(ctx, tenantID, sessionID)
}
