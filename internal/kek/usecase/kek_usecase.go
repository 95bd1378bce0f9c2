package usecase

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	authService "github.com/allisson/logvault/internal/auth/service"
	"github.com/allisson/logvault/internal/database"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

type kekUseCase struct {
	txManager     database.TxManager
	versionRepo   KEKVersionRepository
	grantRepo     GrantRepository
	publicKeyRepo PublicKeyRepository
	stateRepo     TenantStateRepository
	jobRepo       RotationJobRepository
	logLister     LogLister
	sessions      RecoverySessionStore
	secretService authService.SecretService
	sessionTTL    time.Duration

	locks sync.Map
}

// NewKekService creates a KekService.
func NewKekService(
	txManager database.TxManager,
	versionRepo KEKVersionRepository,
	grantRepo GrantRepository,
	publicKeyRepo PublicKeyRepository,
	stateRepo TenantStateRepository,
	jobRepo RotationJobRepository,
	logLister LogLister,
	sessions RecoverySessionStore,
	secretService authService.SecretService,
	sessionTTL time.Duration,
) KekService {
	return &kekUseCase{
		txManager:     txManager,
		versionRepo:   versionRepo,
		grantRepo:     grantRepo,
		publicKeyRepo: publicKeyRepo,
		stateRepo:     stateRepo,
		jobRepo:       jobRepo,
		logLister:     logLister,
		sessions:      sessions,
		secretService: secretService,
		sessionTTL:    sessionTTL,
	}
}

// lockTenant serializes state changes of one tenant within this process.
func (k *kekUseCase) lockTenant(tenantID string) func() {
	value, _ := k.locks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ensureIdle fails with ErrOperationInProgress while a rotation or a live
// recovery session holds the tenant. A recovering state whose session has
// expired is released.
func (k *kekUseCase) ensureIdle(ctx context.Context, state *kekDomain.TenantKeyState) error {
	switch state.State {
	case kekDomain.StateRotating:
		return kekDomain.ErrOperationInProgress
	case kekDomain.StateRecovering:
		_, err := k.sessions.Get(ctx, state.TenantID, state.OperationID)
		if err == nil {
			return kekDomain.ErrOperationInProgress
		}
		if !errors.Is(err, kekDomain.ErrRecoverySessionNotFound) {
			return err
		}
		if err := k.releaseState(ctx, state); err != nil {
			return err
		}
		if state.State == kekDomain.StateRotating {
			return kekDomain.ErrOperationInProgress
		}
	}
	return nil
}

// ensureRecoverable is ensureIdle except that a recovery may interrupt a
// rotation, which can be stuck because the secret it needs is lost.
func (k *kekUseCase) ensureRecoverable(ctx context.Context, state *kekDomain.TenantKeyState) error {
	err := k.ensureIdle(ctx, state)
	if errors.Is(err, kekDomain.ErrOperationInProgress) && state.State == kekDomain.StateRotating {
		return nil
	}
	return err
}

// releaseState moves a tenant back to the state it had before a recovery
// in memory: rotating when a rotation job is still open, idle otherwise.
func (k *kekUseCase) releaseState(ctx context.Context, state *kekDomain.TenantKeyState) error {
	state.OperationID = uuid.Nil
	job, err := k.openRotationJob(ctx, state.TenantID)
	if err != nil {
		return err
	}
	if job != nil {
		state.State = kekDomain.StateRotating
		state.OperationID = job.ID
		return nil
	}

	_, err = k.versionRepo.GetActive(ctx, state.TenantID)
	switch {
	case err == nil:
		state.State = kekDomain.StateActive
	case errors.Is(err, kekDomain.ErrNoActiveVersion):
		state.State = kekDomain.StateNoActiveVersion
	default:
		return err
	}
	return nil
}

// openRotationJob returns the tenant's latest job when it is not closed.
func (k *kekUseCase) openRotationJob(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error) {
	job, err := k.jobRepo.GetLatest(ctx, tenantID)
	if errors.Is(err, kekDomain.ErrRotationJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if job.IsClosed() {
		return nil, nil
	}
	return job, nil
}

func (k *kekUseCase) GetKEKVersions(ctx context.Context, tenantID string) ([]*kekDomain.KEKVersion, error) {
	return k.versionRepo.List(ctx, tenantID)
}

func (k *kekUseCase) GetActiveVersion(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error) {
	return k.versionRepo.GetActive(ctx, tenantID)
}

func (k *kekUseCase) CreateKEKVersion(
	ctx context.Context,
	tenantID, actor, reason string,
) (*kekDomain.RotationResult, error) {
	unlock := k.lockTenant(tenantID)
	defer unlock()

	var result *kekDomain.RotationResult
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		state, err := k.stateRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := k.ensureIdle(ctx, state); err != nil {
			return err
		}
		expected := state.Revision

		result, err = k.advanceVersion(ctx, tenantID, actor, reason, nil)
		if err != nil {
			return err
		}

		state.State = kekDomain.StateActive
		state.OperationID = uuid.Nil
		return k.stateRepo.Save(ctx, state, expected)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (k *kekUseCase) RotateKEK(
	ctx context.Context,
	tenantID, actor, reason string,
	removedUsers []string,
) (*kekDomain.RotationResult, error) {
	for _, userID := range removedUsers {
		if userID == actor {
			return nil, errors.Wrap(errors.ErrInvalidInput, "the rotating user cannot remove itself")
		}
	}

	unlock := k.lockTenant(tenantID)
	defer unlock()

	var result *kekDomain.RotationResult
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		state, err := k.stateRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if err := k.ensureIdle(ctx, state); err != nil {
			return err
		}
		expected := state.Revision

		result, err = k.advanceVersion(ctx, tenantID, actor, reason, removedUsers)
		if err != nil {
			return err
		}

		mode := kekDomain.ModeRewrap
		if len(removedUsers) > 0 {
			mode = kekDomain.ModeRekey
		}
		if err := k.openJob(ctx, result, actor, reason, mode); err != nil {
			return err
		}

		k.applyJobState(state, result.Job)
		return k.stateRepo.Save(ctx, state, expected)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// advanceVersion creates a new active version, demotes the current one and
// carries grants forward, skipping removedUsers.
func (k *kekUseCase) advanceVersion(
	ctx context.Context,
	tenantID, actor, reason string,
	removedUsers []string,
) (*kekDomain.RotationResult, error) {
	previous, err := k.versionRepo.GetActive(ctx, tenantID)
	if err != nil && !errors.Is(err, kekDomain.ErrNoActiveVersion) {
		return nil, err
	}

	now := time.Now().UTC()
	version := &kekDomain.KEKVersion{
		ID:        uuid.Must(uuid.NewV7()),
		TenantID:  tenantID,
		Status:    kekDomain.StatusActive,
		CreatedAt: now,
		CreatedBy: actor,
		Reason:    reason,
	}

	if previous != nil {
		if err := k.versionRepo.UpdateStatus(ctx, tenantID, previous.ID, kekDomain.StatusDecryptOnly); err != nil {
			return nil, err
		}
		previous.Status = kekDomain.StatusDecryptOnly
	}
	if err := k.versionRepo.Create(ctx, version); err != nil {
		return nil, err
	}

	grant := &kekDomain.UserKEKGrant{
		TenantID:     tenantID,
		UserID:       actor,
		KEKVersionID: version.ID,
		CreatedAt:    now,
	}
	if err := k.grantRepo.Create(ctx, grant); err != nil {
		return nil, err
	}

	result := &kekDomain.RotationResult{Version: version, Previous: previous, Grant: grant}
	if previous != nil {
		removed := make(map[string]struct{}, len(removedUsers))
		for _, userID := range removedUsers {
			removed[userID] = struct{}{}
		}

		grants, err := k.grantRepo.ListByVersion(ctx, tenantID, previous.ID)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			if _, skip := removed[g.UserID]; skip || g.UserID == actor {
				continue
			}
			// Wrapped copies are filled in by the rotating client, which is
			// the only party holding the new KEK.
			carried := &kekDomain.UserKEKGrant{
				TenantID:     tenantID,
				UserID:       g.UserID,
				KEKVersionID: version.ID,
				CreatedAt:    now,
			}
			if err := k.grantRepo.Create(ctx, carried); err != nil {
				return nil, err
			}
			result.Carried = append(result.Carried, carried)
		}
	}

	return result, nil
}

// openJob creates the rotation job of result with one pending item per log.
// Nothing is opened for a first version.
func (k *kekUseCase) openJob(
	ctx context.Context,
	result *kekDomain.RotationResult,
	actor, reason string,
	mode kekDomain.RotationMode,
) error {
	if result.Previous == nil {
		return nil
	}

	logIDs, err := k.logLister.ListIDs(ctx, result.Version.TenantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job := &kekDomain.RotationJob{
		ID:            uuid.Must(uuid.NewV7()),
		TenantID:      result.Version.TenantID,
		FromVersionID: result.Previous.ID,
		ToVersionID:   result.Version.ID,
		Mode:          mode,
		Status:        kekDomain.JobRunning,
		Reason:        reason,
		TotalItems:    len(logIDs),
		CreatedBy:     actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(logIDs) == 0 {
		job.Status = kekDomain.JobCompleted
		job.CompletedAt = &now
	}
	if err := k.jobRepo.Create(ctx, job); err != nil {
		return err
	}

	if len(logIDs) > 0 {
		items := make([]*kekDomain.RotationItem, len(logIDs))
		for i, logID := range logIDs {
			items[i] = &kekDomain.RotationItem{
				JobID:     job.ID,
				LogID:     logID,
				Status:    kekDomain.ItemPending,
				UpdatedAt: now,
			}
		}
		if err := k.jobRepo.CreateItems(ctx, items); err != nil {
			return err
		}
	}

	result.Job = job
	return nil
}

func (k *kekUseCase) applyJobState(state *kekDomain.TenantKeyState, job *kekDomain.RotationJob) {
	if job == nil || job.IsCompleted() {
		state.State = kekDomain.StateActive
		state.OperationID = uuid.Nil
		return
	}
	state.State = kekDomain.StateRotating
	state.OperationID = job.ID
}

func (k *kekUseCase) DeprecateKEKVersion(
	ctx context.Context,
	tenantID string,
	versionID uuid.UUID,
) (*kekDomain.KEKVersion, error) {
	unlock := k.lockTenant(tenantID)
	defer unlock()

	var version *kekDomain.KEKVersion
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		state, err := k.stateRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if state.State == kekDomain.StateRotating {
			return kekDomain.ErrOperationInProgress
		}

		version, err = k.versionRepo.Get(ctx, tenantID, versionID)
		if err != nil {
			return err
		}
		switch version.Status {
		case kekDomain.StatusDeprecated:
			return nil
		case kekDomain.StatusActive:
			return errors.Wrap(errors.ErrInvalidInput, "the active kek version cannot be deprecated")
		}

		if err := k.versionRepo.UpdateStatus(ctx, tenantID, versionID, kekDomain.StatusDeprecated); err != nil {
			return err
		}
		version.Status = kekDomain.StatusDeprecated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (k *kekUseCase) GetRotationJob(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
) (*kekDomain.RotationJob, error) {
	return k.jobRepo.Get(ctx, tenantID, jobID)
}

func (k *kekUseCase) GetCurrentRotationJob(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error) {
	return k.jobRepo.GetLatest(ctx, tenantID)
}

func (k *kekUseCase) ListRotationItems(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
	status kekDomain.ItemStatus,
) ([]*kekDomain.RotationItem, error) {
	if _, err := k.jobRepo.Get(ctx, tenantID, jobID); err != nil {
		return nil, err
	}
	return k.jobRepo.ListItems(ctx, jobID, status)
}

func (k *kekUseCase) ReportRotationItem(
	ctx context.Context,
	tenantID string,
	jobID, logID uuid.UUID,
	status kekDomain.ItemStatus,
	lastError string,
) (*kekDomain.RotationItem, error) {
	if status != kekDomain.ItemDone && status != kekDomain.ItemFailed {
		return nil, errors.Wrap(errors.ErrInvalidInput, "item status must be done or failed")
	}

	var item *kekDomain.RotationItem
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		job, err := k.jobRepo.Get(ctx, tenantID, jobID)
		if err != nil {
			return err
		}

		item, err = k.jobRepo.GetItem(ctx, jobID, logID)
		if err != nil {
			return err
		}
		if item.Status == kekDomain.ItemDone {
			return nil
		}
		if job.IsClosed() {
			return kekDomain.ErrRotationJobClosed
		}

		item.Status = status
		item.Attempts++
		item.LastError = ""
		if status == kekDomain.ItemFailed {
			item.LastError = lastError
		}
		item.UpdatedAt = time.Now().UTC()
		if err := k.jobRepo.UpdateItem(ctx, item); err != nil {
			return err
		}

		return k.refreshCounters(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (k *kekUseCase) refreshCounters(ctx context.Context, job *kekDomain.RotationJob) error {
	counts, err := k.jobRepo.CountItems(ctx, job.ID)
	if err != nil {
		return err
	}
	job.DoneItems = counts[kekDomain.ItemDone]
	job.FailedItems = counts[kekDomain.ItemFailed]
	job.UpdatedAt = time.Now().UTC()
	return k.jobRepo.Update(ctx, job)
}

func (k *kekUseCase) FinalizeRotation(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
) (*kekDomain.RotationJob, error) {
	unlock := k.lockTenant(tenantID)
	defer unlock()

	var job *kekDomain.RotationJob
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		job, err = k.jobRepo.Get(ctx, tenantID, jobID)
		if err != nil {
			return err
		}
		if job.IsClosed() {
			return nil
		}

		counts, err := k.jobRepo.CountItems(ctx, job.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		job.DoneItems = counts[kekDomain.ItemDone]
		job.FailedItems = counts[kekDomain.ItemFailed]
		job.UpdatedAt = now

		if job.DoneItems < job.TotalItems {
			job.Status = kekDomain.JobPartial
			return k.jobRepo.Update(ctx, job)
		}

		job.Status = kekDomain.JobCompleted
		job.CompletedAt = &now
		if err := k.jobRepo.Update(ctx, job); err != nil {
			return err
		}

		state, err := k.stateRepo.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if state.State != kekDomain.StateRotating || state.OperationID != job.ID {
			return nil
		}
		expected := state.Revision
		k.applyJobState(state, job)
		return k.stateRepo.Save(ctx, state, expected)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (k *kekUseCase) ProvisionKEKForUser(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	wrappedKEK []byte,
) (*kekDomain.UserKEKGrant, error) {
	var grant *kekDomain.UserKEKGrant
	err := k.txManager.WithTx(ctx, func(ctx context.Context) error {
		version, err := k.versionRepo.Get(ctx, tenantID, versionID)
		if err != nil {
			return err
		}
		if version.Status == kekDomain.StatusDeprecated {
			return kekDomain.ErrVersionDeprecated
		}

		existing, err := k.grantRepo.Get(ctx, tenantID, userID, versionID)
		switch {
		case errors.Is(err, kekDomain.ErrGrantNotFound):
			grant = &kekDomain.UserKEKGrant{
				TenantID:     tenantID,
				UserID:       userID,
				KEKVersionID: versionID,
				WrappedKEK:   wrappedKEK,
				CreatedAt:    time.Now().UTC(),
			}
			return k.grantRepo.Create(ctx, grant)
		case err != nil:
			return err
		}

		grant = existing
		// An identical grant, or a request without a wrapped KEK for a grant
		// that already has one, leaves the grant as it is.
		if len(wrappedKEK) == 0 || bytes.Equal(existing.WrappedKEK, wrappedKEK) {
			return nil
		}
		if err := k.grantRepo.UpdateWrappedKEK(ctx, tenantID, userID, versionID, wrappedKEK); err != nil {
			return err
		}
		grant.WrappedKEK = wrappedKEK
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (k *kekUseCase) GetGrant(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	return k.grantRepo.Get(ctx, tenantID, userID, versionID)
}

func (k *kekUseCase) ListGrants(ctx context.Context, tenantID, userID string) ([]*kekDomain.UserKEKGrant, error) {
	return k.grantRepo.ListByUser(ctx, tenantID, userID)
}

func (k *kekUseCase) RegisterPublicKey(
	ctx context.Context,
	tenantID, userID string,
	publicKey [32]byte,
) (*kekDomain.UserPublicKey, error) {
	if publicKey == ([32]byte{}) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "public key must not be zero")
	}

	now := time.Now().UTC()
	key := &kekDomain.UserPublicKey{
		TenantID:  tenantID,
		UserID:    userID,
		PublicKey: publicKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := k.publicKeyRepo.Upsert(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (k *kekUseCase) GetPublicKey(ctx context.Context, tenantID, userID string) (*kekDomain.UserPublicKey, error) {
	return k.publicKeyRepo.Get(ctx, tenantID, userID)
}
