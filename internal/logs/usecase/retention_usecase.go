package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	"github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

const retentionBatchSize = 500

type retentionUseCase struct {
	txManager  database.TxManager
	policyRepo RetentionPolicyRepository
	logRepo    LogRepository
	entryRepo  EntryRepository
	archiver   Archiver
	logger     *slog.Logger
}

// NewRetentionService creates a RetentionService. A nil archiver deletes
// expired entries without archiving them.
func NewRetentionService(
	txManager database.TxManager,
	policyRepo RetentionPolicyRepository,
	logRepo LogRepository,
	entryRepo EntryRepository,
	archiver Archiver,
	logger *slog.Logger,
) RetentionService {
	return &retentionUseCase{
		txManager:  txManager,
		policyRepo: policyRepo,
		logRepo:    logRepo,
		entryRepo:  entryRepo,
		archiver:   archiver,
		logger:     logger,
	}
}

func (r *retentionUseCase) SetRetentionPolicy(
	ctx context.Context,
	tenantID, actor string,
	logID uuid.UUID,
	period time.Duration,
) (*logsDomain.RetentionPolicy, error) {
	if period == 0 || (period < 0 && period != logsDomain.UnlimitedRetention) {
		return nil, logsDomain.ErrInvalidRetentionPeriod
	}
	if _, err := r.logRepo.Get(ctx, tenantID, logID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	policy := &logsDomain.RetentionPolicy{
		TenantID:        tenantID,
		LogID:           logID,
		RetentionPeriod: period,
		CreatedBy:       actor,
		UpdatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	existing, err := r.policyRepo.Get(ctx, tenantID, logID)
	switch {
	case err == nil:
		policy.CreatedBy = existing.CreatedBy
		policy.CreatedAt = existing.CreatedAt
	case !errors.Is(err, logsDomain.ErrRetentionPolicyNotFound):
		return nil, err
	}

	if err := r.policyRepo.Upsert(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (r *retentionUseCase) GetRetentionPolicy(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) (*logsDomain.RetentionPolicy, error) {
	return r.policyRepo.Get(ctx, tenantID, logID)
}

func (r *retentionUseCase) DeleteRetentionPolicy(ctx context.Context, tenantID string, logID uuid.UUID) error {
	return r.policyRepo.Delete(ctx, tenantID, logID)
}

func (r *retentionUseCase) ListRetentionPolicies(
	ctx context.Context,
	tenantID string,
) ([]*logsDomain.RetentionPolicy, error) {
	return r.policyRepo.List(ctx, tenantID)
}

func (r *retentionUseCase) CountExpiredEntries(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	now time.Time,
) (int64, error) {
	policy, err := r.policyRepo.Get(ctx, tenantID, logID)
	if err != nil {
		return 0, err
	}
	if policy.Unlimited() {
		return 0, nil
	}
	return r.entryRepo.CountBefore(ctx, tenantID, logID, policy.Cutoff(now))
}

// Enforce applies every policy. A failing log is recorded in the report and
// does not stop the others.
func (r *retentionUseCase) Enforce(ctx context.Context, now time.Time) (*logsDomain.RetentionReport, error) {
	policies, err := r.policyRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &logsDomain.RetentionReport{}
	for _, policy := range policies {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if policy.Unlimited() {
			continue
		}

		archived, deleted, err := r.enforcePolicy(ctx, policy, now)
		report.LogsProcessed++
		report.EntriesArchived += archived
		report.EntriesDeleted += deleted
		if err != nil {
			if r.logger != nil {
				r.logger.Error("failed to enforce retention policy",
					slog.String("tenant_id", policy.TenantID),
					slog.String("log_id", policy.LogID.String()),
					slog.Any("error", err),
				)
			}
			report.Failures = append(report.Failures, logsDomain.RetentionFailure{
				TenantID: policy.TenantID,
				LogID:    policy.LogID,
				Err:      err,
			})
		}
	}

	if r.logger != nil {
		r.logger.Info("retention enforced",
			slog.Int("logs_processed", report.LogsProcessed),
			slog.Int("entries_archived", report.EntriesArchived),
			slog.Int("entries_deleted", report.EntriesDeleted),
			slog.Int("failures", len(report.Failures)),
		)
	}
	return report, nil
}

// enforcePolicy removes expired entries of one log in batches. Each batch is
// archived before it is deleted.
func (r *retentionUseCase) enforcePolicy(
	ctx context.Context,
	policy *logsDomain.RetentionPolicy,
	now time.Time,
) (archived, deleted int, err error) {
	cutoff := policy.Cutoff(now)
	for {
		var batch []*logsDomain.EncryptedLogEntry
		err = r.txManager.WithTx(ctx, func(ctx context.Context) error {
			var err error
			batch, err = r.entryRepo.ListBefore(ctx, policy.TenantID, policy.LogID, cutoff, retentionBatchSize)
			if err != nil || len(batch) == 0 {
				return err
			}

			if r.archiver != nil {
				location, err := r.archiver.Archive(ctx, policy.TenantID, policy.LogID, batch)
				if err != nil {
					return err
				}
				if r.logger != nil {
					r.logger.Debug("archived expired entries",
						slog.String("location", location),
						slog.Int("count", len(batch)),
					)
				}
			}

			ids := make([]uuid.UUID, len(batch))
			for i, entry := range batch {
				ids[i] = entry.ID
			}
			n, err := r.entryRepo.Delete(ctx, policy.TenantID, ids)
			if err != nil {
				return err
			}
			if r.archiver != nil {
				archived += len(batch)
			}
			deleted += int(n)
			return nil
		})
		if err != nil || len(batch) < retentionBatchSize {
			return archived, deleted, err
		}
	}
}

// Start runs Enforce every interval until ctx is cancelled.
func Start(ctx context.Context, enforcer RetentionEnforcer, interval time.Duration, logger *slog.Logger) error {
	if logger != nil {
		logger.Info("starting retention enforcer", slog.Duration("interval", interval))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if logger != nil {
				logger.Info("stopping retention enforcer")
			}
			return ctx.Err()
		case now := <-ticker.C:
			if _, err := enforcer.Enforce(ctx, now.UTC()); err != nil && logger != nil {
				logger.Error("failed to enforce retention", slog.Any("error", err))
			}
		}
	}
}
