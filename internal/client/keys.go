package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/rotation"
)

// RotationOutcome describes a version change and the job that moved the logs.
type RotationOutcome struct {
	Version  *kekDomain.KEKVersion
	Previous *kekDomain.KEKVersion
	// Job is the finalized job, nil for a first version.
	Job *kekDomain.RotationJob
	// Report is nil when no log had to be moved.
	Report *rotation.Report
}

// Completed reports whether every log now lives under the new version.
func (o *RotationOutcome) Completed() bool {
	return o.Job == nil || o.Job.IsCompleted()
}

// GetKEKVersions returns the tenant's versions, newest first.
func (c *Client) GetKEKVersions(ctx context.Context) ([]*kekDomain.KEKVersion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek versions: %w", err)
	}
	versions, err := c.keys.GetKEKVersions(ctx, principal.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get kek versions: %w", err)
	}
	return versions, nil
}

// CreateKEKVersion makes a new active version. Logs are not moved; entries
// appended afterwards move their log lazily.
func (c *Client) CreateKEKVersion(ctx context.Context, reason string) (*kekDomain.RotationResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, ring, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to create kek version: %w", err)
	}
	result, err := c.keys.CreateKEKVersion(ctx, principal.TenantID, principal.UserID, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to create kek version: %w", err)
	}
	if err := c.sealCarriedGrants(ctx, principal.TenantID, ring, result.Version.ID, result.Carried); err != nil {
		return result, fmt.Errorf("failed to create kek version: %w", err)
	}
	return result, nil
}

// RotateKEK makes a new active version without the grants of removedUsers
// and moves every log to it. Removing users rekeys the logs so they cannot
// read anything written afterwards. A job left partial by failing logs can
// be continued with ResumeRotation.
func (c *Client) RotateKEK(ctx context.Context, reason string, removedUsers []string) (*RotationOutcome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, ring, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to rotate kek: %w", err)
	}
	result, err := c.keys.RotateKEK(ctx, principal.TenantID, principal.UserID, reason, removedUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate kek: %w", err)
	}
	c.logger.Info("kek rotated",
		slog.String("tenant_id", principal.TenantID),
		slog.String("kek_version_id", result.Version.ID.String()),
		slog.Int("removed_users", len(removedUsers)),
	)

	// A grant left unsealed is reported after the job; the logs still move.
	sealErr := c.sealCarriedGrants(ctx, principal.TenantID, ring, result.Version.ID, result.Carried)

	outcome := &RotationOutcome{Version: result.Version, Previous: result.Previous, Job: result.Job}
	if result.Job != nil {
		outcome.Job, outcome.Report, err = c.runJob(ctx, result.Job)
	}
	if err = errors.Join(err, sealErr); err != nil {
		return outcome, fmt.Errorf("failed to rotate kek: %w", err)
	}
	return outcome, nil
}

// sealCarriedGrants seals the KEK of versionID to every carried grantee
// with a registered public key, so users who hold a key pair instead of the
// master secret keep access after a rotation. The others keep derivation
// grants.
func (c *Client) sealCarriedGrants(
	ctx context.Context,
	tenantID string,
	ring *keyRing,
	versionID uuid.UUID,
	carried []*kekDomain.UserKEKGrant,
) error {
	if len(carried) == 0 {
		return nil
	}
	kek, err := ring.KEK(ctx, versionID)
	if err != nil {
		return err
	}

	var errs []error
	for _, grant := range carried {
		if grant.IsWrapped() {
			continue
		}
		publicKey, err := c.keys.GetPublicKey(ctx, tenantID, grant.UserID)
		if errors.Is(err, kekDomain.ErrPublicKeyNotFound) {
			continue
		}
		if err == nil {
			var wrapped []byte
			wrapped, err = c.hierarchy.WrapKEKForUser(kek, publicKey.PublicKey)
			if err == nil {
				_, err = c.keys.ProvisionKEKForUser(ctx, tenantID, grant.UserID, versionID, wrapped)
			}
		}
		if err != nil {
			c.logger.Warn("carried grant left unsealed",
				slog.String("user_id", grant.UserID),
				slog.String("kek_version_id", versionID.String()),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("seal grant of %s: %w", grant.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// ResumeRotation continues the tenant's latest rotation job, retrying the
// logs that are still pending or failed.
func (c *Client) ResumeRotation(ctx context.Context) (*RotationOutcome, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, _, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to resume rotation: %w", err)
	}
	job, err := c.keys.GetCurrentRotationJob(ctx, principal.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resume rotation: %w", err)
	}
	version, err := c.keys.GetActiveVersion(ctx, principal.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resume rotation: %w", err)
	}

	outcome := &RotationOutcome{Version: version, Job: job}
	outcome.Job, outcome.Report, err = c.runJob(ctx, job)
	if err != nil {
		return outcome, fmt.Errorf("failed to resume rotation: %w", err)
	}
	return outcome, nil
}

// runJob moves every unfinished log of job and finalizes it. Callers hold
// c.mu for reading.
func (c *Client) runJob(
	ctx context.Context,
	job *kekDomain.RotationJob,
) (*kekDomain.RotationJob, *rotation.Report, error) {
	if job.IsClosed() {
		return job, nil, nil
	}

	items, err := c.keys.ListRotationItems(ctx, job.TenantID, job.ID, "")
	if err != nil {
		return job, nil, err
	}
	pending := items[:0]
	for _, item := range items {
		if item.Status != kekDomain.ItemDone {
			pending = append(pending, item)
		}
	}

	to, err := c.ring.KEK(ctx, job.ToVersionID)
	if err != nil {
		return job, nil, err
	}
	// A user without access to the old version can still rekey.
	from, err := c.ring.KEK(ctx, job.FromVersionID)
	if err != nil && !errors.Is(err, kekDomain.ErrAccessDenied) {
		return job, nil, err
	}
	mode := job.Mode
	if from == nil {
		mode = kekDomain.ModeRekey
	}

	report, err := c.runner().Run(ctx, job, pending, func(ctx context.Context, item *kekDomain.RotationItem) error {
		return c.logs.ReencryptLog(ctx, item.LogID, from, to, mode)
	})
	if err != nil {
		return job, report, err
	}

	finalized, err := c.keys.FinalizeRotation(ctx, job.TenantID, job.ID)
	if err != nil {
		return job, report, err
	}
	if !finalized.IsCompleted() {
		c.logger.Warn("rotation job left partial",
			slog.String("job_id", job.ID.String()),
			slog.Int("failed", len(report.Failed)),
		)
	}
	return finalized, report, nil
}

// ProvisionKEKForUser grants userID access to versionID. When the user has
// registered a public key the KEK is sealed to it; otherwise the grant lets
// the user derive the KEK from the master secret.
func (c *Client) ProvisionKEKForUser(
	ctx context.Context,
	userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, ring, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to provision kek: %w", err)
	}

	var wrapped []byte
	publicKey, err := c.keys.GetPublicKey(ctx, principal.TenantID, userID)
	switch {
	case err == nil:
		kek, err := ring.KEK(ctx, versionID)
		if err != nil {
			return nil, fmt.Errorf("failed to provision kek: %w", err)
		}
		wrapped, err = c.hierarchy.WrapKEKForUser(kek, publicKey.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to provision kek: %w", err)
		}
	case !errors.Is(err, kekDomain.ErrPublicKeyNotFound):
		return nil, fmt.Errorf("failed to provision kek: %w", err)
	}

	grant, err := c.keys.ProvisionKEKForUser(ctx, principal.TenantID, userID, versionID, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to provision kek: %w", err)
	}
	return grant, nil
}

// RegisterPublicKey publishes the public half of the client's key pair so
// admins can seal grants to it.
func (c *Client) RegisterPublicKey(ctx context.Context) (*kekDomain.UserPublicKey, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	principal, ring, err := c.session()
	if err != nil {
		return nil, fmt.Errorf("failed to register public key: %w", err)
	}
	keyPair := ring.pair()
	if keyPair == nil {
		return nil, fmt.Errorf("failed to register public key: %w", ErrNoKeyPair)
	}

	key, err := c.keys.RegisterPublicKey(ctx, principal.TenantID, principal.UserID, keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to register public key: %w", err)
	}
	return key, nil
}
