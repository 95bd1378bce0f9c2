package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// KEKVersionManager lists, creates and provisions KEK versions of the
// client's tenant.
type KEKVersionManager interface {
	GetKEKVersions(ctx context.Context) ([]*kekDomain.KEKVersion, error)
	CreateKEKVersion(ctx context.Context, reason string) (*kekDomain.RotationResult, error)
	ProvisionKEKForUser(ctx context.Context, userID string, versionID uuid.UUID) (*kekDomain.UserKEKGrant, error)
}

// RunListKEKVersions prints the tenant's KEK versions, newest first.
func RunListKEKVersions(ctx context.Context, manager KEKVersionManager, w io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	versions, err := manager.GetKEKVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list kek versions: %w", err)
	}

	if format == "json" {
		items := make([]map[string]any, 0, len(versions))
		for _, v := range versions {
			items = append(items, versionJSON(v))
		}
		return writeJSON(w, items)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tCREATED AT\tCREATED BY\tREASON")
	for _, v := range versions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Status, v.CreatedAt.Format(time.RFC3339), v.CreatedBy, v.Reason)
	}
	return tw.Flush()
}

// RunCreateKEKVersion makes a new active KEK version without moving any log.
// Logs move to it lazily as entries are appended; rotate-kek moves them all.
func RunCreateKEKVersion(
	ctx context.Context,
	manager KEKVersionManager,
	logger *slog.Logger,
	w io.Writer,
	reason, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	result, err := manager.CreateKEKVersion(ctx, reason)
	if err != nil {
		return fmt.Errorf("failed to create kek version: %w", err)
	}

	logger.Info("kek version created",
		slog.String("kek_version_id", result.Version.ID.String()),
		slog.String("reason", reason),
	)

	if format == "json" {
		return writeJSON(w, versionJSON(result.Version))
	}
	_, _ = fmt.Fprintf(w, "Created KEK version %s (%s)\n", result.Version.ID, result.Version.Status)
	if result.Previous != nil {
		_, _ = fmt.Fprintf(w, "Previous version %s is now %s\n", result.Previous.ID, result.Previous.Status)
	}
	return nil
}

// RunProvisionKEK grants userID access to a KEK version. versionStr may be
// empty for the newest version.
func RunProvisionKEK(
	ctx context.Context,
	manager KEKVersionManager,
	logger *slog.Logger,
	w io.Writer,
	userID, versionStr string,
) error {
	var versionID uuid.UUID
	if versionStr == "" {
		versions, err := manager.GetKEKVersions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list kek versions: %w", err)
		}
		if len(versions) == 0 {
			return fmt.Errorf("failed to provision kek: %w", kekDomain.ErrNoActiveVersion)
		}
		versionID = versions[0].ID
	} else {
		parsed, err := uuid.Parse(versionStr)
		if err != nil {
			return fmt.Errorf("invalid version id %q: %w", versionStr, err)
		}
		versionID = parsed
	}

	grant, err := manager.ProvisionKEKForUser(ctx, userID, versionID)
	if err != nil {
		return fmt.Errorf("failed to provision kek: %w", err)
	}

	kind := "derivation"
	if grant.IsWrapped() {
		kind = "wrapped"
	}
	logger.Info("kek provisioned",
		slog.String("user_id", userID),
		slog.String("kek_version_id", versionID.String()),
		slog.String("grant", kind),
	)
	_, _ = fmt.Fprintf(w, "Granted %s access to KEK version %s (%s grant)\n", userID, versionID, kind)
	return nil
}

func versionJSON(v *kekDomain.KEKVersion) map[string]any {
	return map[string]any{
		"id":         v.ID.String(),
		"status":     string(v.Status),
		"created_at": v.CreatedAt.Format(time.RFC3339),
		"created_by": v.CreatedBy,
		"reason":     v.Reason,
	}
}
