package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/allisson/logvault/internal/client"
)

// KEKRotator rotates the tenant KEK and drives rotation jobs.
type KEKRotator interface {
	RotateKEK(ctx context.Context, reason string, removedUsers []string) (*client.RotationOutcome, error)
	ResumeRotation(ctx context.Context) (*client.RotationOutcome, error)
}

// RunRotateKEK creates a new KEK version and moves every log to it. Logs are
// rewrapped when nobody is removed and rekeyed otherwise, so removed users
// cannot read anything written afterwards. A partial job is reported, not
// failed; resume-rotation continues it.
func RunRotateKEK(
	ctx context.Context,
	rotator KEKRotator,
	logger *slog.Logger,
	w io.Writer,
	reason string,
	removedUsers []string,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("rotating kek", slog.String("reason", reason), slog.Int("removed_users", len(removedUsers)))

	outcome, err := rotator.RotateKEK(ctx, reason, removedUsers)
	if outcome == nil && err != nil {
		return fmt.Errorf("failed to rotate kek: %w", err)
	}
	if writeErr := writeRotationOutcome(w, outcome, format); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return fmt.Errorf("failed to rotate kek: %w", err)
	}
	return nil
}

// RunResumeRotation retries the pending and failed logs of the tenant's
// latest rotation job.
func RunResumeRotation(ctx context.Context, rotator KEKRotator, logger *slog.Logger, w io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	logger.Info("resuming rotation")

	outcome, err := rotator.ResumeRotation(ctx)
	if outcome == nil && err != nil {
		return fmt.Errorf("failed to resume rotation: %w", err)
	}
	if writeErr := writeRotationOutcome(w, outcome, format); writeErr != nil {
		return writeErr
	}
	if err != nil {
		return fmt.Errorf("failed to resume rotation: %w", err)
	}
	return nil
}

func writeRotationOutcome(w io.Writer, outcome *client.RotationOutcome, format string) error {
	var failures []map[string]string
	if outcome.Report != nil {
		for _, failure := range outcome.Report.Failed {
			failures = append(failures, map[string]string{
				"log_id": failure.LogID.String(),
				"error":  failure.Err.Error(),
			})
		}
	}

	if format == "json" {
		result := map[string]any{
			"kek_version_id": outcome.Version.ID.String(),
			"completed":      outcome.Completed(),
			"failures":       failures,
		}
		if outcome.Previous != nil {
			result["previous_version_id"] = outcome.Previous.ID.String()
		}
		if outcome.Job != nil {
			result["job"] = map[string]any{
				"id":           outcome.Job.ID.String(),
				"mode":         string(outcome.Job.Mode),
				"status":       string(outcome.Job.Status),
				"total_items":  outcome.Job.TotalItems,
				"done_items":   outcome.Job.DoneItems,
				"failed_items": outcome.Job.FailedItems,
			}
		}
		return writeJSON(w, result)
	}

	_, _ = fmt.Fprintf(w, "Active KEK version: %s\n", outcome.Version.ID)
	if outcome.Previous != nil {
		_, _ = fmt.Fprintf(w, "Previous version: %s (%s)\n", outcome.Previous.ID, outcome.Previous.Status)
	}
	if outcome.Job == nil {
		_, _ = fmt.Fprintln(w, "No logs to move")
		return nil
	}
	_, _ = fmt.Fprintf(w, "Rotation job %s (%s): %s, %d/%d logs done, %d failed\n",
		outcome.Job.ID, outcome.Job.Mode, outcome.Job.Status,
		outcome.Job.DoneItems, outcome.Job.TotalItems, outcome.Job.FailedItems)
	for _, failure := range failures {
		_, _ = fmt.Fprintf(w, "  log %s: %s\n", failure["log_id"], failure["error"])
	}
	if !outcome.Completed() {
		_, _ = fmt.Fprintln(w, "Run resume-rotation to retry the remaining logs")
	}
	return nil
}
