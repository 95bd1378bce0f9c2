package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	"github.com/allisson/logvault/internal/logs/http/dto"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
)

// RetentionClient sets and removes retention policies by log name.
type RetentionClient interface {
	SetRetentionPolicy(ctx context.Context, logName string, period time.Duration) (*logsDomain.RetentionPolicy, error)
	DeleteRetentionPolicy(ctx context.Context, logName string) error
}

// RetentionFile is the YAML document read by apply-retention:
//
//	policies:
//	  - log: sys
//	    retention: 720h
//	  - log: audit
//	    retention: unlimited
//	  - log: scratch
//	    delete: true
type RetentionFile struct {
	Policies []RetentionEntry `yaml:"policies"`
}

// RetentionEntry is one log's policy in a RetentionFile.
type RetentionEntry struct {
	Log       string `yaml:"log"`
	Retention string `yaml:"retention"`
	Delete    bool   `yaml:"delete"`
}

// RunApplyRetention applies every policy of the YAML file at path. The file
// is validated completely before anything is changed.
func RunApplyRetention(ctx context.Context, retention RetentionClient, logger *slog.Logger, w io.Writer, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read retention file: %w", err)
	}

	var file RetentionFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse retention file: %w", err)
	}

	periods := make([]time.Duration, len(file.Policies))
	for i, entry := range file.Policies {
		if entry.Log == "" {
			return fmt.Errorf("policy %d: log is required", i+1)
		}
		if entry.Delete {
			continue
		}
		period, err := dto.ParseRetentionPeriod(entry.Retention)
		if err != nil {
			return fmt.Errorf("policy %d (%s): retention %w", i+1, entry.Log, err)
		}
		periods[i] = period
	}

	for i, entry := range file.Policies {
		if entry.Delete {
			if err := retention.DeleteRetentionPolicy(ctx, entry.Log); err != nil {
				return fmt.Errorf("failed to delete retention policy of %s: %w", entry.Log, err)
			}
			_, _ = fmt.Fprintf(w, "%s: policy removed\n", entry.Log)
			continue
		}
		policy, err := retention.SetRetentionPolicy(ctx, entry.Log, periods[i])
		if err != nil {
			return fmt.Errorf("failed to set retention policy of %s: %w", entry.Log, err)
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", entry.Log, dto.FormatRetentionPeriod(policy.RetentionPeriod))
	}

	logger.Info("retention policies applied", slog.Int("count", len(file.Policies)))
	return nil
}

// RunEnforceRetention deletes the expired entries of every tenant, archiving
// them first when an archive is configured. Logs that fail are reported and
// make the command fail after the others are processed.
func RunEnforceRetention(
	ctx context.Context,
	enforcer logsUsecase.RetentionEnforcer,
	logger *slog.Logger,
	w io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	report, err := enforcer.Enforce(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to enforce retention: %w", err)
	}

	logger.Info("retention enforced",
		slog.Int("logs_processed", report.LogsProcessed),
		slog.Int("entries_archived", report.EntriesArchived),
		slog.Int("entries_deleted", report.EntriesDeleted),
		slog.Int("failures", len(report.Failures)),
	)

	if format == "json" {
		failures := make([]map[string]string, 0, len(report.Failures))
		for _, failure := range report.Failures {
			failures = append(failures, map[string]string{
				"tenant_id": failure.TenantID,
				"log_id":    failure.LogID.String(),
				"error":     failure.Err.Error(),
			})
		}
		if err := writeJSON(w, map[string]any{
			"logs_processed":   report.LogsProcessed,
			"entries_archived": report.EntriesArchived,
			"entries_deleted":  report.EntriesDeleted,
			"failures":         failures,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(w, "Processed %d log(s): %d entries deleted, %d archived\n",
			report.LogsProcessed, report.EntriesDeleted, report.EntriesArchived)
		for _, failure := range report.Failures {
			_, _ = fmt.Fprintf(w, "  %s/%s: %v\n", failure.TenantID, failure.LogID, failure.Err)
		}
	}

	if len(report.Failures) > 0 {
		return fmt.Errorf("retention failed for %d log(s)", len(report.Failures))
	}
	return nil
}
