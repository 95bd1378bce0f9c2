package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedRetention keeps entries forever.
const UnlimitedRetention time.Duration = -1

// RetentionPolicy bounds how long a log's entries are kept.
type RetentionPolicy struct {
	TenantID string
	LogID    uuid.UUID
	// RetentionPeriod is the maximum entry age, or UnlimitedRetention.
	RetentionPeriod time.Duration
	CreatedBy       string
	UpdatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Unlimited reports whether the policy never expires entries.
func (p *RetentionPolicy) Unlimited() bool {
	return p.RetentionPeriod < 0
}

// Cutoff returns the timestamp before which entries are expired at now.
func (p *RetentionPolicy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.RetentionPeriod)
}

// RetentionReport summarizes one enforcement run.
type RetentionReport struct {
	LogsProcessed   int
	EntriesArchived int
	EntriesDeleted  int
	Failures        []RetentionFailure
}

// RetentionFailure is a log whose expired entries could not be removed.
type RetentionFailure struct {
	TenantID string
	LogID    uuid.UUID
	Err      error
}
