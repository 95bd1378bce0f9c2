package domain

import (
	"time"

	"github.com/google/uuid"
)

// RotationMode selects how a log follows its tenant to a new KEK version.
type RotationMode string

const (
	// ModeRewrap wraps the existing DEK under the new KEK.
	ModeRewrap RotationMode = "rewrap"

	// ModeRekey generates a fresh DEK for the new version so that users
	// removed in the rotation cannot read data written after it.
	ModeRekey RotationMode = "rekey"
)

// JobStatus is the status of a rotation job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobPartial   JobStatus = "partial"
	JobCompleted JobStatus = "completed"

	// JobSuperseded marks a job closed unfinished by a recovery, which
	// moves every log to the recovered version instead.
	JobSuperseded JobStatus = "superseded"
)

// ItemStatus is the status of one log within a rotation job.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemDone    ItemStatus = "done"
	ItemFailed  ItemStatus = "failed"
)

// RotationJob is the resumable batch that moves every log of a tenant from
// one KEK version to the next.
type RotationJob struct {
	ID            uuid.UUID
	TenantID      string
	FromVersionID uuid.UUID
	ToVersionID   uuid.UUID
	Mode          RotationMode
	Status        JobStatus
	Reason        string
	TotalItems    int
	DoneItems     int
	FailedItems   int
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// IsCompleted reports whether every item of the job has been migrated.
func (j *RotationJob) IsCompleted() bool {
	return j.Status == JobCompleted
}

// IsClosed reports whether the job accepts no more progress.
func (j *RotationJob) IsClosed() bool {
	return j.Status == JobCompleted || j.Status == JobSuperseded
}

// RotationItem tracks the migration of a single log.
type RotationItem struct {
	JobID     uuid.UUID
	LogID     uuid.UUID
	Status    ItemStatus
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

// RotationResult is returned by a version rotation.
type RotationResult struct {
	Version *KEKVersion
	// Previous is the version demoted to decrypt-only, nil for a first version.
	Previous *KEKVersion
	Grant    *UserKEKGrant
	// Carried are the grants copied from the previous version. They start
	// as derivation grants until a client holding the new KEK seals them.
	Carried []*UserKEKGrant
	// Job is nil when no previous version existed.
	Job *RotationJob
}
