package domain

import (
	"time"

	"github.com/google/uuid"
)

// TenantState is the per-tenant key lifecycle state.
//
//	no-active-version -> active-version-present <-> rotating
//	any idle state -> recovering -> rotating -> active-version-present
type TenantState string

const (
	StateNoActiveVersion TenantState = "no-active-version"
	StateActive          TenantState = "active-version-present"
	StateRotating        TenantState = "rotating"
	StateRecovering      TenantState = "recovering"
)

// TenantKeyState is the persisted state of a tenant with an optimistic
// concurrency revision. Every write must present the revision it read.
type TenantKeyState struct {
	TenantID string
	State    TenantState
	// Revision is zero for a tenant that has never been written.
	Revision int64
	// OperationID is the rotation job or recovery session holding the tenant
	// in a busy state, uuid.Nil otherwise.
	OperationID uuid.UUID
	UpdatedAt   time.Time
}

// NewTenantKeyState returns the initial state of a tenant with no versions.
func NewTenantKeyState(tenantID string) *TenantKeyState {
	return &TenantKeyState{TenantID: tenantID, State: StateNoActiveVersion}
}

// Busy reports whether a rotation or recovery holds the tenant.
func (s *TenantKeyState) Busy() bool {
	return s.State == StateRotating || s.State == StateRecovering
}
