// Package domain defines the tenant key registry: KEK versions, per-user
// grants, tenant key states, rotation jobs and recovery sessions.
//
// The registry holds metadata only. KEKs are derived or unwrapped on the
// client and never reach the server in plaintext.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// VersionStatus is the lifecycle status of a KEK version.
type VersionStatus string

const (
	// StatusActive marks the single version used to encrypt new data.
	StatusActive VersionStatus = "active"

	// StatusDecryptOnly marks a previous version kept to read older ciphertext.
	StatusDecryptOnly VersionStatus = "decrypt-only"

	// StatusDeprecated marks a version that may no longer be granted to users.
	StatusDeprecated VersionStatus = "deprecated"
)

// KEKVersion is one generation of a tenant's key encryption key.
type KEKVersion struct {
	// ID is a UUIDv7, so ordering by ID orders versions by creation.
	ID        uuid.UUID
	TenantID  string
	Status    VersionStatus
	CreatedAt time.Time
	CreatedBy string
	// Reason is a free-text audit note supplied by the caller.
	Reason string
}

// IsActive reports whether new data may be encrypted under this version.
func (v *KEKVersion) IsActive() bool {
	return v.Status == StatusActive
}

// UserKEKGrant authorizes a user to obtain the KEK of one version.
//
// An empty WrappedKEK is a derivation grant: the user derives the KEK from the
// shared master secret. Otherwise WrappedKEK is the KEK sealed to the user's
// registered public key.
type UserKEKGrant struct {
	TenantID     string
	UserID       string
	KEKVersionID uuid.UUID
	WrappedKEK   []byte
	CreatedAt    time.Time
}

// IsWrapped reports whether the grant carries a sealed KEK.
func (g *UserKEKGrant) IsWrapped() bool {
	return len(g.WrappedKEK) > 0
}

// UserPublicKey is the X25519 key a user registers to receive wrapped grants.
type UserPublicKey struct {
	TenantID  string
	UserID    string
	PublicKey [32]byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
