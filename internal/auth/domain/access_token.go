// Package domain defines bearer access tokens and the principal they
// authenticate as.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role decides which administrative routes a principal may call.
type Role string

const (
	// RoleAdmin may create and rotate KEK versions, provision grants and drive recovery.
	RoleAdmin Role = "admin"
	// RoleMember may read and write logs and submit recovery shares.
	RoleMember Role = "member"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleMember:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// AccessToken is the stored form of a bearer token. Only the SHA-256 hash of
// the plain token is kept.
type AccessToken struct {
	ID        uuid.UUID
	TenantID  string
	UserID    string
	Role      Role
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Valid reports whether the token may authenticate at now.
func (t *AccessToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// Principal returns who the token authenticates as.
func (t *AccessToken) Principal() *Principal {
	return &Principal{TenantID: t.TenantID, UserID: t.UserID, Role: t.Role}
}

// Principal is the authenticated caller of a request.
type Principal struct {
	TenantID string
	UserID   string
	Role     Role
}

// CreateAccessTokenInput describes a token to mint.
type CreateAccessTokenInput struct {
	TenantID string
	UserID   string
	Role     Role
	// TTL overrides the configured lifetime when positive.
	TTL time.Duration
}

// CreateAccessTokenOutput carries the plain token, shown once.
type CreateAccessTokenOutput struct {
	ID         uuid.UUID
	PlainToken string
	ExpiresAt  time.Time
}
