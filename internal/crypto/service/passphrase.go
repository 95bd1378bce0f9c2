package service

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// Argon2id parameters for passphrase-derived master secrets (RFC 9106
// second recommended option).
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// DeriveMasterSecret stretches a passphrase into a tenant master secret with
// Argon2id. The salt is derived from the tenant id so every member of the
// tenant who knows the passphrase arrives at the same secret.
func DeriveMasterSecret(passphrase []byte, tenantID string) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, cryptoDomain.ErrEmptySecret
	}
	salt := sha256.Sum256([]byte("logvault/master-secret/" + tenantID))
	return argon2.IDKey(passphrase, salt[:16], argon2Time, argon2Memory, argon2Threads, cryptoDomain.KeySize), nil
}
