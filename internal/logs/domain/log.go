// Package domain defines the server-side ciphertext records of encrypted logs.
//
// Nothing in this package holds plaintext: log names are deterministic
// ciphertexts, entries are AEAD ciphertexts, and search tokens are keyed
// HMACs the server can only compare for equality.
package domain

import (
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
)

// Log is the record behind an encrypted log name.
type Log struct {
	ID       uuid.UUID
	TenantID string
	// EncryptedName is the base64url deterministic ciphertext of the name.
	EncryptedName string
	// KEKVersionID is the version whose name key produced EncryptedName.
	KEKVersionID uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LogKey is a log's DEK wrapped under one KEK version. A log keeps one row per
// version it has been migrated to; older rows remain for decrypting history.
type LogKey struct {
	TenantID     string
	LogID        uuid.UUID
	KEKVersionID uuid.UUID
	Algorithm    cryptoDomain.Algorithm
	EncryptedKey []byte
	Nonce        []byte
	// EncryptedName is the log name under this version's KEK. It keeps a
	// log findable by name for users who only hold an older version.
	EncryptedName string
	CreatedAt     time.Time
}

// Blob returns the wrapped key as a crypto blob.
func (k *LogKey) Blob() cryptoDomain.Blob {
	return cryptoDomain.Blob{Algorithm: k.Algorithm, Ciphertext: k.EncryptedKey, Nonce: k.Nonce}
}

// EncryptedLogEntry is one log entry as stored by the server.
type EncryptedLogEntry struct {
	// ID is generated by the client and bound into the entry's AAD.
	ID           uuid.UUID
	TenantID     string
	LogID        uuid.UUID
	KEKVersionID uuid.UUID
	Algorithm    cryptoDomain.Algorithm
	Ciphertext   []byte
	Nonce        []byte
	SearchTokens []string
	Timestamp    time.Time
	CreatedAt    time.Time
}

// EntryFilter narrows entry listings and searches.
type EntryFilter struct {
	// LogID restricts results to one log when set.
	LogID *uuid.UUID
	// From and To bound entry timestamps as the half-open range [From, To).
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

// SearchQuery matches entries holding every token of at least one group.
//
// Each group is the token set of one query under one DEK generation; a query
// over a log with history under several DEKs yields one group per DEK.
type SearchQuery struct {
	Groups [][]string
	EntryFilter
}
