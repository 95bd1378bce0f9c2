package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecoveryStatus is the status of a recovery session.
type RecoveryStatus string

const (
	RecoveryCollecting RecoveryStatus = "collecting"
	RecoveryReady      RecoveryStatus = "ready"
	// RecoveryCompleting is taken by exactly one completion attempt.
	RecoveryCompleting RecoveryStatus = "completing"
)

// SealedShare is one Shamir share sealed to the session's recipient key. The
// server stores the payload without being able to open it.
type SealedShare struct {
	Index       byte
	Payload     []byte
	SubmittedBy string
	SubmittedAt time.Time
}

// RecoverySession collects sealed shares until enough exist to rebuild a
// lost master secret. It lives only in the session store and is removed on
// completion, cancellation or expiry.
type RecoverySession struct {
	ID                  uuid.UUID
	TenantID            string
	Threshold           int
	TotalShares         int
	RecipientPublicKey  [32]byte
	Shares              []SealedShare
	CompletionTokenHash string
	Status              RecoveryStatus
	CreatedBy           string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// Ready reports whether the session holds at least Threshold shares.
func (s *RecoverySession) Ready() bool {
	return len(s.Shares) >= s.Threshold
}

// HasShare reports whether a share with index was already collected.
func (s *RecoverySession) HasShare(index byte) bool {
	for _, share := range s.Shares {
		if share.Index == index {
			return true
		}
	}
	return false
}

// Expired reports whether the session outlived its TTL at now.
func (s *RecoverySession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RecoveryResult is returned once a recovery is committed.
type RecoveryResult struct {
	Version *KEKVersion
	Grant   *UserKEKGrant
	Carried []*UserKEKGrant
	Job     *RotationJob
	// Superseded is the rotation job that recovery closed unfinished.
	Superseded *RotationJob
}
