// Package dto provides the request and response bodies of the encrypted log API.
package dto

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	customValidation "github.com/allisson/logvault/internal/validation"
)

const (
	maxEncryptedNameLength = 1024
	maxSearchTokens        = 256
	// maxCiphertextLength bounds one encrypted entry (1 MiB, base64 encoded).
	maxCiphertextLength = 1 << 20

	unlimitedRetention = "unlimited"
)

var algorithmRule = validation.In(string(cryptoDomain.AESGCM), string(cryptoDomain.ChaCha20))

// WrappedKeyRequest is a DEK wrapped under a KEK version.
type WrappedKeyRequest struct {
	Algorithm     string `json:"algorithm"`
	EncryptedKey  string `json:"encrypted_key"`
	Nonce         string `json:"nonce"`
	// EncryptedName is the log name under the key's version. Optional.
	EncryptedName string `json:"encrypted_name,omitempty"`
}

// Validate checks the request. It has a value receiver so that it also runs
// when nested in CreateLogRequest.
func (r WrappedKeyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Algorithm, validation.Required, algorithmRule),
		validation.Field(&r.EncryptedKey, validation.Required, customValidation.Base64, validation.Length(1, 512)),
		validation.Field(&r.Nonce, validation.Required, customValidation.Base64, validation.Length(1, 64)),
		validation.Field(&r.EncryptedName, validation.Length(0, 512)),
	)
}

// ToDomain converts a validated request into a log key.
func (r WrappedKeyRequest) ToDomain(logID, versionID uuid.UUID) *logsDomain.LogKey {
	encryptedKey, _ := base64.StdEncoding.DecodeString(r.EncryptedKey)
	nonce, _ := base64.StdEncoding.DecodeString(r.Nonce)
	return &logsDomain.LogKey{
		LogID:         logID,
		KEKVersionID:  versionID,
		Algorithm:     cryptoDomain.Algorithm(r.Algorithm),
		EncryptedKey:  encryptedKey,
		Nonce:         nonce,
		EncryptedName: r.EncryptedName,
	}
}

// CreateLogRequest registers a log with its first wrapped DEK. The id is
// chosen by the client since it is bound into every entry's AAD.
type CreateLogRequest struct {
	ID            string            `json:"id"`
	EncryptedName string            `json:"encrypted_name"`
	KEKVersionID  string            `json:"kek_version_id"`
	Key           WrappedKeyRequest `json:"key"`
}

// Validate checks the request.
func (r *CreateLogRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, customValidation.UUID),
		validation.Field(&r.EncryptedName,
			validation.Required,
			customValidation.NoWhitespace,
			validation.Length(1, maxEncryptedNameLength),
		),
		validation.Field(&r.KEKVersionID, validation.Required, customValidation.UUID),
		validation.Field(&r.Key),
	)
}

// ToDomain converts a validated request into a log and its key.
func (r *CreateLogRequest) ToDomain() (*logsDomain.Log, *logsDomain.LogKey) {
	logID := uuid.MustParse(r.ID)
	versionID := uuid.MustParse(r.KEKVersionID)
	log := &logsDomain.Log{
		ID:            logID,
		EncryptedName: r.EncryptedName,
		KEKVersionID:  versionID,
	}
	return log, r.Key.ToDomain(logID, versionID)
}

// UpdateLogNameRequest replaces a log's encrypted name during rotation.
type UpdateLogNameRequest struct {
	EncryptedName string `json:"encrypted_name"`
	KEKVersionID  string `json:"kek_version_id"`
}

// Validate checks the request.
func (r *UpdateLogNameRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.EncryptedName,
			validation.Required,
			customValidation.NoWhitespace,
			validation.Length(1, maxEncryptedNameLength),
		),
		validation.Field(&r.KEKVersionID, validation.Required, customValidation.UUID),
	)
}

// AppendEntryRequest stores one encrypted entry.
type AppendEntryRequest struct {
	ID           string     `json:"id"`
	KEKVersionID string     `json:"kek_version_id"`
	Algorithm    string     `json:"algorithm"`
	Ciphertext   string     `json:"ciphertext"`
	Nonce        string     `json:"nonce"`
	SearchTokens []string   `json:"search_tokens"`
	Timestamp    *time.Time `json:"timestamp"`
}

// Validate checks the request.
func (r *AppendEntryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, customValidation.UUID),
		validation.Field(&r.KEKVersionID, validation.Required, customValidation.UUID),
		validation.Field(&r.Algorithm, validation.Required, algorithmRule),
		validation.Field(&r.Ciphertext,
			validation.Required,
			customValidation.Base64,
			validation.Length(1, base64.StdEncoding.EncodedLen(maxCiphertextLength)),
		),
		validation.Field(&r.Nonce, validation.Required, customValidation.Base64, validation.Length(1, 64)),
		validation.Field(&r.SearchTokens,
			validation.Length(0, maxSearchTokens),
			validation.Each(customValidation.SearchToken),
		),
	)
}

// ToDomain converts a validated request into an entry of logID.
func (r *AppendEntryRequest) ToDomain(logID uuid.UUID) *logsDomain.EncryptedLogEntry {
	ciphertext, _ := base64.StdEncoding.DecodeString(r.Ciphertext)
	nonce, _ := base64.StdEncoding.DecodeString(r.Nonce)
	entry := &logsDomain.EncryptedLogEntry{
		ID:           uuid.MustParse(r.ID),
		LogID:        logID,
		KEKVersionID: uuid.MustParse(r.KEKVersionID),
		Algorithm:    cryptoDomain.Algorithm(r.Algorithm),
		Ciphertext:   ciphertext,
		Nonce:        nonce,
		SearchTokens: r.SearchTokens,
	}
	if r.Timestamp != nil {
		entry.Timestamp = r.Timestamp.UTC()
	}
	return entry
}

// SetRetentionPolicyRequest sets how long a log keeps its entries.
// RetentionPeriod is a Go duration such as "720h", or "unlimited".
type SetRetentionPolicyRequest struct {
	RetentionPeriod string `json:"retention_period"`
}

// Validate checks the request.
func (r *SetRetentionPolicyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RetentionPeriod, validation.Required, validation.By(func(value interface{}) error {
			_, err := ParseRetentionPeriod(value.(string))
			return err
		})),
	)
}

// ParseRetentionPeriod parses a positive Go duration or "unlimited".
func ParseRetentionPeriod(raw string) (time.Duration, error) {
	if strings.EqualFold(raw, unlimitedRetention) {
		return logsDomain.UnlimitedRetention, nil
	}
	period, err := time.ParseDuration(raw)
	if err != nil || period <= 0 {
		return 0, fmt.Errorf("must be a positive duration or %q", unlimitedRetention)
	}
	return period, nil
}

// FormatRetentionPeriod is the inverse of ParseRetentionPeriod.
func FormatRetentionPeriod(period time.Duration) string {
	if period < 0 {
		return unlimitedRetention
	}
	return period.String()
}
