package dto

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// LogResponse is a log record.
type LogResponse struct {
	ID            string    `json:"id"`
	EncryptedName string    `json:"encrypted_name"`
	KEKVersionID  string    `json:"kek_version_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MapLogToResponse converts a domain log.
func MapLogToResponse(log *logsDomain.Log) LogResponse {
	return LogResponse{
		ID:            log.ID.String(),
		EncryptedName: log.EncryptedName,
		KEKVersionID:  log.KEKVersionID.String(),
		CreatedAt:     log.CreatedAt,
		UpdatedAt:     log.UpdatedAt,
	}
}

// ListLogsResponse lists logs.
type ListLogsResponse struct {
	Data []LogResponse `json:"data"`
}

// MapLogsToListResponse converts a log list.
func MapLogsToListResponse(logs []*logsDomain.Log) ListLogsResponse {
	data := make([]LogResponse, 0, len(logs))
	for _, log := range logs {
		data = append(data, MapLogToResponse(log))
	}
	return ListLogsResponse{Data: data}
}

// LogKeyResponse is a wrapped DEK.
type LogKeyResponse struct {
	LogID         string    `json:"log_id"`
	KEKVersionID  string    `json:"kek_version_id"`
	Algorithm     string    `json:"algorithm"`
	EncryptedKey  string    `json:"encrypted_key"`
	Nonce         string    `json:"nonce"`
	// EncryptedName is empty for keys stored without a name.
	EncryptedName string    `json:"encrypted_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MapLogKeyToResponse converts a domain log key.
func MapLogKeyToResponse(key *logsDomain.LogKey) LogKeyResponse {
	return LogKeyResponse{
		LogID:         key.LogID.String(),
		KEKVersionID:  key.KEKVersionID.String(),
		Algorithm:     string(key.Algorithm),
		EncryptedKey:  base64.StdEncoding.EncodeToString(key.EncryptedKey),
		Nonce:         base64.StdEncoding.EncodeToString(key.Nonce),
		EncryptedName: key.EncryptedName,
		CreatedAt:     key.CreatedAt,
	}
}

// ListLogKeysResponse lists the keys of a log readable by the caller.
type ListLogKeysResponse struct {
	Data []LogKeyResponse `json:"data"`
}

// MapLogKeysToListResponse converts a key list.
func MapLogKeysToListResponse(keys []*logsDomain.LogKey) ListLogKeysResponse {
	data := make([]LogKeyResponse, 0, len(keys))
	for _, key := range keys {
		data = append(data, MapLogKeyToResponse(key))
	}
	return ListLogKeysResponse{Data: data}
}

// EntryResponse is an encrypted entry. Search tokens are not echoed back.
type EntryResponse struct {
	ID           string    `json:"id"`
	LogID        string    `json:"log_id"`
	KEKVersionID string    `json:"kek_version_id"`
	Algorithm    string    `json:"algorithm"`
	Ciphertext   string    `json:"ciphertext"`
	Nonce        string    `json:"nonce"`
	Timestamp    time.Time `json:"timestamp"`
	CreatedAt    time.Time `json:"created_at"`
}

// MapEntryToResponse converts a domain entry.
func MapEntryToResponse(entry *logsDomain.EncryptedLogEntry) EntryResponse {
	return EntryResponse{
		ID:           entry.ID.String(),
		LogID:        entry.LogID.String(),
		KEKVersionID: entry.KEKVersionID.String(),
		Algorithm:    string(entry.Algorithm),
		Ciphertext:   base64.StdEncoding.EncodeToString(entry.Ciphertext),
		Nonce:        base64.StdEncoding.EncodeToString(entry.Nonce),
		Timestamp:    entry.Timestamp,
		CreatedAt:    entry.CreatedAt,
	}
}

// ListEntriesResponse lists entries ordered by timestamp.
type ListEntriesResponse struct {
	Data []EntryResponse `json:"data"`
}

// MapEntriesToListResponse converts an entry list.
func MapEntriesToListResponse(entries []*logsDomain.EncryptedLogEntry) ListEntriesResponse {
	data := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		data = append(data, MapEntryToResponse(entry))
	}
	return ListEntriesResponse{Data: data}
}

// RetentionPolicyResponse is a retention policy.
type RetentionPolicyResponse struct {
	LogID            string    `json:"log_id"`
	RetentionPeriod  string    `json:"retention_period"`
	RetentionSeconds int64     `json:"retention_seconds"`
	CreatedBy        string    `json:"created_by"`
	UpdatedBy        string    `json:"updated_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MapRetentionPolicyToResponse converts a domain policy. Unlimited policies
// report -1 seconds.
func MapRetentionPolicyToResponse(policy *logsDomain.RetentionPolicy) RetentionPolicyResponse {
	seconds := int64(-1)
	if !policy.Unlimited() {
		seconds = int64(policy.RetentionPeriod / time.Second)
	}
	return RetentionPolicyResponse{
		LogID:            policy.LogID.String(),
		RetentionPeriod:  FormatRetentionPeriod(policy.RetentionPeriod),
		RetentionSeconds: seconds,
		CreatedBy:        policy.CreatedBy,
		UpdatedBy:        policy.UpdatedBy,
		CreatedAt:        policy.CreatedAt,
		UpdatedAt:        policy.UpdatedAt,
	}
}

// ListRetentionPoliciesResponse lists the tenant's policies.
type ListRetentionPoliciesResponse struct {
	Data []RetentionPolicyResponse `json:"data"`
}

// MapRetentionPoliciesToListResponse converts a policy list.
func MapRetentionPoliciesToListResponse(policies []*logsDomain.RetentionPolicy) ListRetentionPoliciesResponse {
	data := make([]RetentionPolicyResponse, 0, len(policies))
	for _, policy := range policies {
		data = append(data, MapRetentionPolicyToResponse(policy))
	}
	return ListRetentionPoliciesResponse{Data: data}
}

// ExpiredEntriesResponse reports how many entries a policy expires now.
type ExpiredEntriesResponse struct {
	LogID   string    `json:"log_id"`
	Expired int64     `json:"expired"`
	AsOf    time.Time `json:"as_of"`
}

// MapExpiredEntriesToResponse builds an ExpiredEntriesResponse.
func MapExpiredEntriesToResponse(logID uuid.UUID, expired int64, asOf time.Time) ExpiredEntriesResponse {
	return ExpiredEntriesResponse{LogID: logID.String(), Expired: expired, AsOf: asOf}
}
