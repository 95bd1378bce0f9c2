// Package dto provides the request and response bodies of the key registry API.
package dto

import (
	"encoding/base64"

	validation "github.com/jellydator/validation"

	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	customValidation "github.com/allisson/logvault/internal/validation"
)

const (
	maxReasonLength = 500
	// maxWrappedKEKLength bounds a KEK sealed with nacl box: 32 byte key,
	// 32 byte ephemeral public key, 24 byte nonce and 16 byte tag.
	maxWrappedKEKLength = 256
	maxSharePayload     = 1024
)

// CreateKEKVersionRequest creates a new active KEK version.
type CreateKEKVersionRequest struct {
	Reason string `json:"reason"`
}

// Validate checks the request.
func (r *CreateKEKVersionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reason,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, maxReasonLength),
		),
	)
}

// RotateKEKRequest rotates the KEK, optionally revoking users.
type RotateKEKRequest struct {
	Reason       string   `json:"reason"`
	RemovedUsers []string `json:"removed_users"`
}

// Validate checks the request.
func (r *RotateKEKRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reason,
			validation.Required,
			customValidation.NotBlank,
			validation.Length(1, maxReasonLength),
		),
		validation.Field(&r.RemovedUsers,
			validation.Each(validation.Required, customValidation.UserID),
		),
	)
}

// ProvisionGrantRequest grants a user a KEK version. WrappedKEK is the KEK
// sealed to the user's public key; empty means a derivation grant.
type ProvisionGrantRequest struct {
	KEKVersionID string `json:"kek_version_id"`
	WrappedKEK   string `json:"wrapped_kek"`
}

// Validate checks the request.
func (r *ProvisionGrantRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.KEKVersionID, validation.Required, customValidation.UUID),
		validation.Field(&r.WrappedKEK,
			customValidation.Base64,
			validation.Length(0, base64.StdEncoding.EncodedLen(maxWrappedKEKLength)),
		),
	)
}

// RegisterPublicKeyRequest registers the caller's X25519 public key.
type RegisterPublicKeyRequest struct {
	PublicKey string `json:"public_key"`
}

// Validate checks the request.
func (r *RegisterPublicKeyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PublicKey, validation.Required, customValidation.Base64Len(32)),
	)
}

// ReportRotationItemRequest reports the outcome of one log of a rotation job.
type ReportRotationItemRequest struct {
	Status    string `json:"status"`
	LastError string `json:"last_error"`
}

// Validate checks the request.
func (r *ReportRotationItemRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status,
			validation.Required,
			validation.In(string(kekDomain.ItemDone), string(kekDomain.ItemFailed)),
		),
		validation.Field(&r.LastError, validation.Length(0, 2000)),
	)
}

// InitiateRecoveryRequest opens a recovery session. Shares are sealed to
// RecipientPublicKey, held by the client that will complete the recovery.
type InitiateRecoveryRequest struct {
	Threshold          int    `json:"threshold"`
	TotalShares        int    `json:"total_shares"`
	RecipientPublicKey string `json:"recipient_public_key"`
}

// Validate checks the request. Threshold bounds are enforced by the use case.
func (r *InitiateRecoveryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Threshold, validation.Required, validation.Min(1)),
		validation.Field(&r.TotalShares, validation.Required, validation.Min(1), validation.Max(255)),
		validation.Field(&r.RecipientPublicKey, validation.Required, customValidation.Base64Len(32)),
	)
}

// SubmitShareRequest submits one sealed share.
type SubmitShareRequest struct {
	Index   int    `json:"index"`
	Payload string `json:"payload"`
}

// Validate checks the request.
func (r *SubmitShareRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Index, validation.Required, validation.Min(1), validation.Max(255)),
		validation.Field(&r.Payload,
			validation.Required,
			customValidation.Base64,
			validation.Length(1, base64.StdEncoding.EncodedLen(maxSharePayload)),
		),
	)
}

// CompleteRecoveryRequest commits a ready recovery session.
type CompleteRecoveryRequest struct {
	CompletionToken string `json:"completion_token"`
}

// Validate checks the request.
func (r *CompleteRecoveryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CompletionToken, validation.Required, customValidation.NotBlank),
	)
}
