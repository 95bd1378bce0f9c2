package dto

import (
	"encoding/base64"
	"time"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// KEKVersionResponse is a KEK version in API responses.
type KEKVersionResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// MapKEKVersionToResponse converts a domain version to its API form.
func MapKEKVersionToResponse(v *kekDomain.KEKVersion) *KEKVersionResponse {
	if v == nil {
		return nil
	}
	return &KEKVersionResponse{
		ID:        v.ID.String(),
		Status:    string(v.Status),
		Reason:    v.Reason,
		CreatedBy: v.CreatedBy,
		CreatedAt: v.CreatedAt,
	}
}

// ListKEKVersionsResponse lists versions newest first.
type ListKEKVersionsResponse struct {
	Data []*KEKVersionResponse `json:"data"`
}

// MapKEKVersionsToListResponse converts a version list.
func MapKEKVersionsToListResponse(versions []*kekDomain.KEKVersion) ListKEKVersionsResponse {
	data := make([]*KEKVersionResponse, 0, len(versions))
	for _, v := range versions {
		data = append(data, MapKEKVersionToResponse(v))
	}
	return ListKEKVersionsResponse{Data: data}
}

// GrantResponse is a user grant. WrappedKEK is base64 and only present for
// grants sealed to the user's public key.
type GrantResponse struct {
	UserID       string    `json:"user_id"`
	KEKVersionID string    `json:"kek_version_id"`
	WrappedKEK   string    `json:"wrapped_kek,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MapGrantToResponse converts a domain grant.
func MapGrantToResponse(g *kekDomain.UserKEKGrant) *GrantResponse {
	if g == nil {
		return nil
	}
	resp := &GrantResponse{
		UserID:       g.UserID,
		KEKVersionID: g.KEKVersionID.String(),
		CreatedAt:    g.CreatedAt,
	}
	if g.IsWrapped() {
		resp.WrappedKEK = base64.StdEncoding.EncodeToString(g.WrappedKEK)
	}
	return resp
}

// ListGrantsResponse lists the grants of the caller.
type ListGrantsResponse struct {
	Data []*GrantResponse `json:"data"`
}

// MapGrantsToListResponse converts a grant list.
func MapGrantsToListResponse(grants []*kekDomain.UserKEKGrant) ListGrantsResponse {
	data := make([]*GrantResponse, 0, len(grants))
	for _, g := range grants {
		data = append(data, MapGrantToResponse(g))
	}
	return ListGrantsResponse{Data: data}
}

// PublicKeyResponse is a registered public key.
type PublicKeyResponse struct {
	UserID    string    `json:"user_id"`
	PublicKey string    `json:"public_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MapPublicKeyToResponse converts a domain public key.
func MapPublicKeyToResponse(k *kekDomain.UserPublicKey) PublicKeyResponse {
	return PublicKeyResponse{
		UserID:    k.UserID,
		PublicKey: cryptoDomain.EncodePublicKey(k.PublicKey),
		UpdatedAt: k.UpdatedAt,
	}
}

// RotationJobResponse is a rotation job with its progress counters.
type RotationJobResponse struct {
	ID            string     `json:"id"`
	FromVersionID string     `json:"from_version_id"`
	ToVersionID   string     `json:"to_version_id"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason"`
	TotalItems    int        `json:"total_items"`
	DoneItems     int        `json:"done_items"`
	FailedItems   int        `json:"failed_items"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// MapRotationJobToResponse converts a domain job.
func MapRotationJobToResponse(j *kekDomain.RotationJob) *RotationJobResponse {
	if j == nil {
		return nil
	}
	return &RotationJobResponse{
		ID:            j.ID.String(),
		FromVersionID: j.FromVersionID.String(),
		ToVersionID:   j.ToVersionID.String(),
		Mode:          string(j.Mode),
		Status:        string(j.Status),
		Reason:        j.Reason,
		TotalItems:    j.TotalItems,
		DoneItems:     j.DoneItems,
		FailedItems:   j.FailedItems,
		CreatedBy:     j.CreatedBy,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		CompletedAt:   j.CompletedAt,
	}
}

// RotationItemResponse is one log of a rotation job.
type RotationItemResponse struct {
	LogID     string    `json:"log_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MapRotationItemToResponse converts a domain item.
func MapRotationItemToResponse(i *kekDomain.RotationItem) RotationItemResponse {
	return RotationItemResponse{
		LogID:     i.LogID.String(),
		Status:    string(i.Status),
		Attempts:  i.Attempts,
		LastError: i.LastError,
		UpdatedAt: i.UpdatedAt,
	}
}

// ListRotationItemsResponse lists the items of a job.
type ListRotationItemsResponse struct {
	Data []RotationItemResponse `json:"data"`
}

// MapRotationItemsToListResponse converts an item list.
func MapRotationItemsToListResponse(items []*kekDomain.RotationItem) ListRotationItemsResponse {
	data := make([]RotationItemResponse, 0, len(items))
	for _, i := range items {
		data = append(data, MapRotationItemToResponse(i))
	}
	return ListRotationItemsResponse{Data: data}
}

// RotationResultResponse is returned by version creation and rotation.
type RotationResultResponse struct {
	Version  *KEKVersionResponse  `json:"version"`
	Previous *KEKVersionResponse  `json:"previous,omitempty"`
	Grant    *GrantResponse       `json:"grant,omitempty"`
	Job      *RotationJobResponse `json:"job,omitempty"`
}

// MapRotationResultToResponse converts a rotation result.
func MapRotationResultToResponse(r *kekDomain.RotationResult) RotationResultResponse {
	return RotationResultResponse{
		Version:  MapKEKVersionToResponse(r.Version),
		Previous: MapKEKVersionToResponse(r.Previous),
		Grant:    MapGrantToResponse(r.Grant),
		Job:      MapRotationJobToResponse(r.Job),
	}
}

// SealedShareResponse is a collected share. The payload stays sealed to the
// session's recipient key.
type SealedShareResponse struct {
	Index       int       `json:"index"`
	Payload     string    `json:"payload"`
	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RecoverySessionResponse is a recovery session. CompletionToken is only
// present in the response that opened the session.
type RecoverySessionResponse struct {
	ID                 string                `json:"id"`
	Threshold          int                   `json:"threshold"`
	TotalShares        int                   `json:"total_shares"`
	SharesCollected    int                   `json:"shares_collected"`
	Status             string                `json:"status"`
	RecipientPublicKey string                `json:"recipient_public_key"`
	Shares             []SealedShareResponse `json:"shares"`
	CreatedBy          string                `json:"created_by"`
	CreatedAt          time.Time             `json:"created_at"`
	ExpiresAt          time.Time             `json:"expires_at"`
	CompletionToken    string                `json:"completion_token,omitempty"`
}

// MapRecoverySessionToResponse converts a session.
func MapRecoverySessionToResponse(s *kekDomain.RecoverySession, completionToken string) RecoverySessionResponse {
	shares := make([]SealedShareResponse, 0, len(s.Shares))
	for _, share := range s.Shares {
		shares = append(shares, SealedShareResponse{
			Index:       int(share.Index),
			Payload:     base64.StdEncoding.EncodeToString(share.Payload),
			SubmittedBy: share.SubmittedBy,
			SubmittedAt: share.SubmittedAt,
		})
	}
	return RecoverySessionResponse{
		ID:                 s.ID.String(),
		Threshold:          s.Threshold,
		TotalShares:        s.TotalShares,
		SharesCollected:    len(s.Shares),
		Status:             string(s.Status),
		RecipientPublicKey: cryptoDomain.EncodePublicKey(s.RecipientPublicKey),
		Shares:             shares,
		CreatedBy:          s.CreatedBy,
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
		CompletionToken:    completionToken,
	}
}

// RecoveryResultResponse is returned when a recovery is committed.
type RecoveryResultResponse struct {
	Version *KEKVersionResponse  `json:"version"`
	Grant   *GrantResponse       `json:"grant,omitempty"`
	Job     *RotationJobResponse `json:"job,omitempty"`
}

// MapRecoveryResultToResponse converts a recovery result.
func MapRecoveryResultToResponse(r *kekDomain.RecoveryResult) RecoveryResultResponse {
	return RecoveryResultResponse{
		Version: MapKEKVersionToResponse(r.Version),
		Grant:   MapGrantToResponse(r.Grant),
		Job:     MapRotationJobToResponse(r.Job),
	}
}
