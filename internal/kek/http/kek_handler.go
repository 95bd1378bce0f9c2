// Package http provides the HTTP handlers of the tenant key registry: KEK
// versions, rotation jobs, user grants, public keys and recovery sessions.
//
// Handlers never see key material in plaintext. Wrapped KEKs, public keys and
// sealed shares are opaque base64 blobs produced by clients.
package http

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authHTTP "github.com/allisson/logvault/internal/auth/http"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/httputil"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/kek/http/dto"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
	customValidation "github.com/allisson/logvault/internal/validation"
)

// KekHandler handles KEK versions, rotation jobs, grants and public keys.
type KekHandler struct {
	kekService kekUsecase.KekService
	logger     *slog.Logger
}

// NewKekHandler creates a KekHandler.
func NewKekHandler(kekService kekUsecase.KekService, logger *slog.Logger) *KekHandler {
	return &KekHandler{
		kekService: kekService,
		logger:     logger,
	}
}

// ListVersionsHandler lists the tenant's KEK versions newest first.
// GET /v1/kek-versions
func (h *KekHandler) ListVersionsHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	versions, err := h.kekService.GetKEKVersions(c.Request.Context(), principal.TenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKEKVersionsToListResponse(versions))
}

// GetActiveVersionHandler returns the tenant's active version.
// GET /v1/kek-versions/active
func (h *KekHandler) GetActiveVersionHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	version, err := h.kekService.GetActiveVersion(c.Request.Context(), principal.TenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKEKVersionToResponse(version))
}

// CreateVersionHandler creates a new active version.
// POST /v1/kek-versions (admin)
func (h *KekHandler) CreateVersionHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	var req dto.CreateKEKVersionRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	result, err := h.kekService.CreateKEKVersion(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		req.Reason,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapRotationResultToResponse(result))
}

// RotateHandler rotates the KEK and opens a rotation job.
// POST /v1/kek-versions/rotate (admin)
func (h *KekHandler) RotateHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	var req dto.RotateKEKRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	result, err := h.kekService.RotateKEK(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		req.Reason,
		req.RemovedUsers,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("kek rotated",
		slog.String("tenant_id", principal.TenantID),
		slog.String("kek_version_id", result.Version.ID.String()),
		slog.Int("removed_users", len(req.RemovedUsers)))

	c.JSON(http.StatusCreated, dto.MapRotationResultToResponse(result))
}

// DeprecateVersionHandler retires a decrypt-only version.
// POST /v1/kek-versions/:versionId/deprecate (admin)
func (h *KekHandler) DeprecateVersionHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	versionID, err := httputil.ParseUUIDParam(c, "versionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	version, err := h.kekService.DeprecateKEKVersion(c.Request.Context(), principal.TenantID, versionID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapKEKVersionToResponse(version))
}

// GetCurrentJobHandler returns the tenant's most recent rotation job.
// GET /v1/rotation-jobs/current
func (h *KekHandler) GetCurrentJobHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	job, err := h.kekService.GetCurrentRotationJob(c.Request.Context(), principal.TenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRotationJobToResponse(job))
}

// GetJobHandler returns one rotation job.
// GET /v1/rotation-jobs/:jobId
func (h *KekHandler) GetJobHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	jobID, err := httputil.ParseUUIDParam(c, "jobId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	job, err := h.kekService.GetRotationJob(c.Request.Context(), principal.TenantID, jobID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRotationJobToResponse(job))
}

// ListJobItemsHandler lists the items of a job, optionally filtered by status.
// GET /v1/rotation-jobs/:jobId/items?status=pending|done|failed
func (h *KekHandler) ListJobItemsHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	jobID, err := httputil.ParseUUIDParam(c, "jobId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	status := kekDomain.ItemStatus(c.Query("status"))
	switch status {
	case "", kekDomain.ItemPending, kekDomain.ItemDone, kekDomain.ItemFailed:
	default:
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid status parameter: must be pending, done or failed"),
			h.logger,
		)
		return
	}

	items, err := h.kekService.ListRotationItems(c.Request.Context(), principal.TenantID, jobID, status)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRotationItemsToListResponse(items))
}

// ReportItemHandler records the outcome of migrating one log.
// POST /v1/rotation-jobs/:jobId/items/:logId
func (h *KekHandler) ReportItemHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	jobID, err := httputil.ParseUUIDParam(c, "jobId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.ReportRotationItemRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	item, err := h.kekService.ReportRotationItem(
		c.Request.Context(),
		principal.TenantID,
		jobID,
		logID,
		kekDomain.ItemStatus(req.Status),
		req.LastError,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRotationItemToResponse(item))
}

// FinalizeJobHandler closes a job once every item is done, or marks it partial.
// POST /v1/rotation-jobs/:jobId/finalize
func (h *KekHandler) FinalizeJobHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	jobID, err := httputil.ParseUUIDParam(c, "jobId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	job, err := h.kekService.FinalizeRotation(c.Request.Context(), principal.TenantID, jobID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("rotation job finalized",
		slog.String("tenant_id", principal.TenantID),
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
		slog.Int("failed_items", job.FailedItems))

	c.JSON(http.StatusOK, dto.MapRotationJobToResponse(job))
}

// ProvisionGrantHandler grants a user access to a KEK version.
// POST /v1/users/:userId/kek-grant (admin)
func (h *KekHandler) ProvisionGrantHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	userID := c.Param("userId")
	if err := customValidation.UserID.Validate(userID); err != nil || userID == "" {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid userId parameter"), h.logger)
		return
	}

	var req dto.ProvisionGrantRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	// Validated above.
	versionID := uuid.MustParse(req.KEKVersionID)
	var wrappedKEK []byte
	if req.WrappedKEK != "" {
		wrappedKEK, _ = base64.StdEncoding.DecodeString(req.WrappedKEK)
	}

	grant, err := h.kekService.ProvisionKEKForUser(
		c.Request.Context(),
		principal.TenantID,
		userID,
		versionID,
		wrappedKEK,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapGrantToResponse(grant))
}

// ListMyGrantsHandler lists the caller's grants.
// GET /v1/users/me/kek-grants
func (h *KekHandler) ListMyGrantsHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	grants, err := h.kekService.ListGrants(c.Request.Context(), principal.TenantID, principal.UserID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapGrantsToListResponse(grants))
}

// GetMyGrantHandler returns the caller's grant for one version.
// GET /v1/users/me/kek-grants/:versionId
func (h *KekHandler) GetMyGrantHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	versionID, err := httputil.ParseUUIDParam(c, "versionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	grant, err := h.kekService.GetGrant(c.Request.Context(), principal.TenantID, principal.UserID, versionID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapGrantToResponse(grant))
}

// RegisterPublicKeyHandler stores the caller's X25519 public key.
// PUT /v1/users/me/public-key
func (h *KekHandler) RegisterPublicKeyHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	var req dto.RegisterPublicKeyRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	publicKey, err := cryptoDomain.ParsePublicKey(req.PublicKey)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	key, err := h.kekService.RegisterPublicKey(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		publicKey,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapPublicKeyToResponse(key))
}

// GetPublicKeyHandler returns a user's public key so an admin can seal a KEK to it.
// GET /v1/users/:userId/public-key (admin)
func (h *KekHandler) GetPublicKeyHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	key, err := h.kekService.GetPublicKey(c.Request.Context(), principal.TenantID, c.Param("userId"))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapPublicKeyToResponse(key))
}
