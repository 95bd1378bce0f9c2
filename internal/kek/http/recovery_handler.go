package http

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authHTTP "github.com/allisson/logvault/internal/auth/http"
	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/httputil"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
	"github.com/allisson/logvault/internal/kek/http/dto"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
)

// RecoveryHandler handles threshold recovery sessions.
type RecoveryHandler struct {
	kekService kekUsecase.KekService
	logger     *slog.Logger
}

// NewRecoveryHandler creates a RecoveryHandler.
func NewRecoveryHandler(kekService kekUsecase.KekService, logger *slog.Logger) *RecoveryHandler {
	return &RecoveryHandler{
		kekService: kekService,
		logger:     logger,
	}
}

// InitiateHandler opens a recovery session. The completion token is only
// returned here.
// POST /v1/recovery/initiate (admin)
func (h *RecoveryHandler) InitiateHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	var req dto.InitiateRecoveryRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	recipient, err := cryptoDomain.ParsePublicKey(req.RecipientPublicKey)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	session, completionToken, err := h.kekService.InitiateRecovery(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		req.Threshold,
		req.TotalShares,
		recipient,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Warn("recovery session opened",
		slog.String("tenant_id", principal.TenantID),
		slog.String("session_id", session.ID.String()),
		slog.String("initiated_by", principal.UserID),
		slog.Int("threshold", session.Threshold))

	c.JSON(http.StatusCreated, dto.MapRecoverySessionToResponse(session, completionToken))
}

// GetHandler returns a session with its sealed shares.
// GET /v1/recovery/:sessionId
func (h *RecoveryHandler) GetHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	sessionID, err := httputil.ParseUUIDParam(c, "sessionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	session, err := h.kekService.GetRecoverySession(c.Request.Context(), principal.TenantID, sessionID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRecoverySessionToResponse(session, ""))
}

// SubmitShareHandler collects one sealed share. Any member of the tenant may
// submit the share they hold.
// POST /v1/recovery/:sessionId/shares
func (h *RecoveryHandler) SubmitShareHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	sessionID, err := httputil.ParseUUIDParam(c, "sessionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.SubmitShareRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	payload, _ := base64.StdEncoding.DecodeString(req.Payload)
	session, err := h.kekService.CollectShare(c.Request.Context(), principal.TenantID, sessionID, kekDomain.SealedShare{
		Index:       byte(req.Index),
		Payload:     payload,
		SubmittedBy: principal.UserID,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRecoverySessionToResponse(session, ""))
}

// CompleteHandler commits a ready session and opens the rewrap job.
// POST /v1/recovery/:sessionId/complete (admin)
func (h *RecoveryHandler) CompleteHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	sessionID, err := httputil.ParseUUIDParam(c, "sessionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.CompleteRecoveryRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	result, err := h.kekService.CompleteRecovery(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		sessionID,
		req.CompletionToken,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Warn("recovery completed",
		slog.String("tenant_id", principal.TenantID),
		slog.String("session_id", sessionID.String()),
		slog.String("kek_version_id", result.Version.ID.String()))

	c.JSON(http.StatusCreated, dto.MapRecoveryResultToResponse(result))
}

// CancelHandler drops a session and its shares.
// DELETE /v1/recovery/:sessionId (admin)
func (h *RecoveryHandler) CancelHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	sessionID, err := httputil.ParseUUIDParam(c, "sessionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := h.kekService.CancelRecovery(c.Request.Context(), principal.TenantID, sessionID); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}
