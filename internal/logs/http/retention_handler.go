package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	authHTTP "github.com/allisson/logvault/internal/auth/http"
	"github.com/allisson/logvault/internal/httputil"
	"github.com/allisson/logvault/internal/logs/http/dto"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
)

// RetentionHandler handles per-log retention policies.
type RetentionHandler struct {
	retention logsUsecase.RetentionService
	logger    *slog.Logger
	now       func() time.Time
}

// NewRetentionHandler creates a RetentionHandler.
func NewRetentionHandler(retention logsUsecase.RetentionService, logger *slog.Logger) *RetentionHandler {
	return &RetentionHandler{
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetHandler creates or replaces the policy of a log.
// PUT /v1/logs/:logId/retention (admin)
func (h *RetentionHandler) SetHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.SetRetentionPolicyRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}
	period, _ := dto.ParseRetentionPeriod(req.RetentionPeriod)

	policy, err := h.retention.SetRetentionPolicy(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		logID,
		period,
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRetentionPolicyToResponse(policy))
}

// GetHandler returns the policy of a log.
// GET /v1/logs/:logId/retention
func (h *RetentionHandler) GetHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	policy, err := h.retention.GetRetentionPolicy(c.Request.Context(), principal.TenantID, logID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRetentionPolicyToResponse(policy))
}

// DeleteHandler removes the policy of a log; its entries are kept forever.
// DELETE /v1/logs/:logId/retention (admin)
func (h *RetentionHandler) DeleteHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	if err := h.retention.DeleteRetentionPolicy(c.Request.Context(), principal.TenantID, logID); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

// ExpiredHandler counts the entries the next enforcement run would remove.
// GET /v1/logs/:logId/retention/expired
func (h *RetentionHandler) ExpiredHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	now := h.now()
	expired, err := h.retention.CountExpiredEntries(c.Request.Context(), principal.TenantID, logID, now)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapExpiredEntriesToResponse(logID, expired, now))
}

// ListHandler lists the tenant's policies.
// GET /v1/retention-policies
func (h *RetentionHandler) ListHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	policies, err := h.retention.ListRetentionPolicies(c.Request.Context(), principal.TenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRetentionPoliciesToListResponse(policies))
}
