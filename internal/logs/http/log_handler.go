// Package http provides the HTTP handlers of the encrypted log store.
//
// Every payload is ciphertext produced by clients: encrypted log names,
// wrapped DEKs, sealed entries and keyed search tokens.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authHTTP "github.com/allisson/logvault/internal/auth/http"
	"github.com/allisson/logvault/internal/httputil"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	"github.com/allisson/logvault/internal/logs/http/dto"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
)

// LogHandler handles logs and their wrapped keys.
type LogHandler struct {
	logStore logsUsecase.LogStore
	logger   *slog.Logger
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(logStore logsUsecase.LogStore, logger *slog.Logger) *LogHandler {
	return &LogHandler{
		logStore: logStore,
		logger:   logger,
	}
}

// CreateHandler registers a log with its first wrapped DEK.
// POST /v1/logs
func (h *LogHandler) CreateHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	var req dto.CreateLogRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	log, key := req.ToDomain()
	created, err := h.logStore.CreateLog(c.Request.Context(), principal.TenantID, principal.UserID, log, key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapLogToResponse(created))
}

// ListHandler lists the tenant's logs.
// GET /v1/logs
func (h *LogHandler) ListHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logs, err := h.logStore.ListLogs(c.Request.Context(), principal.TenantID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapLogsToListResponse(logs))
}

// LookupHandler finds a log by its encrypted name. With kek_version_id the
// name is matched against the names recorded with that version's log keys,
// which also finds logs renamed under a newer version.
// GET /v1/logs/lookup?name=<encrypted name>[&kek_version_id=<uuid>]
func (h *LogHandler) LookupHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	name := c.Query("name")
	if name == "" {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("name parameter is required"), h.logger)
		return
	}

	var log *logsDomain.Log
	var err error
	if raw := c.Query("kek_version_id"); raw != "" {
		versionID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid kek_version_id: %w", parseErr), h.logger)
			return
		}
		log, err = h.lookupByKeyName(c, principal.TenantID, principal.UserID, versionID, name)
	} else {
		log, err = h.logStore.GetLogByName(c.Request.Context(), principal.TenantID, name)
	}
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapLogToResponse(log))
}

func (h *LogHandler) lookupByKeyName(
	c *gin.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	name string,
) (*logsDomain.Log, error) {
	key, err := h.logStore.FindLogKeyByName(c.Request.Context(), tenantID, userID, versionID, name)
	if err != nil {
		return nil, err
	}
	return h.logStore.GetLog(c.Request.Context(), tenantID, key.LogID)
}

// UpdateNameHandler replaces a log's encrypted name.
// PUT /v1/logs/:logId/name
func (h *LogHandler) UpdateNameHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.UpdateLogNameRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	log, err := h.logStore.UpdateLogName(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		logID,
		req.EncryptedName,
		uuid.MustParse(req.KEKVersionID),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapLogToResponse(log))
}

// PutKeyHandler stores the log's DEK wrapped under a KEK version.
// PUT /v1/logs/:logId/keys/:versionId
func (h *LogHandler) PutKeyHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	versionID, err := httputil.ParseUUIDParam(c, "versionId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.WrappedKeyRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	key, err := h.logStore.PutLogKey(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		req.ToDomain(logID, versionID),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapLogKeyToResponse(key))
}

// ListKeysHandler lists the wrapped DEKs of a log under versions the caller
// holds grants for.
// GET /v1/logs/:logId/keys
func (h *LogHandler) ListKeysHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	keys, err := h.logStore.ListLogKeys(c.Request.Context(), principal.TenantID, principal.UserID, logID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapLogKeysToListResponse(keys))
}
