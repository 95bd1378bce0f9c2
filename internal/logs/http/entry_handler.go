package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authHTTP "github.com/allisson/logvault/internal/auth/http"
	"github.com/allisson/logvault/internal/httputil"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	"github.com/allisson/logvault/internal/logs/http/dto"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
	customValidation "github.com/allisson/logvault/internal/validation"
)

const maxSearchGroups = 64

// EntryHandler handles encrypted entries and token search.
type EntryHandler struct {
	logStore logsUsecase.LogStore
	logger   *slog.Logger
}

// NewEntryHandler creates an EntryHandler.
func NewEntryHandler(logStore logsUsecase.LogStore, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{
		logStore: logStore,
		logger:   logger,
	}
}

// AppendHandler stores one encrypted entry.
// POST /v1/logs/:logId/entries
func (h *EntryHandler) AppendHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	var req dto.AppendEntryRequest
	if !httputil.BindJSON(c, &req, h.logger) {
		return
	}

	entry, err := h.logStore.AppendEntry(
		c.Request.Context(),
		principal.TenantID,
		principal.UserID,
		req.ToDomain(logID),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapEntryToResponse(entry))
}

// ListHandler lists the entries of a log.
// GET /v1/logs/:logId/entries?from&to&offset&limit
func (h *EntryHandler) ListHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	logID, err := httputil.ParseUUIDParam(c, "logId")
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	filter, err := parseEntryFilter(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	filter.LogID = &logID

	entries, err := h.logStore.ListEntries(c.Request.Context(), principal.TenantID, filter)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEntriesToListResponse(entries))
}

// SearchHandler returns entries matching every token of at least one group.
// Each "tokens" parameter is one comma-separated group.
// GET /v1/search?tokens=a,b&tokens=c&log_id&from&to&offset&limit
func (h *EntryHandler) SearchHandler(c *gin.Context) {
	principal, ok := authHTTP.RequirePrincipal(c, h.logger)
	if !ok {
		return
	}

	groups, err := parseTokenGroups(c.QueryArray("tokens"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	filter, err := parseEntryFilter(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if raw := c.Query("log_id"); raw != "" {
		logID, err := uuid.Parse(raw)
		if err != nil {
			httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid log_id parameter: must be a valid UUID"), h.logger)
			return
		}
		filter.LogID = &logID
	}

	entries, err := h.logStore.Search(c.Request.Context(), principal.TenantID, logsDomain.SearchQuery{
		Groups:      groups,
		EntryFilter: filter,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapEntriesToListResponse(entries))
}

func parseEntryFilter(c *gin.Context) (logsDomain.EntryFilter, error) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		return logsDomain.EntryFilter{}, err
	}
	from, err := httputil.ParseTimeQuery(c, "from")
	if err != nil {
		return logsDomain.EntryFilter{}, err
	}
	to, err := httputil.ParseTimeQuery(c, "to")
	if err != nil {
		return logsDomain.EntryFilter{}, err
	}
	if from != nil && to != nil && !from.Before(*to) {
		return logsDomain.EntryFilter{}, fmt.Errorf("invalid time range: from must be before to")
	}
	return logsDomain.EntryFilter{From: from, To: to, Offset: offset, Limit: limit}, nil
}

func parseTokenGroups(values []string) ([][]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("tokens parameter is required")
	}
	if len(values) > maxSearchGroups {
		return nil, fmt.Errorf("too many token groups: at most %d", maxSearchGroups)
	}

	groups := make([][]string, 0, len(values))
	for _, value := range values {
		var group []string
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if err := customValidation.SearchToken.Validate(token); err != nil {
				return nil, fmt.Errorf("invalid search token: %w", err)
			}
			group = append(group, token)
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("tokens parameter is required")
	}
	return groups, nil
}
