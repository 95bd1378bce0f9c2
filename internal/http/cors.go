package http

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// apiMethods are the methods registered under /v1.
var apiMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}

// newCORSMiddleware returns nil unless CORS is enabled with at least one
// origin. A "*" entry allows every origin. Credentials are never allowed:
// callers authenticate with bearer tokens, not cookies.
func newCORSMiddleware(enabled bool, allowOrigins string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	origins := splitOrigins(allowOrigins)
	if len(origins) == 0 {
		logger.Warn("cors enabled without origins, skipping")
		return nil
	}

	cfg := cors.Config{
		AllowMethods:  apiMethods,
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}

	logger.Info("cors enabled", slog.Any("origins", origins))
	return cors.New(cfg)
}

func splitOrigins(value string) []string {
	origins := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ' ' })
	if len(origins) == 0 {
		return nil
	}
	return origins
}
