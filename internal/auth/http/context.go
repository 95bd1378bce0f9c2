// Package http provides the authentication middleware of the HTTP API.
package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	apperrors "github.com/allisson/logvault/internal/errors"
	"github.com/allisson/logvault/internal/httputil"
)

type principalKey struct{}

// WithPrincipal stores the authenticated principal in the context.
func WithPrincipal(ctx context.Context, principal *authDomain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(ctx context.Context) (*authDomain.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(*authDomain.Principal)
	return principal, ok && principal != nil
}

// RequirePrincipal returns the principal of the request or answers 401.
// Handlers mounted behind AuthenticationMiddleware always find one.
func RequirePrincipal(c *gin.Context, logger *slog.Logger) (*authDomain.Principal, bool) {
	principal, ok := GetPrincipal(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
		c.Abort()
	}
	return principal, ok
}
