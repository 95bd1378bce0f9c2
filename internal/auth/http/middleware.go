package http

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authService "github.com/allisson/logvault/internal/auth/service"
	authUseCase "github.com/allisson/logvault/internal/auth/usecase"
	apperrors "github.com/allisson/logvault/internal/errors"
	"github.com/allisson/logvault/internal/httputil"
)

const bearerPrefix = "bearer "

// AuthenticationMiddleware resolves the "Authorization: Bearer <token>" header
// (prefix matched case-insensitively) to a Principal and stores it in the
// request context. Missing, malformed, unknown, expired and revoked tokens all
// answer 401.
func AuthenticationMiddleware(
	tokenUseCase authUseCase.AccessTokenUseCase,
	tokenService authService.TokenService,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		plainToken, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			logger.Debug("authentication failed: missing or malformed authorization header")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		principal, err := tokenUseCase.Authenticate(c.Request.Context(), tokenService.HashToken(plainToken))
		if err != nil {
			logger.Debug("authentication failed", slog.Any("error", err))
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// bearerToken extracts the token of a "Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// RequireRole lets only principals holding role through. It must run after
// AuthenticationMiddleware.
func RequireRole(role authDomain.Role, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c.Request.Context())
		if !ok {
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		if principal.Role != role {
			logger.Debug("authorization failed: insufficient role",
				slog.String("tenant_id", principal.TenantID),
				slog.String("user_id", principal.UserID),
				slog.String("role", string(principal.Role)),
				slog.String("path", c.FullPath()))
			httputil.HandleErrorGin(c, apperrors.Wrap(apperrors.ErrForbidden, "role "+string(role)+" required"), logger)
			c.Abort()
			return
		}
		c.Next()
	}
}
