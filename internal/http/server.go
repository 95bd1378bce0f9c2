// Package http provides the API server: router setup, health endpoints and
// the middleware chain shared by every route.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	authHTTP "github.com/allisson/logvault/internal/auth/http"
	authService "github.com/allisson/logvault/internal/auth/service"
	authUseCase "github.com/allisson/logvault/internal/auth/usecase"
	"github.com/allisson/logvault/internal/config"
	kekHTTP "github.com/allisson/logvault/internal/kek/http"
	logsHTTP "github.com/allisson/logvault/internal/logs/http"
	"github.com/allisson/logvault/internal/metrics"
)

const readinessTimeout = 2 * time.Second

// Server represents the API HTTP server.
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server. SetupRouter must be called before Start.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// SetupRouter builds the gin engine with every /v1 route.
//
// Routes resolve the bearer token first, then apply the per-user rate limit;
// admin-only routes additionally require the admin role. The rate limiter's
// cleanup goroutine stops when ctx is done.
func (s *Server) SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	tokenUseCase authUseCase.AccessTokenUseCase,
	tokenService authService.TokenService,
	kekHandler *kekHTTP.KekHandler,
	recoveryHandler *kekHTTP.RecoveryHandler,
	logHandler *logsHTTP.LogHandler,
	entryHandler *logsHTTP.EntryHandler,
	retentionHandler *logsHTTP.RetentionHandler,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := newCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	v1.Use(authHTTP.AuthenticationMiddleware(tokenUseCase, tokenService, s.logger))
	if cfg.RateLimitEnabled {
		v1.Use(authHTTP.RateLimitMiddleware(ctx, cfg.RateLimitRequestsPerSec, cfg.RateLimitBurst, s.logger))
	}
	admin := authHTTP.RequireRole(authDomain.RoleAdmin, s.logger)

	versions := v1.Group("/kek-versions")
	{
		versions.GET("", kekHandler.ListVersionsHandler)
		versions.GET("/active", kekHandler.GetActiveVersionHandler)
		versions.POST("", admin, kekHandler.CreateVersionHandler)
		versions.POST("/rotate", admin, kekHandler.RotateHandler)
		versions.POST("/:versionId/deprecate", admin, kekHandler.DeprecateVersionHandler)
	}

	jobs := v1.Group("/rotation-jobs")
	{
		jobs.GET("/current", kekHandler.GetCurrentJobHandler)
		jobs.GET("/:jobId", kekHandler.GetJobHandler)
		jobs.GET("/:jobId/items", kekHandler.ListJobItemsHandler)
		jobs.POST("/:jobId/items/:logId", kekHandler.ReportItemHandler)
		jobs.POST("/:jobId/finalize", kekHandler.FinalizeJobHandler)
	}

	users := v1.Group("/users")
	{
		users.GET("/me/kek-grants", kekHandler.ListMyGrantsHandler)
		users.GET("/me/kek-grants/:versionId", kekHandler.GetMyGrantHandler)
		users.PUT("/me/public-key", kekHandler.RegisterPublicKeyHandler)
		users.POST("/:userId/kek-grant", admin, kekHandler.ProvisionGrantHandler)
		users.GET("/:userId/public-key", admin, kekHandler.GetPublicKeyHandler)
	}

	recovery := v1.Group("/recovery")
	{
		recovery.POST("/initiate", admin, recoveryHandler.InitiateHandler)
		recovery.GET("/:sessionId", recoveryHandler.GetHandler)
		recovery.DELETE("/:sessionId", admin, recoveryHandler.CancelHandler)
		recovery.POST("/:sessionId/shares", recoveryHandler.SubmitShareHandler)
		recovery.POST("/:sessionId/complete", admin, recoveryHandler.CompleteHandler)
	}

	logs := v1.Group("/logs")
	{
		logs.POST("", logHandler.CreateHandler)
		logs.GET("", logHandler.ListHandler)
		logs.GET("/lookup", logHandler.LookupHandler)
		logs.PUT("/:logId/name", logHandler.UpdateNameHandler)
		logs.PUT("/:logId/keys/:versionId", logHandler.PutKeyHandler)
		logs.GET("/:logId/keys", logHandler.ListKeysHandler)
		logs.POST("/:logId/entries", entryHandler.AppendHandler)
		logs.GET("/:logId/entries", entryHandler.ListHandler)
		logs.GET("/:logId/retention", retentionHandler.GetHandler)
		logs.PUT("/:logId/retention", admin, retentionHandler.SetHandler)
		logs.DELETE("/:logId/retention", admin, retentionHandler.DeleteHandler)
		logs.GET("/:logId/retention/expired", retentionHandler.ExpiredHandler)
	}

	v1.GET("/search", entryHandler.SearchHandler)
	v1.GET("/retention-policies", retentionHandler.ListHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return fmt.Errorf("router not configured")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports ready only while the database answers a ping.
func (s *Server) readinessHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": "ok"},
	})
}
