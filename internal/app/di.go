// Package app provides the dependency injection container that assembles logvault.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-redis/redis"

	authService "github.com/allisson/logvault/internal/auth/service"
	authUseCase "github.com/allisson/logvault/internal/auth/usecase"
	"github.com/allisson/logvault/internal/config"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
	"github.com/allisson/logvault/internal/database"
	"github.com/allisson/logvault/internal/errors"
	"github.com/allisson/logvault/internal/http"
	kekHTTP "github.com/allisson/logvault/internal/kek/http"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
	logsHTTP "github.com/allisson/logvault/internal/logs/http"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
	"github.com/allisson/logvault/internal/metrics"
)

// Container holds all application dependencies and provides methods to access them.
// Components are created on first access.
type Container struct {
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics
	redisClient     *redis.Client
	kmsService      cryptoService.KMSService

	// Auth
	secretService         authService.SecretService
	tokenService          authService.TokenService
	accessTokenRepository authUseCase.AccessTokenRepository
	accessTokenUseCase    authUseCase.AccessTokenUseCase

	// Key registry
	kekVersionRepository  kekUsecase.KEKVersionRepository
	grantRepository       kekUsecase.GrantRepository
	publicKeyRepository   kekUsecase.PublicKeyRepository
	tenantStateRepository kekUsecase.TenantStateRepository
	rotationJobRepository kekUsecase.RotationJobRepository
	recoverySessionStore  kekUsecase.RecoverySessionStore
	kekService            kekUsecase.KekService
	kekHandler            *kekHTTP.KekHandler
	recoveryHandler       *kekHTTP.RecoveryHandler

	// Ciphertext store
	logRepository             logsUsecase.LogRepository
	logKeyRepository          logsUsecase.LogKeyRepository
	entryRepository           logsUsecase.EntryRepository
	retentionPolicyRepository logsUsecase.RetentionPolicyRepository
	archiver                  logsUsecase.Archiver
	logStore                  logsUsecase.LogStore
	retentionService          logsUsecase.RetentionService
	logHandler                *logsHTTP.LogHandler
	entryHandler              *logsHTTP.EntryHandler
	retentionHandler          *logsHTTP.RetentionHandler

	// Servers
	httpServer    *http.Server
	metricsServer *http.MetricsServer

	mu                            sync.Mutex
	loggerInit                    sync.Once
	dbInit                        sync.Once
	txManagerInit                 sync.Once
	metricsProviderInit           sync.Once
	businessMetricsInit           sync.Once
	redisClientInit               sync.Once
	kmsServiceInit                sync.Once
	secretServiceInit             sync.Once
	tokenServiceInit              sync.Once
	accessTokenRepositoryInit     sync.Once
	accessTokenUseCaseInit        sync.Once
	kekVersionRepositoryInit      sync.Once
	grantRepositoryInit           sync.Once
	publicKeyRepositoryInit       sync.Once
	tenantStateRepositoryInit     sync.Once
	rotationJobRepositoryInit     sync.Once
	recoverySessionStoreInit      sync.Once
	kekServiceInit                sync.Once
	kekHandlerInit                sync.Once
	recoveryHandlerInit           sync.Once
	logRepositoryInit             sync.Once
	logKeyRepositoryInit          sync.Once
	entryRepositoryInit           sync.Once
	retentionPolicyRepositoryInit sync.Once
	archiverInit                  sync.Once
	logStoreInit                  sync.Once
	retentionServiceInit          sync.Once
	logHandlerInit                sync.Once
	entryHandlerInit              sync.Once
	retentionHandlerInit          sync.Once
	httpServerInit                sync.Once
	metricsServerInit             sync.Once
	initErrors                    map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection.
func (c *Container) DB() (*sql.DB, error) {
	var err error
	c.dbInit.Do(func() {
		c.db, err = c.initDB()
		if err != nil {
			c.initErrors["db"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["db"]; exists {
		return nil, storedErr
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	var err error
	c.txManagerInit.Do(func() {
		c.txManager, err = c.initTxManager()
		if err != nil {
			c.initErrors["txManager"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["txManager"]; exists {
		return nil, storedErr
	}
	return c.txManager, nil
}

// MetricsProvider returns the OpenTelemetry provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		c.metricsProvider, err = c.initMetricsProvider()
		if err != nil {
			c.initErrors["metricsProvider"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsProvider"]; exists {
		return nil, storedErr
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when
// metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	var err error
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, err = c.initBusinessMetrics()
		if err != nil {
			c.initErrors["businessMetrics"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["businessMetrics"]; exists {
		return nil, storedErr
	}
	return c.businessMetrics, nil
}

// HTTPServer returns the API server with its router set up. ctx bounds the
// background work of the router's middleware.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		c.httpServer, err = c.initHTTPServer(ctx)
		if err != nil {
			c.initErrors["httpServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["httpServer"]; exists {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		c.metricsServer, err = c.initMetricsServer()
		if err != nil {
			c.initErrors["metricsServer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["metricsServer"]; exists {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

// Shutdown releases every initialized resource.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.httpServer != nil {
		if err := c.httpServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("http server shutdown: %w", err))
		}
	}

	if c.metricsServer != nil {
		if err := c.metricsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("redis close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates a JSON logger at the configured level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initHTTPServer builds the API server and mounts every handler on it.
func (c *Container) initHTTPServer(ctx context.Context) (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}
	tokenUseCase, err := c.AccessTokenUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get access token use case for http server: %w", err)
	}
	kekHandler, err := c.KekHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek handler for http server: %w", err)
	}
	recoveryHandler, err := c.RecoveryHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery handler for http server: %w", err)
	}
	logHandler, err := c.LogHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get log handler for http server: %w", err)
	}
	entryHandler, err := c.EntryHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry handler for http server: %w", err)
	}
	retentionHandler, err := c.RetentionHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get retention handler for http server: %w", err)
	}
	metricsProvider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(
		ctx,
		c.config,
		tokenUseCase,
		c.TokenService(),
		kekHandler,
		recoveryHandler,
		logHandler,
		entryHandler,
		retentionHandler,
		metricsProvider,
	)
	return server, nil
}

func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
