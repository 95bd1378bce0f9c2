package app

import (
	"fmt"

	"github.com/go-redis/redis"

	kekHTTP "github.com/allisson/logvault/internal/kek/http"
	kekRepository "github.com/allisson/logvault/internal/kek/repository"
	"github.com/allisson/logvault/internal/kek/sessionstore"
	kekUsecase "github.com/allisson/logvault/internal/kek/usecase"
)

// KEKVersionRepository returns the KEK version repository based on database driver.
func (c *Container) KEKVersionRepository() (kekUsecase.KEKVersionRepository, error) {
	var err error
	c.kekVersionRepositoryInit.Do(func() {
		c.kekVersionRepository, err = c.initKEKVersionRepository()
		if err != nil {
			c.initErrors["kekVersionRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kekVersionRepository"]; exists {
		return nil, storedErr
	}
	return c.kekVersionRepository, nil
}

// GrantRepository returns the KEK grant repository based on database driver.
func (c *Container) GrantRepository() (kekUsecase.GrantRepository, error) {
	var err error
	c.grantRepositoryInit.Do(func() {
		c.grantRepository, err = c.initGrantRepository()
		if err != nil {
			c.initErrors["grantRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["grantRepository"]; exists {
		return nil, storedErr
	}
	return c.grantRepository, nil
}

// PublicKeyRepository returns the user public key repository based on database driver.
func (c *Container) PublicKeyRepository() (kekUsecase.PublicKeyRepository, error) {
	var err error
	c.publicKeyRepositoryInit.Do(func() {
		c.publicKeyRepository, err = c.initPublicKeyRepository()
		if err != nil {
			c.initErrors["publicKeyRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["publicKeyRepository"]; exists {
		return nil, storedErr
	}
	return c.publicKeyRepository, nil
}

// TenantStateRepository returns the tenant key state repository based on database driver.
func (c *Container) TenantStateRepository() (kekUsecase.TenantStateRepository, error) {
	var err error
	c.tenantStateRepositoryInit.Do(func() {
		c.tenantStateRepository, err = c.initTenantStateRepository()
		if err != nil {
			c.initErrors["tenantStateRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tenantStateRepository"]; exists {
		return nil, storedErr
	}
	return c.tenantStateRepository, nil
}

// RotationJobRepository returns the rotation job repository based on database driver.
func (c *Container) RotationJobRepository() (kekUsecase.RotationJobRepository, error) {
	var err error
	c.rotationJobRepositoryInit.Do(func() {
		c.rotationJobRepository, err = c.initRotationJobRepository()
		if err != nil {
			c.initErrors["rotationJobRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["rotationJobRepository"]; exists {
		return nil, storedErr
	}
	return c.rotationJobRepository, nil
}

// RedisClient returns the redis client backing the recovery session store.
func (c *Container) RedisClient() (*redis.Client, error) {
	var err error
	c.redisClientInit.Do(func() {
		c.redisClient, err = sessionstore.NewRedisClient(c.config.RedisAddr, c.config.RedisPassword, c.config.RedisDB)
		if err != nil {
			c.initErrors["redisClient"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["redisClient"]; exists {
		return nil, storedErr
	}
	return c.redisClient, nil
}

// RecoverySessionStore returns the recovery session store selected by RecoveryStore.
func (c *Container) RecoverySessionStore() (kekUsecase.RecoverySessionStore, error) {
	var err error
	c.recoverySessionStoreInit.Do(func() {
		c.recoverySessionStore, err = c.initRecoverySessionStore()
		if err != nil {
			c.initErrors["recoverySessionStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recoverySessionStore"]; exists {
		return nil, storedErr
	}
	return c.recoverySessionStore, nil
}

// KekService returns the key registry use case.
func (c *Container) KekService() (kekUsecase.KekService, error) {
	var err error
	c.kekServiceInit.Do(func() {
		c.kekService, err = c.initKekService()
		if err != nil {
			c.initErrors["kekService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kekService"]; exists {
		return nil, storedErr
	}
	return c.kekService, nil
}

// KekHandler returns the HTTP handler for versions, rotation jobs and grants.
func (c *Container) KekHandler() (*kekHTTP.KekHandler, error) {
	var err error
	c.kekHandlerInit.Do(func() {
		var service kekUsecase.KekService
		service, err = c.KekService()
		if err != nil {
			err = fmt.Errorf("failed to get kek service for kek handler: %w", err)
			c.initErrors["kekHandler"] = err
			return
		}
		c.kekHandler = kekHTTP.NewKekHandler(service, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kekHandler"]; exists {
		return nil, storedErr
	}
	return c.kekHandler, nil
}

// RecoveryHandler returns the HTTP handler for recovery sessions.
func (c *Container) RecoveryHandler() (*kekHTTP.RecoveryHandler, error) {
	var err error
	c.recoveryHandlerInit.Do(func() {
		var service kekUsecase.KekService
		service, err = c.KekService()
		if err != nil {
			err = fmt.Errorf("failed to get kek service for recovery handler: %w", err)
			c.initErrors["recoveryHandler"] = err
			return
		}
		c.recoveryHandler = kekHTTP.NewRecoveryHandler(service, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recoveryHandler"]; exists {
		return nil, storedErr
	}
	return c.recoveryHandler, nil
}

func (c *Container) initKEKVersionRepository() (kekUsecase.KEKVersionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for kek version repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return kekRepository.NewPostgreSQLKEKVersionRepository(db), nil
	case "mysql":
		return kekRepository.NewMySQLKEKVersionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initGrantRepository() (kekUsecase.GrantRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for grant repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return kekRepository.NewPostgreSQLGrantRepository(db), nil
	case "mysql":
		return kekRepository.NewMySQLGrantRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initPublicKeyRepository() (kekUsecase.PublicKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for public key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return kekRepository.NewPostgreSQLPublicKeyRepository(db), nil
	case "mysql":
		return kekRepository.NewMySQLPublicKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initTenantStateRepository() (kekUsecase.TenantStateRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tenant state repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return kekRepository.NewPostgreSQLTenantStateRepository(db), nil
	case "mysql":
		return kekRepository.NewMySQLTenantStateRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initRotationJobRepository() (kekUsecase.RotationJobRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for rotation job repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return kekRepository.NewPostgreSQLRotationJobRepository(db), nil
	case "mysql":
		return kekRepository.NewMySQLRotationJobRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initRecoverySessionStore() (kekUsecase.RecoverySessionStore, error) {
	switch c.config.RecoveryStore {
	case "", "memory":
		return sessionstore.NewMemoryStore(), nil
	case "redis":
		client, err := c.RedisClient()
		if err != nil {
			return nil, fmt.Errorf("failed to get redis client for recovery session store: %w", err)
		}
		return sessionstore.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported recovery store: %s", c.config.RecoveryStore)
	}
}

// initKekService assembles the key registry. Its log lister is the log
// repository, so the ciphertext store can depend on the registry without a cycle.
func (c *Container) initKekService() (kekUsecase.KekService, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for kek service: %w", err)
	}
	versionRepository, err := c.KEKVersionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek version repository for kek service: %w", err)
	}
	grantRepository, err := c.GrantRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get grant repository for kek service: %w", err)
	}
	publicKeyRepository, err := c.PublicKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get public key repository for kek service: %w", err)
	}
	stateRepository, err := c.TenantStateRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant state repository for kek service: %w", err)
	}
	jobRepository, err := c.RotationJobRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get rotation job repository for kek service: %w", err)
	}
	logRepository, err := c.LogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get log repository for kek service: %w", err)
	}
	sessions, err := c.RecoverySessionStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get recovery session store for kek service: %w", err)
	}

	baseService := kekUsecase.NewKekService(
		txManager,
		versionRepository,
		grantRepository,
		publicKeyRepository,
		stateRepository,
		jobRepository,
		logRepository,
		sessions,
		c.SecretService(),
		c.config.RecoverySessionTTL,
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for kek service: %w", err)
		}
		return kekUsecase.NewKekServiceWithMetrics(baseService, businessMetrics), nil
	}

	return baseService, nil
}
