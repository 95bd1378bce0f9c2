package app

import (
	"context"
	"fmt"

	"github.com/allisson/logvault/internal/logs/archive"
	logsHTTP "github.com/allisson/logvault/internal/logs/http"
	logsRepository "github.com/allisson/logvault/internal/logs/repository"
	logsUsecase "github.com/allisson/logvault/internal/logs/usecase"
)

// LogRepository returns the log repository based on database driver.
func (c *Container) LogRepository() (logsUsecase.LogRepository, error) {
	var err error
	c.logRepositoryInit.Do(func() {
		c.logRepository, err = c.initLogRepository()
		if err != nil {
			c.initErrors["logRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["logRepository"]; exists {
		return nil, storedErr
	}
	return c.logRepository, nil
}

// LogKeyRepository returns the wrapped DEK repository based on database driver.
func (c *Container) LogKeyRepository() (logsUsecase.LogKeyRepository, error) {
	var err error
	c.logKeyRepositoryInit.Do(func() {
		c.logKeyRepository, err = c.initLogKeyRepository()
		if err != nil {
			c.initErrors["logKeyRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["logKeyRepository"]; exists {
		return nil, storedErr
	}
	return c.logKeyRepository, nil
}

// EntryRepository returns the encrypted entry repository based on database driver.
func (c *Container) EntryRepository() (logsUsecase.EntryRepository, error) {
	var err error
	c.entryRepositoryInit.Do(func() {
		c.entryRepository, err = c.initEntryRepository()
		if err != nil {
			c.initErrors["entryRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["entryRepository"]; exists {
		return nil, storedErr
	}
	return c.entryRepository, nil
}

// RetentionPolicyRepository returns the retention policy repository based on database driver.
func (c *Container) RetentionPolicyRepository() (logsUsecase.RetentionPolicyRepository, error) {
	var err error
	c.retentionPolicyRepositoryInit.Do(func() {
		c.retentionPolicyRepository, err = c.initRetentionPolicyRepository()
		if err != nil {
			c.initErrors["retentionPolicyRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["retentionPolicyRepository"]; exists {
		return nil, storedErr
	}
	return c.retentionPolicyRepository, nil
}

// Archiver returns the S3 archiver, or nil when archiving is not configured.
func (c *Container) Archiver() (logsUsecase.Archiver, error) {
	var err error
	c.archiverInit.Do(func() {
		c.archiver, err = c.initArchiver()
		if err != nil {
			c.initErrors["archiver"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["archiver"]; exists {
		return nil, storedErr
	}
	return c.archiver, nil
}

// LogStore returns the ciphertext store use case.
func (c *Container) LogStore() (logsUsecase.LogStore, error) {
	var err error
	c.logStoreInit.Do(func() {
		c.logStore, err = c.initLogStore()
		if err != nil {
			c.initErrors["logStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["logStore"]; exists {
		return nil, storedErr
	}
	return c.logStore, nil
}

// RetentionService returns the retention use case.
func (c *Container) RetentionService() (logsUsecase.RetentionService, error) {
	var err error
	c.retentionServiceInit.Do(func() {
		c.retentionService, err = c.initRetentionService()
		if err != nil {
			c.initErrors["retentionService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["retentionService"]; exists {
		return nil, storedErr
	}
	return c.retentionService, nil
}

// LogHandler returns the HTTP handler for logs and wrapped DEKs.
func (c *Container) LogHandler() (*logsHTTP.LogHandler, error) {
	var err error
	c.logHandlerInit.Do(func() {
		var store logsUsecase.LogStore
		store, err = c.LogStore()
		if err != nil {
			err = fmt.Errorf("failed to get log store for log handler: %w", err)
			c.initErrors["logHandler"] = err
			return
		}
		c.logHandler = logsHTTP.NewLogHandler(store, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["logHandler"]; exists {
		return nil, storedErr
	}
	return c.logHandler, nil
}

// EntryHandler returns the HTTP handler for entries and search.
func (c *Container) EntryHandler() (*logsHTTP.EntryHandler, error) {
	var err error
	c.entryHandlerInit.Do(func() {
		var store logsUsecase.LogStore
		store, err = c.LogStore()
		if err != nil {
			err = fmt.Errorf("failed to get log store for entry handler: %w", err)
			c.initErrors["entryHandler"] = err
			return
		}
		c.entryHandler = logsHTTP.NewEntryHandler(store, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["entryHandler"]; exists {
		return nil, storedErr
	}
	return c.entryHandler, nil
}

// RetentionHandler returns the HTTP handler for retention policies.
func (c *Container) RetentionHandler() (*logsHTTP.RetentionHandler, error) {
	var err error
	c.retentionHandlerInit.Do(func() {
		var service logsUsecase.RetentionService
		service, err = c.RetentionService()
		if err != nil {
			err = fmt.Errorf("failed to get retention service for retention handler: %w", err)
			c.initErrors["retentionHandler"] = err
			return
		}
		c.retentionHandler = logsHTTP.NewRetentionHandler(service, c.Logger())
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["retentionHandler"]; exists {
		return nil, storedErr
	}
	return c.retentionHandler, nil
}

func (c *Container) initLogRepository() (logsUsecase.LogRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for log repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return logsRepository.NewPostgreSQLLogRepository(db), nil
	case "mysql":
		return logsRepository.NewMySQLLogRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initLogKeyRepository() (logsUsecase.LogKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for log key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return logsRepository.NewPostgreSQLLogKeyRepository(db), nil
	case "mysql":
		return logsRepository.NewMySQLLogKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initEntryRepository() (logsUsecase.EntryRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for entry repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return logsRepository.NewPostgreSQLEntryRepository(db), nil
	case "mysql":
		return logsRepository.NewMySQLEntryRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initRetentionPolicyRepository() (logsUsecase.RetentionPolicyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for retention policy repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return logsRepository.NewPostgreSQLRetentionPolicyRepository(db), nil
	case "mysql":
		return logsRepository.NewMySQLRetentionPolicyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initArchiver() (logsUsecase.Archiver, error) {
	if !c.config.ArchiveEnabled() {
		return nil, nil
	}
	client, err := archive.NewS3Client(context.Background(), archive.S3Config{
		Bucket:          c.config.ArchiveS3Bucket,
		Prefix:          c.config.ArchiveS3Prefix,
		Region:          c.config.ArchiveS3Region,
		Endpoint:        c.config.ArchiveS3Endpoint,
		AccessKeyID:     c.config.ArchiveS3AccessKeyID,
		SecretAccessKey: c.config.ArchiveS3SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client for archiver: %w", err)
	}
	return archive.NewS3Archiver(client, c.config.ArchiveS3Bucket, c.config.ArchiveS3Prefix), nil
}

func (c *Container) initLogStore() (logsUsecase.LogStore, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for log store: %w", err)
	}
	logRepository, err := c.LogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get log repository for log store: %w", err)
	}
	keyRepository, err := c.LogKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get log key repository for log store: %w", err)
	}
	entryRepository, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for log store: %w", err)
	}
	registry, err := c.KekService()
	if err != nil {
		return nil, fmt.Errorf("failed to get kek service for log store: %w", err)
	}

	baseStore := logsUsecase.NewLogStore(txManager, logRepository, keyRepository, entryRepository, registry)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for log store: %w", err)
		}
		return logsUsecase.NewLogStoreWithMetrics(baseStore, businessMetrics), nil
	}

	return baseStore, nil
}

func (c *Container) initRetentionService() (logsUsecase.RetentionService, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for retention service: %w", err)
	}
	policyRepository, err := c.RetentionPolicyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get retention policy repository for retention service: %w", err)
	}
	logRepository, err := c.LogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get log repository for retention service: %w", err)
	}
	entryRepository, err := c.EntryRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get entry repository for retention service: %w", err)
	}
	archiver, err := c.Archiver()
	if err != nil {
		return nil, fmt.Errorf("failed to get archiver for retention service: %w", err)
	}

	baseService := logsUsecase.NewRetentionService(
		txManager,
		policyRepository,
		logRepository,
		entryRepository,
		archiver,
		c.Logger(),
	)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for retention service: %w", err)
		}
		return logsUsecase.NewRetentionServiceWithMetrics(baseService, businessMetrics), nil
	}

	return baseService, nil
}
