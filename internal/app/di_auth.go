package app

import (
	"fmt"

	authRepository "github.com/allisson/logvault/internal/auth/repository"
	authService "github.com/allisson/logvault/internal/auth/service"
	authUseCase "github.com/allisson/logvault/internal/auth/usecase"
)

// SecretService returns the service that hashes recovery completion tokens.
func (c *Container) SecretService() authService.SecretService {
	c.secretServiceInit.Do(func() {
		c.secretService = authService.NewSecretService()
	})
	return c.secretService
}

// TokenService returns the service that generates and hashes bearer tokens.
func (c *Container) TokenService() authService.TokenService {
	c.tokenServiceInit.Do(func() {
		c.tokenService = authService.NewTokenService()
	})
	return c.tokenService
}

// AccessTokenRepository returns the access token repository based on database driver.
func (c *Container) AccessTokenRepository() (authUseCase.AccessTokenRepository, error) {
	var err error
	c.accessTokenRepositoryInit.Do(func() {
		c.accessTokenRepository, err = c.initAccessTokenRepository()
		if err != nil {
			c.initErrors["accessTokenRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["accessTokenRepository"]; exists {
		return nil, storedErr
	}
	return c.accessTokenRepository, nil
}

// AccessTokenUseCase returns the access token use case.
func (c *Container) AccessTokenUseCase() (authUseCase.AccessTokenUseCase, error) {
	var err error
	c.accessTokenUseCaseInit.Do(func() {
		c.accessTokenUseCase, err = c.initAccessTokenUseCase()
		if err != nil {
			c.initErrors["accessTokenUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["accessTokenUseCase"]; exists {
		return nil, storedErr
	}
	return c.accessTokenUseCase, nil
}

func (c *Container) initAccessTokenRepository() (authUseCase.AccessTokenRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for access token repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return authRepository.NewPostgreSQLAccessTokenRepository(db), nil
	case "mysql":
		return authRepository.NewMySQLAccessTokenRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initAccessTokenUseCase() (authUseCase.AccessTokenUseCase, error) {
	tokenRepository, err := c.AccessTokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get access token repository for access token use case: %w", err)
	}

	baseUseCase := authUseCase.NewAccessTokenUseCase(tokenRepository, c.TokenService(), c.config.AccessTokenTTL)

	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for access token use case: %w", err)
		}
		return authUseCase.NewAccessTokenUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}
