// Package mocks provides mock implementations for testing the auth middleware.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
)

// MockAccessTokenUseCase is a mock implementation of AccessTokenUseCase.
type MockAccessTokenUseCase struct {
	mock.Mock
}

// Create mocks the Create method of AccessTokenUseCase.
func (m *MockAccessTokenUseCase) Create(
	ctx context.Context,
	input *authDomain.CreateAccessTokenInput,
) (*authDomain.CreateAccessTokenOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authDomain.CreateAccessTokenOutput), args.Error(1)
}

// Authenticate mocks the Authenticate method of AccessTokenUseCase.
func (m *MockAccessTokenUseCase) Authenticate(ctx context.Context, tokenHash string) (*authDomain.Principal, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authDomain.Principal), args.Error(1)
}

// Revoke mocks the Revoke method of AccessTokenUseCase.
func (m *MockAccessTokenUseCase) Revoke(ctx context.Context, tenantID string, id uuid.UUID) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

// CleanupExpired mocks the CleanupExpired method of AccessTokenUseCase.
func (m *MockAccessTokenUseCase) CleanupExpired(ctx context.Context, days int, dryRun bool) (int64, error) {
	args := m.Called(ctx, days, dryRun)
	return args.Get(0).(int64), args.Error(1)
}
