// Package repository persists access tokens for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	authDomain "github.com/allisson/logvault/internal/auth/domain"
	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
)

// PostgreSQLAccessTokenRepository implements access token persistence for PostgreSQL.
type PostgreSQLAccessTokenRepository struct {
	db *sql.DB
}

// NewPostgreSQLAccessTokenRepository creates a new PostgreSQLAccessTokenRepository.
func NewPostgreSQLAccessTokenRepository(db *sql.DB) *PostgreSQLAccessTokenRepository {
	return &PostgreSQLAccessTokenRepository{db: db}
}

// Create inserts a new access token.
func (p *PostgreSQLAccessTokenRepository) Create(ctx context.Context, token *authDomain.AccessToken) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO access_tokens (id, tenant_id, user_id, role, token_hash, expires_at, revoked_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(
		ctx,
		query,
		token.ID,
		token.TenantID,
		token.UserID,
		token.Role,
		token.TokenHash,
		token.ExpiresAt,
		token.RevokedAt,
		token.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create access token")
	}
	return nil
}

// GetByTokenHash retrieves a token by the hash of its plain value.
func (p *PostgreSQLAccessTokenRepository) GetByTokenHash(
	ctx context.Context,
	tokenHash string,
) (*authDomain.AccessToken, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, user_id, role, token_hash, expires_at, revoked_at, created_at
			  FROM access_tokens WHERE token_hash = $1`

	var token authDomain.AccessToken
	err := querier.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.TenantID,
		&token.UserID,
		&token.Role,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.RevokedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authDomain.ErrTokenNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get access token")
	}
	return &token, nil
}

// Revoke marks a tenant's token revoked at revokedAt.
func (p *PostgreSQLAccessTokenRepository) Revoke(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	revokedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE access_tokens SET revoked_at = $1
			  WHERE tenant_id = $2 AND id = $3 AND revoked_at IS NULL`

	result, err := querier.ExecContext(ctx, query, revokedAt, tenantID, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to revoke access token")
	}
	return requireAffected(result, authDomain.ErrTokenNotFound)
}

// CountExpired counts tokens that expired before cutoff.
func (p *PostgreSQLAccessTokenRepository) CountExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	query := `SELECT COUNT(*) FROM access_tokens WHERE expires_at < $1`
	if err := querier.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count expired access tokens")
	}
	return count, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (p *PostgreSQLAccessTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired access tokens")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
