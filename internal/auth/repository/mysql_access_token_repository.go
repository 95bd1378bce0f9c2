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

// MySQLAccessTokenRepository implements access token persistence for MySQL.
// Ids are stored as BINARY(16).
type MySQLAccessTokenRepository struct {
	db *sql.DB
}

// NewMySQLAccessTokenRepository creates a new MySQLAccessTokenRepository.
func NewMySQLAccessTokenRepository(db *sql.DB) *MySQLAccessTokenRepository {
	return &MySQLAccessTokenRepository{db: db}
}

// Create inserts a new access token.
func (m *MySQLAccessTokenRepository) Create(ctx context.Context, token *authDomain.AccessToken) error {
	querier := database.GetTx(ctx, m.db)

	id, err := token.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal access token id")
	}

	query := `INSERT INTO access_tokens (id, tenant_id, user_id, role, token_hash, expires_at, revoked_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
func (m *MySQLAccessTokenRepository) GetByTokenHash(
	ctx context.Context,
	tokenHash string,
) (*authDomain.AccessToken, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, user_id, role, token_hash, expires_at, revoked_at, created_at
			  FROM access_tokens WHERE token_hash = ?`

	var token authDomain.AccessToken
	var id []byte
	err := querier.QueryRowContext(ctx, query, tokenHash).Scan(
		&id,
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

	if err := token.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal access token id")
	}
	return &token, nil
}

// Revoke marks a tenant's token revoked at revokedAt.
func (m *MySQLAccessTokenRepository) Revoke(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	revokedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	rawID, err := id.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal access token id")
	}

	query := `UPDATE access_tokens SET revoked_at = ?
			  WHERE tenant_id = ? AND id = ? AND revoked_at IS NULL`

	result, err := querier.ExecContext(ctx, query, revokedAt, tenantID, rawID)
	if err != nil {
		return apperrors.Wrap(err, "failed to revoke access token")
	}
	return requireAffected(result, authDomain.ErrTokenNotFound)
}

// CountExpired counts tokens that expired before cutoff.
func (m *MySQLAccessTokenRepository) CountExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	var count int64
	query := `SELECT COUNT(*) FROM access_tokens WHERE expires_at < ?`
	if err := querier.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count expired access tokens")
	}
	return count, nil
}

// DeleteExpired removes tokens that expired before cutoff.
func (m *MySQLAccessTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired access tokens")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}
