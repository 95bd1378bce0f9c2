// Package repository persists the key registry (KEK versions, grants, public
// keys, tenant states and rotation jobs) in PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// PostgreSQLKEKVersionRepository implements KEK version persistence for PostgreSQL.
type PostgreSQLKEKVersionRepository struct {
	db *sql.DB
}

// NewPostgreSQLKEKVersionRepository creates a new PostgreSQLKEKVersionRepository.
func NewPostgreSQLKEKVersionRepository(db *sql.DB) *PostgreSQLKEKVersionRepository {
	return &PostgreSQLKEKVersionRepository{db: db}
}

const postgresVersionColumns = `id, tenant_id, status, reason, created_by, created_at`

func scanPostgresVersion(row interface{ Scan(...any) error }) (*kekDomain.KEKVersion, error) {
	var v kekDomain.KEKVersion
	if err := row.Scan(&v.ID, &v.TenantID, &v.Status, &v.Reason, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new KEK version.
func (p *PostgreSQLKEKVersionRepository) Create(ctx context.Context, version *kekDomain.KEKVersion) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO kek_versions (id, tenant_id, status, reason, created_by, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		version.ID,
		version.TenantID,
		version.Status,
		version.Reason,
		version.CreatedBy,
		version.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return kekDomain.ErrVersionConflict
		}
		return apperrors.Wrap(err, "failed to create kek version")
	}
	return nil
}

// Get retrieves a KEK version of a tenant by id.
func (p *PostgreSQLKEKVersionRepository) Get(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*kekDomain.KEKVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresVersionColumns + ` FROM kek_versions WHERE tenant_id = $1 AND id = $2`

	version, err := scanPostgresVersion(querier.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrKEKVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kek version")
	}
	return version, nil
}

// GetActive retrieves the active KEK version of a tenant.
func (p *PostgreSQLKEKVersionRepository) GetActive(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresVersionColumns + ` FROM kek_versions WHERE tenant_id = $1 AND status = $2`

	version, err := scanPostgresVersion(querier.QueryRowContext(ctx, query, tenantID, kekDomain.StatusActive))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrNoActiveVersion
		}
		return nil, apperrors.Wrap(err, "failed to get active kek version")
	}
	return version, nil
}

// List retrieves the KEK versions of a tenant, newest first.
func (p *PostgreSQLKEKVersionRepository) List(ctx context.Context, tenantID string) ([]*kekDomain.KEKVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresVersionColumns + ` FROM kek_versions WHERE tenant_id = $1 ORDER BY id DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list kek versions")
	}
	defer func() {
		_ = rows.Close()
	}()

	var versions []*kekDomain.KEKVersion
	for rows.Next() {
		version, err := scanPostgresVersion(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan kek version")
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate kek versions")
	}
	return versions, nil
}

// UpdateStatus changes the status of a KEK version.
func (p *PostgreSQLKEKVersionRepository) UpdateStatus(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	status kekDomain.VersionStatus,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE kek_versions SET status = $1 WHERE tenant_id = $2 AND id = $3`

	result, err := querier.ExecContext(ctx, query, status, tenantID, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek version status")
	}
	return requireAffected(result, kekDomain.ErrKEKVersionNotFound)
}

// PostgreSQLGrantRepository implements user KEK grant persistence for PostgreSQL.
type PostgreSQLGrantRepository struct {
	db *sql.DB
}

// NewPostgreSQLGrantRepository creates a new PostgreSQLGrantRepository.
func NewPostgreSQLGrantRepository(db *sql.DB) *PostgreSQLGrantRepository {
	return &PostgreSQLGrantRepository{db: db}
}

const postgresGrantColumns = `tenant_id, user_id, kek_version_id, wrapped_kek, created_at`

func scanPostgresGrant(row interface{ Scan(...any) error }) (*kekDomain.UserKEKGrant, error) {
	var g kekDomain.UserKEKGrant
	if err := row.Scan(&g.TenantID, &g.UserID, &g.KEKVersionID, &g.WrappedKEK, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a new grant.
func (p *PostgreSQLGrantRepository) Create(ctx context.Context, grant *kekDomain.UserKEKGrant) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO kek_grants (tenant_id, user_id, kek_version_id, wrapped_kek, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(
		ctx,
		query,
		grant.TenantID,
		grant.UserID,
		grant.KEKVersionID,
		nullableBytes(grant.WrappedKEK),
		grant.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Wrap(apperrors.ErrConflict, "kek grant already exists")
		}
		return apperrors.Wrap(err, "failed to create kek grant")
	}
	return nil
}

// Get retrieves the grant of a user for one KEK version.
func (p *PostgreSQLGrantRepository) Get(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresGrantColumns + ` FROM kek_grants
			  WHERE tenant_id = $1 AND user_id = $2 AND kek_version_id = $3`

	grant, err := scanPostgresGrant(querier.QueryRowContext(ctx, query, tenantID, userID, versionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrGrantNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kek grant")
	}
	return grant, nil
}

// ListByUser retrieves every grant of a user, newest version first.
func (p *PostgreSQLGrantRepository) ListByUser(
	ctx context.Context,
	tenantID, userID string,
) ([]*kekDomain.UserKEKGrant, error) {
	query := `SELECT ` + postgresGrantColumns + ` FROM kek_grants
			  WHERE tenant_id = $1 AND user_id = $2 ORDER BY kek_version_id DESC`
	return p.list(ctx, query, tenantID, userID)
}

// ListByVersion retrieves every grant of a KEK version.
func (p *PostgreSQLGrantRepository) ListByVersion(
	ctx context.Context,
	tenantID string,
	versionID uuid.UUID,
) ([]*kekDomain.UserKEKGrant, error) {
	query := `SELECT ` + postgresGrantColumns + ` FROM kek_grants
			  WHERE tenant_id = $1 AND kek_version_id = $2 ORDER BY user_id`
	return p.list(ctx, query, tenantID, versionID)
}

func (p *PostgreSQLGrantRepository) list(ctx context.Context, query string, args ...any) ([]*kekDomain.UserKEKGrant, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list kek grants")
	}
	defer func() {
		_ = rows.Close()
	}()

	var grants []*kekDomain.UserKEKGrant
	for rows.Next() {
		grant, err := scanPostgresGrant(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan kek grant")
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate kek grants")
	}
	return grants, nil
}

// UpdateWrappedKEK stores the wrapped KEK of an existing grant.
func (p *PostgreSQLGrantRepository) UpdateWrappedKEK(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	wrappedKEK []byte,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE kek_grants SET wrapped_kek = $1
			  WHERE tenant_id = $2 AND user_id = $3 AND kek_version_id = $4`

	result, err := querier.ExecContext(ctx, query, nullableBytes(wrappedKEK), tenantID, userID, versionID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek grant")
	}
	return requireAffected(result, kekDomain.ErrGrantNotFound)
}

// PostgreSQLPublicKeyRepository implements user public key persistence for PostgreSQL.
type PostgreSQLPublicKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLPublicKeyRepository creates a new PostgreSQLPublicKeyRepository.
func NewPostgreSQLPublicKeyRepository(db *sql.DB) *PostgreSQLPublicKeyRepository {
	return &PostgreSQLPublicKeyRepository{db: db}
}

// Upsert stores or replaces the public key of a user.
func (p *PostgreSQLPublicKeyRepository) Upsert(ctx context.Context, key *kekDomain.UserPublicKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO user_public_keys (tenant_id, user_id, public_key, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (tenant_id, user_id)
			  DO UPDATE SET public_key = EXCLUDED.public_key, updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.TenantID,
		key.UserID,
		key.PublicKey[:],
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert public key")
	}
	return nil
}

// Get retrieves the public key of a user.
func (p *PostgreSQLPublicKeyRepository) Get(
	ctx context.Context,
	tenantID, userID string,
) (*kekDomain.UserPublicKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT tenant_id, user_id, public_key, created_at, updated_at
			  FROM user_public_keys WHERE tenant_id = $1 AND user_id = $2`

	var key kekDomain.UserPublicKey
	var raw []byte
	err := querier.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&key.TenantID,
		&key.UserID,
		&raw,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrPublicKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get public key")
	}
	if err := copyPublicKey(&key, raw); err != nil {
		return nil, err
	}
	return &key, nil
}
