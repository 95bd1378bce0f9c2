package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// MySQLKEKVersionRepository implements KEK version persistence for MySQL.
type MySQLKEKVersionRepository struct {
	db *sql.DB
}

// NewMySQLKEKVersionRepository creates a new MySQLKEKVersionRepository.
func NewMySQLKEKVersionRepository(db *sql.DB) *MySQLKEKVersionRepository {
	return &MySQLKEKVersionRepository{db: db}
}

func scanMySQLVersion(row interface{ Scan(...any) error }) (*kekDomain.KEKVersion, error) {
	var v kekDomain.KEKVersion
	var id []byte
	if err := row.Scan(&id, &v.TenantID, &v.Status, &v.Reason, &v.CreatedBy, &v.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if v.ID, err = parseUUIDBytes(id, "kek version id"); err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new KEK version.
func (m *MySQLKEKVersionRepository) Create(ctx context.Context, version *kekDomain.KEKVersion) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO kek_versions (id, tenant_id, status, reason, created_by, created_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		uuidBytes(version.ID),
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
func (m *MySQLKEKVersionRepository) Get(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*kekDomain.KEKVersion, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, status, reason, created_by, created_at
			  FROM kek_versions WHERE tenant_id = ? AND id = ?`

	version, err := scanMySQLVersion(querier.QueryRowContext(ctx, query, tenantID, uuidBytes(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrKEKVersionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kek version")
	}
	return version, nil
}

// GetActive retrieves the active KEK version of a tenant.
func (m *MySQLKEKVersionRepository) GetActive(ctx context.Context, tenantID string) (*kekDomain.KEKVersion, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, status, reason, created_by, created_at
			  FROM kek_versions WHERE tenant_id = ? AND status = ?
			  ORDER BY id DESC LIMIT 1`

	version, err := scanMySQLVersion(querier.QueryRowContext(ctx, query, tenantID, kekDomain.StatusActive))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrNoActiveVersion
		}
		return nil, apperrors.Wrap(err, "failed to get active kek version")
	}
	return version, nil
}

// List retrieves the KEK versions of a tenant, newest first.
func (m *MySQLKEKVersionRepository) List(ctx context.Context, tenantID string) ([]*kekDomain.KEKVersion, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, status, reason, created_by, created_at
			  FROM kek_versions WHERE tenant_id = ? ORDER BY id DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list kek versions")
	}
	defer func() {
		_ = rows.Close()
	}()

	var versions []*kekDomain.KEKVersion
	for rows.Next() {
		version, err := scanMySQLVersion(rows)
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
func (m *MySQLKEKVersionRepository) UpdateStatus(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
	status kekDomain.VersionStatus,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE kek_versions SET status = ? WHERE tenant_id = ? AND id = ?`

	// MySQL reports changed rows, so an unchanged status is not an error here.
	if _, err := querier.ExecContext(ctx, query, status, tenantID, uuidBytes(id)); err != nil {
		return apperrors.Wrap(err, "failed to update kek version status")
	}
	return nil
}

// MySQLGrantRepository implements user KEK grant persistence for MySQL.
type MySQLGrantRepository struct {
	db *sql.DB
}

// NewMySQLGrantRepository creates a new MySQLGrantRepository.
func NewMySQLGrantRepository(db *sql.DB) *MySQLGrantRepository {
	return &MySQLGrantRepository{db: db}
}

func scanMySQLGrant(row interface{ Scan(...any) error }) (*kekDomain.UserKEKGrant, error) {
	var g kekDomain.UserKEKGrant
	var versionID []byte
	if err := row.Scan(&g.TenantID, &g.UserID, &versionID, &g.WrappedKEK, &g.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if g.KEKVersionID, err = parseUUIDBytes(versionID, "kek version id"); err != nil {
		return nil, err
	}
	return &g, nil
}

// Create inserts a new grant.
func (m *MySQLGrantRepository) Create(ctx context.Context, grant *kekDomain.UserKEKGrant) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO kek_grants (tenant_id, user_id, kek_version_id, wrapped_kek, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		grant.TenantID,
		grant.UserID,
		uuidBytes(grant.KEKVersionID),
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
func (m *MySQLGrantRepository) Get(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
) (*kekDomain.UserKEKGrant, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT tenant_id, user_id, kek_version_id, wrapped_kek, created_at FROM kek_grants
			  WHERE tenant_id = ? AND user_id = ? AND kek_version_id = ?`

	grant, err := scanMySQLGrant(querier.QueryRowContext(ctx, query, tenantID, userID, uuidBytes(versionID)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrGrantNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get kek grant")
	}
	return grant, nil
}

// ListByUser retrieves every grant of a user, newest version first.
func (m *MySQLGrantRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]*kekDomain.UserKEKGrant, error) {
	query := `SELECT tenant_id, user_id, kek_version_id, wrapped_kek, created_at FROM kek_grants
			  WHERE tenant_id = ? AND user_id = ? ORDER BY kek_version_id DESC`
	return m.list(ctx, query, tenantID, userID)
}

// ListByVersion retrieves every grant of a KEK version.
func (m *MySQLGrantRepository) ListByVersion(
	ctx context.Context,
	tenantID string,
	versionID uuid.UUID,
) ([]*kekDomain.UserKEKGrant, error) {
	query := `SELECT tenant_id, user_id, kek_version_id, wrapped_kek, created_at FROM kek_grants
			  WHERE tenant_id = ? AND kek_version_id = ? ORDER BY user_id`
	return m.list(ctx, query, tenantID, uuidBytes(versionID))
}

func (m *MySQLGrantRepository) list(ctx context.Context, query string, args ...any) ([]*kekDomain.UserKEKGrant, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list kek grants")
	}
	defer func() {
		_ = rows.Close()
	}()

	var grants []*kekDomain.UserKEKGrant
	for rows.Next() {
		grant, err := scanMySQLGrant(rows)
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
func (m *MySQLGrantRepository) UpdateWrappedKEK(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	wrappedKEK []byte,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE kek_grants SET wrapped_kek = ?
			  WHERE tenant_id = ? AND user_id = ? AND kek_version_id = ?`

	result, err := querier.ExecContext(ctx, query, nullableBytes(wrappedKEK), tenantID, userID, uuidBytes(versionID))
	if err != nil {
		return apperrors.Wrap(err, "failed to update kek grant")
	}
	return requireAffected(result, kekDomain.ErrGrantNotFound)
}

// MySQLPublicKeyRepository implements user public key persistence for MySQL.
type MySQLPublicKeyRepository struct {
	db *sql.DB
}

// NewMySQLPublicKeyRepository creates a new MySQLPublicKeyRepository.
func NewMySQLPublicKeyRepository(db *sql.DB) *MySQLPublicKeyRepository {
	return &MySQLPublicKeyRepository{db: db}
}

// Upsert stores or replaces the public key of a user.
func (m *MySQLPublicKeyRepository) Upsert(ctx context.Context, key *kekDomain.UserPublicKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO user_public_keys (tenant_id, user_id, public_key, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE public_key = VALUES(public_key), updated_at = VALUES(updated_at)`

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
func (m *MySQLPublicKeyRepository) Get(ctx context.Context, tenantID, userID string) (*kekDomain.UserPublicKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT tenant_id, user_id, public_key, created_at, updated_at
			  FROM user_public_keys WHERE tenant_id = ? AND user_id = ?`

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
