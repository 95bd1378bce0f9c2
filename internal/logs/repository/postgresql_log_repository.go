package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// PostgreSQLLogRepository implements log persistence for PostgreSQL.
type PostgreSQLLogRepository struct {
	db *sql.DB
}

// NewPostgreSQLLogRepository creates a new PostgreSQLLogRepository.
func NewPostgreSQLLogRepository(db *sql.DB) *PostgreSQLLogRepository {
	return &PostgreSQLLogRepository{db: db}
}

const postgresLogColumns = `id, tenant_id, encrypted_name, kek_version_id, created_at, updated_at`

func scanPostgresLog(row interface{ Scan(...any) error }) (*logsDomain.Log, error) {
	var l logsDomain.Log
	if err := row.Scan(&l.ID, &l.TenantID, &l.EncryptedName, &l.KEKVersionID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new log.
func (p *PostgreSQLLogRepository) Create(ctx context.Context, log *logsDomain.Log) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO logs (` + postgresLogColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := querier.ExecContext(
		ctx,
		query,
		log.ID,
		log.TenantID,
		log.EncryptedName,
		log.KEKVersionID,
		log.CreatedAt,
		log.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return logsDomain.ErrLogExists
		}
		return apperrors.Wrap(err, "failed to create log")
	}
	return nil
}

// Get retrieves a log by id.
func (p *PostgreSQLLogRepository) Get(ctx context.Context, tenantID string, id uuid.UUID) (*logsDomain.Log, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresLogColumns + ` FROM logs WHERE tenant_id = $1 AND id = $2`

	log, err := scanPostgresLog(querier.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log")
	}
	return log, nil
}

// GetByName retrieves a log by its encrypted name.
func (p *PostgreSQLLogRepository) GetByName(
	ctx context.Context,
	tenantID, encryptedName string,
) (*logsDomain.Log, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresLogColumns + ` FROM logs WHERE tenant_id = $1 AND encrypted_name = $2`

	log, err := scanPostgresLog(querier.QueryRowContext(ctx, query, tenantID, encryptedName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log by name")
	}
	return log, nil
}

// List retrieves the logs of a tenant in creation order.
func (p *PostgreSQLLogRepository) List(ctx context.Context, tenantID string) ([]*logsDomain.Log, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresLogColumns + ` FROM logs WHERE tenant_id = $1 ORDER BY created_at, id`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list logs")
	}
	defer func() {
		_ = rows.Close()
	}()

	var logs []*logsDomain.Log
	for rows.Next() {
		log, err := scanPostgresLog(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan log")
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate logs")
	}
	return logs, nil
}

// ListIDs retrieves the ids of every log of a tenant.
func (p *PostgreSQLLogRepository) ListIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id FROM logs WHERE tenant_id = $1 ORDER BY id`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list log ids")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan log id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate log ids")
	}
	return ids, nil
}

// UpdateName replaces the encrypted name and the version that produced it.
func (p *PostgreSQLLogRepository) UpdateName(ctx context.Context, log *logsDomain.Log) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE logs SET encrypted_name = $1, kek_version_id = $2, updated_at = $3
			  WHERE tenant_id = $4 AND id = $5`

	result, err := querier.ExecContext(
		ctx,
		query,
		log.EncryptedName,
		log.KEKVersionID,
		log.UpdatedAt,
		log.TenantID,
		log.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return logsDomain.ErrLogExists
		}
		return apperrors.Wrap(err, "failed to update log name")
	}
	return requireAffected(result, logsDomain.ErrLogNotFound)
}

// PostgreSQLLogKeyRepository implements wrapped DEK persistence for PostgreSQL.
type PostgreSQLLogKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLLogKeyRepository creates a new PostgreSQLLogKeyRepository.
func NewPostgreSQLLogKeyRepository(db *sql.DB) *PostgreSQLLogKeyRepository {
	return &PostgreSQLLogKeyRepository{db: db}
}

const postgresLogKeyColumns = `tenant_id, log_id, kek_version_id, algorithm, encrypted_key, nonce, encrypted_name, created_at`

func scanPostgresLogKey(row interface{ Scan(...any) error }) (*logsDomain.LogKey, error) {
	var k logsDomain.LogKey
	err := row.Scan(
		&k.TenantID, &k.LogID, &k.KEKVersionID, &k.Algorithm, &k.EncryptedKey, &k.Nonce, &k.EncryptedName, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Create inserts a wrapped DEK.
func (p *PostgreSQLLogKeyRepository) Create(ctx context.Context, key *logsDomain.LogKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO log_keys (` + postgresLogKeyColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.TenantID,
		key.LogID,
		key.KEKVersionID,
		key.Algorithm,
		key.EncryptedKey,
		key.Nonce,
		key.EncryptedName,
		key.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return logsDomain.ErrLogKeyExists
		}
		return apperrors.Wrap(err, "failed to create log key")
	}
	return nil
}

// Get retrieves the key of a log for one KEK version.
func (p *PostgreSQLLogKeyRepository) Get(
	ctx context.Context,
	tenantID string,
	logID, versionID uuid.UUID,
) (*logsDomain.LogKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresLogKeyColumns + ` FROM log_keys
			  WHERE tenant_id = $1 AND log_id = $2 AND kek_version_id = $3`

	key, err := scanPostgresLogKey(querier.QueryRowContext(ctx, query, tenantID, logID, versionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log key")
	}
	return key, nil
}

// GetByName retrieves the key whose name under versionID is encryptedName.
func (p *PostgreSQLLogKeyRepository) GetByName(
	ctx context.Context,
	tenantID string,
	versionID uuid.UUID,
	encryptedName string,
) (*logsDomain.LogKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresLogKeyColumns + ` FROM log_keys
			  WHERE tenant_id = $1 AND kek_version_id = $2 AND encrypted_name = $3 LIMIT 1`

	key, err := scanPostgresLogKey(querier.QueryRowContext(ctx, query, tenantID, versionID, encryptedName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log key by name")
	}
	return key, nil
}

// List retrieves every key of a log, newest version first.
func (p *PostgreSQLLogKeyRepository) List(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) ([]*logsDomain.LogKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresLogKeyColumns + ` FROM log_keys
			  WHERE tenant_id = $1 AND log_id = $2 ORDER BY kek_version_id DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID, logID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list log keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*logsDomain.LogKey
	for rows.Next() {
		key, err := scanPostgresLogKey(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan log key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate log keys")
	}
	return keys, nil
}
