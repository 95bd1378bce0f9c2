package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// MySQLLogRepository implements log persistence for MySQL.
type MySQLLogRepository struct {
	db *sql.DB
}

// NewMySQLLogRepository creates a new MySQLLogRepository.
func NewMySQLLogRepository(db *sql.DB) *MySQLLogRepository {
	return &MySQLLogRepository{db: db}
}

const mysqlLogColumns = `id, tenant_id, encrypted_name, kek_version_id, created_at, updated_at`

func scanMySQLLog(row interface{ Scan(...any) error }) (*logsDomain.Log, error) {
	var l logsDomain.Log
	var id, versionID []byte
	if err := row.Scan(&id, &l.TenantID, &l.EncryptedName, &versionID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if l.ID, err = parseUUIDBytes(id, "log id"); err != nil {
		return nil, err
	}
	if l.KEKVersionID, err = parseUUIDBytes(versionID, "kek version id"); err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new log.
func (m *MySQLLogRepository) Create(ctx context.Context, log *logsDomain.Log) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO logs (` + mysqlLogColumns + `) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		uuidBytes(log.ID),
		log.TenantID,
		log.EncryptedName,
		uuidBytes(log.KEKVersionID),
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
func (m *MySQLLogRepository) Get(ctx context.Context, tenantID string, id uuid.UUID) (*logsDomain.Log, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlLogColumns + ` FROM logs WHERE tenant_id = ? AND id = ?`

	log, err := scanMySQLLog(querier.QueryRowContext(ctx, query, tenantID, uuidBytes(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log")
	}
	return log, nil
}

// GetByName retrieves a log by its encrypted name.
func (m *MySQLLogRepository) GetByName(ctx context.Context, tenantID, encryptedName string) (*logsDomain.Log, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlLogColumns + ` FROM logs WHERE tenant_id = ? AND encrypted_name = ?`

	log, err := scanMySQLLog(querier.QueryRowContext(ctx, query, tenantID, encryptedName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log by name")
	}
	return log, nil
}

// List retrieves the logs of a tenant in creation order.
func (m *MySQLLogRepository) List(ctx context.Context, tenantID string) ([]*logsDomain.Log, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlLogColumns + ` FROM logs WHERE tenant_id = ? ORDER BY created_at, id`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list logs")
	}
	defer func() {
		_ = rows.Close()
	}()

	var logs []*logsDomain.Log
	for rows.Next() {
		log, err := scanMySQLLog(rows)
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
func (m *MySQLLogRepository) ListIDs(ctx context.Context, tenantID string) ([]uuid.UUID, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id FROM logs WHERE tenant_id = ? ORDER BY id`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list log ids")
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []uuid.UUID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan log id")
		}
		id, err := parseUUIDBytes(raw, "log id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate log ids")
	}
	return ids, nil
}

// UpdateName replaces the encrypted name and the version that produced it.
// MySQL reports changed rows, so a missing log is not detected here; the
// log store reads the log before renaming it.
func (m *MySQLLogRepository) UpdateName(ctx context.Context, log *logsDomain.Log) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE logs SET encrypted_name = ?, kek_version_id = ?, updated_at = ?
			  WHERE tenant_id = ? AND id = ?`

	_, err := querier.ExecContext(
		ctx,
		query,
		log.EncryptedName,
		uuidBytes(log.KEKVersionID),
		log.UpdatedAt,
		log.TenantID,
		uuidBytes(log.ID),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return logsDomain.ErrLogExists
		}
		return apperrors.Wrap(err, "failed to update log name")
	}
	return nil
}

// MySQLLogKeyRepository implements wrapped DEK persistence for MySQL.
type MySQLLogKeyRepository struct {
	db *sql.DB
}

// NewMySQLLogKeyRepository creates a new MySQLLogKeyRepository.
func NewMySQLLogKeyRepository(db *sql.DB) *MySQLLogKeyRepository {
	return &MySQLLogKeyRepository{db: db}
}

const mysqlLogKeyColumns = `tenant_id, log_id, kek_version_id, algorithm, encrypted_key, nonce, encrypted_name, created_at`

func scanMySQLLogKey(row interface{ Scan(...any) error }) (*logsDomain.LogKey, error) {
	var k logsDomain.LogKey
	var logID, versionID []byte
	err := row.Scan(
		&k.TenantID, &logID, &versionID, &k.Algorithm, &k.EncryptedKey, &k.Nonce, &k.EncryptedName, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if k.LogID, err = parseUUIDBytes(logID, "log id"); err != nil {
		return nil, err
	}
	if k.KEKVersionID, err = parseUUIDBytes(versionID, "kek version id"); err != nil {
		return nil, err
	}
	return &k, nil
}

// Create inserts a wrapped DEK.
func (m *MySQLLogKeyRepository) Create(ctx context.Context, key *logsDomain.LogKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO log_keys (` + mysqlLogKeyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.TenantID,
		uuidBytes(key.LogID),
		uuidBytes(key.KEKVersionID),
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
func (m *MySQLLogKeyRepository) Get(
	ctx context.Context,
	tenantID string,
	logID, versionID uuid.UUID,
) (*logsDomain.LogKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlLogKeyColumns + ` FROM log_keys
			  WHERE tenant_id = ? AND log_id = ? AND kek_version_id = ?`

	key, err := scanMySQLLogKey(querier.QueryRowContext(ctx, query, tenantID, uuidBytes(logID), uuidBytes(versionID)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log key")
	}
	return key, nil
}

// GetByName retrieves the key whose name under versionID is encryptedName.
func (m *MySQLLogKeyRepository) GetByName(
	ctx context.Context,
	tenantID string,
	versionID uuid.UUID,
	encryptedName string,
) (*logsDomain.LogKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlLogKeyColumns + ` FROM log_keys
			  WHERE tenant_id = ? AND kek_version_id = ? AND encrypted_name = ? LIMIT 1`

	key, err := scanMySQLLogKey(querier.QueryRowContext(ctx, query, tenantID, uuidBytes(versionID), encryptedName))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrLogKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get log key by name")
	}
	return key, nil
}

// List retrieves every key of a log, newest version first.
func (m *MySQLLogKeyRepository) List(ctx context.Context, tenantID string, logID uuid.UUID) ([]*logsDomain.LogKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlLogKeyColumns + ` FROM log_keys
			  WHERE tenant_id = ? AND log_id = ? ORDER BY kek_version_id DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID, uuidBytes(logID))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list log keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*logsDomain.LogKey
	for rows.Next() {
		key, err := scanMySQLLogKey(rows)
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
