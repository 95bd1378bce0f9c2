package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// MySQLEntryRepository implements encrypted entry persistence for MySQL.
type MySQLEntryRepository struct {
	db *sql.DB
}

// NewMySQLEntryRepository creates a new MySQLEntryRepository.
func NewMySQLEntryRepository(db *sql.DB) *MySQLEntryRepository {
	return &MySQLEntryRepository{db: db}
}

const mysqlEntryColumns = `id, tenant_id, log_id, kek_version_id, algorithm, ciphertext, nonce,
	entry_timestamp, created_at`

func scanMySQLEntry(row interface{ Scan(...any) error }) (*logsDomain.EncryptedLogEntry, error) {
	var e logsDomain.EncryptedLogEntry
	var id, logID, versionID []byte
	err := row.Scan(
		&id,
		&e.TenantID,
		&logID,
		&versionID,
		&e.Algorithm,
		&e.Ciphertext,
		&e.Nonce,
		&e.Timestamp,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.ID, err = parseUUIDBytes(id, "entry id"); err != nil {
		return nil, err
	}
	if e.LogID, err = parseUUIDBytes(logID, "log id"); err != nil {
		return nil, err
	}
	if e.KEKVersionID, err = parseUUIDBytes(versionID, "kek version id"); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts an entry and its search tokens. Callers run it inside a
// transaction so both land together.
func (m *MySQLEntryRepository) Create(ctx context.Context, entry *logsDomain.EncryptedLogEntry) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO log_entries (` + mysqlEntryColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		uuidBytes(entry.ID),
		entry.TenantID,
		uuidBytes(entry.LogID),
		uuidBytes(entry.KEKVersionID),
		entry.Algorithm,
		entry.Ciphertext,
		entry.Nonce,
		entry.Timestamp.UTC(),
		entry.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return logsDomain.ErrEntryExists
		}
		return apperrors.Wrap(err, "failed to create log entry")
	}

	tokenQuery := `INSERT INTO log_entry_tokens (entry_id, tenant_id, token) VALUES (?, ?, ?)`
	for _, token := range uniqueTokens(entry.SearchTokens) {
		if _, err := querier.ExecContext(ctx, tokenQuery, uuidBytes(entry.ID), entry.TenantID, token); err != nil {
			return apperrors.Wrap(err, "failed to create log entry token")
		}
	}
	return nil
}

// List retrieves entries ordered by timestamp, then id.
func (m *MySQLEntryRepository) List(
	ctx context.Context,
	tenantID string,
	filter logsDomain.EntryFilter,
) ([]*logsDomain.EncryptedLogEntry, error) {
	b := newQueryBuilder(mysqlDialect)
	b.entryFilter(tenantID, filter)
	query := b.page(`SELECT `+mysqlEntryColumns+` FROM log_entries`, filter)
	return m.query(ctx, query, b.args...)
}

// Search retrieves entries holding every token of at least one group.
func (m *MySQLEntryRepository) Search(
	ctx context.Context,
	tenantID string,
	query logsDomain.SearchQuery,
) ([]*logsDomain.EncryptedLogEntry, error) {
	b := newQueryBuilder(mysqlDialect)
	b.entryFilter(tenantID, query.EntryFilter)
	b.tokenGroups(tenantID, query.Groups)
	sqlQuery := b.page(`SELECT `+mysqlEntryColumns+` FROM log_entries`, query.EntryFilter)
	return m.query(ctx, sqlQuery, b.args...)
}

// CountBefore counts the entries of a log older than cutoff.
func (m *MySQLEntryRepository) CountBefore(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM log_entries WHERE tenant_id = ? AND log_id = ? AND entry_timestamp < ?`

	var count int64
	if err := querier.QueryRowContext(ctx, query, tenantID, uuidBytes(logID), cutoff.UTC()).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count expired log entries")
	}
	return count, nil
}

// ListBefore retrieves up to limit of the oldest entries of a log older than cutoff.
func (m *MySQLEntryRepository) ListBefore(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	cutoff time.Time,
	limit int,
) ([]*logsDomain.EncryptedLogEntry, error) {
	query := `SELECT ` + mysqlEntryColumns + ` FROM log_entries
			  WHERE tenant_id = ? AND log_id = ? AND entry_timestamp < ?
			  ORDER BY entry_timestamp, id LIMIT ?`
	return m.query(ctx, query, tenantID, uuidBytes(logID), cutoff.UTC(), limit)
}

// Delete removes entries by id; their tokens go with them.
func (m *MySQLEntryRepository) Delete(ctx context.Context, tenantID string, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, m.db)

	b := newQueryBuilder(mysqlDialect)
	b.where("tenant_id = " + b.arg(tenantID))
	b.inIDs("id", ids)

	result, err := querier.ExecContext(ctx, `DELETE FROM log_entries`+b.whereClause(), b.args...)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete log entries")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}

func (m *MySQLEntryRepository) query(
	ctx context.Context,
	query string,
	args ...any,
) ([]*logsDomain.EncryptedLogEntry, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list log entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*logsDomain.EncryptedLogEntry
	for rows.Next() {
		entry, err := scanMySQLEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan log entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate log entries")
	}
	return entries, nil
}
