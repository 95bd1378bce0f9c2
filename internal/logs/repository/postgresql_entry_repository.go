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

// PostgreSQLEntryRepository implements encrypted entry persistence for PostgreSQL.
type PostgreSQLEntryRepository struct {
	db *sql.DB
}

// NewPostgreSQLEntryRepository creates a new PostgreSQLEntryRepository.
func NewPostgreSQLEntryRepository(db *sql.DB) *PostgreSQLEntryRepository {
	return &PostgreSQLEntryRepository{db: db}
}

const postgresEntryColumns = `id, tenant_id, log_id, kek_version_id, algorithm, ciphertext, nonce,
	entry_timestamp, created_at`

func scanPostgresEntry(row interface{ Scan(...any) error }) (*logsDomain.EncryptedLogEntry, error) {
	var e logsDomain.EncryptedLogEntry
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.LogID,
		&e.KEKVersionID,
		&e.Algorithm,
		&e.Ciphertext,
		&e.Nonce,
		&e.Timestamp,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts an entry and its search tokens. Callers run it inside a
// transaction so both land together.
func (p *PostgreSQLEntryRepository) Create(ctx context.Context, entry *logsDomain.EncryptedLogEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO log_entries (` + postgresEntryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.TenantID,
		entry.LogID,
		entry.KEKVersionID,
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

	tokenQuery := `INSERT INTO log_entry_tokens (entry_id, tenant_id, token) VALUES ($1, $2, $3)`
	for _, token := range uniqueTokens(entry.SearchTokens) {
		if _, err := querier.ExecContext(ctx, tokenQuery, entry.ID, entry.TenantID, token); err != nil {
			return apperrors.Wrap(err, "failed to create log entry token")
		}
	}
	return nil
}

// List retrieves entries ordered by timestamp, then id.
func (p *PostgreSQLEntryRepository) List(
	ctx context.Context,
	tenantID string,
	filter logsDomain.EntryFilter,
) ([]*logsDomain.EncryptedLogEntry, error) {
	b := newQueryBuilder(postgresDialect)
	b.entryFilter(tenantID, filter)
	query := b.page(`SELECT `+postgresEntryColumns+` FROM log_entries`, filter)
	return p.query(ctx, query, b.args...)
}

// Search retrieves entries holding every token of at least one group.
func (p *PostgreSQLEntryRepository) Search(
	ctx context.Context,
	tenantID string,
	query logsDomain.SearchQuery,
) ([]*logsDomain.EncryptedLogEntry, error) {
	b := newQueryBuilder(postgresDialect)
	b.entryFilter(tenantID, query.EntryFilter)
	b.tokenGroups(tenantID, query.Groups)
	sqlQuery := b.page(`SELECT `+postgresEntryColumns+` FROM log_entries`, query.EntryFilter)
	return p.query(ctx, sqlQuery, b.args...)
}

// CountBefore counts the entries of a log older than cutoff.
func (p *PostgreSQLEntryRepository) CountBefore(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	cutoff time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM log_entries WHERE tenant_id = $1 AND log_id = $2 AND entry_timestamp < $3`

	var count int64
	if err := querier.QueryRowContext(ctx, query, tenantID, logID, cutoff.UTC()).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count expired log entries")
	}
	return count, nil
}

// ListBefore retrieves up to limit of the oldest entries of a log older than cutoff.
func (p *PostgreSQLEntryRepository) ListBefore(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	cutoff time.Time,
	limit int,
) ([]*logsDomain.EncryptedLogEntry, error) {
	query := `SELECT ` + postgresEntryColumns + ` FROM log_entries
			  WHERE tenant_id = $1 AND log_id = $2 AND entry_timestamp < $3
			  ORDER BY entry_timestamp, id LIMIT $4`
	return p.query(ctx, query, tenantID, logID, cutoff.UTC(), limit)
}

// Delete removes entries by id; their tokens go with them.
func (p *PostgreSQLEntryRepository) Delete(ctx context.Context, tenantID string, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	querier := database.GetTx(ctx, p.db)

	b := newQueryBuilder(postgresDialect)
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

func (p *PostgreSQLEntryRepository) query(
	ctx context.Context,
	query string,
	args ...any,
) ([]*logsDomain.EncryptedLogEntry, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list log entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*logsDomain.EncryptedLogEntry
	for rows.Next() {
		entry, err := scanPostgresEntry(rows)
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
