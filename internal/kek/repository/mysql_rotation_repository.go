package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// MySQLTenantStateRepository implements tenant key state persistence for MySQL.
type MySQLTenantStateRepository struct {
	db *sql.DB
}

// NewMySQLTenantStateRepository creates a new MySQLTenantStateRepository.
func NewMySQLTenantStateRepository(db *sql.DB) *MySQLTenantStateRepository {
	return &MySQLTenantStateRepository{db: db}
}

// Get retrieves the state of a tenant, or a fresh state for an unknown tenant.
func (m *MySQLTenantStateRepository) Get(ctx context.Context, tenantID string) (*kekDomain.TenantKeyState, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT tenant_id, state, revision, operation_id, updated_at
			  FROM tenant_key_states WHERE tenant_id = ?`

	var state kekDomain.TenantKeyState
	var operationID []byte
	err := querier.QueryRowContext(ctx, query, tenantID).Scan(
		&state.TenantID,
		&state.State,
		&state.Revision,
		&operationID,
		&state.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return kekDomain.NewTenantKeyState(tenantID), nil
		}
		return nil, apperrors.Wrap(err, "failed to get tenant key state")
	}
	if state.OperationID, err = parseUUIDBytes(operationID, "operation id"); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save writes the state when the stored revision equals expectedRevision.
func (m *MySQLTenantStateRepository) Save(
	ctx context.Context,
	state *kekDomain.TenantKeyState,
	expectedRevision int64,
) error {
	querier := database.GetTx(ctx, m.db)
	next := expectedRevision + 1
	updatedAt := nowUTC()

	if expectedRevision == 0 {
		query := `INSERT INTO tenant_key_states (tenant_id, state, revision, operation_id, updated_at)
				  VALUES (?, ?, ?, ?, ?)`

		_, err := querier.ExecContext(
			ctx,
			query,
			state.TenantID,
			state.State,
			next,
			nullableUUIDBytes(state.OperationID),
			updatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return kekDomain.ErrVersionConflict
			}
			return apperrors.Wrap(err, "failed to create tenant key state")
		}
	} else {
		query := `UPDATE tenant_key_states
				  SET state = ?, revision = ?, operation_id = ?, updated_at = ?
				  WHERE tenant_id = ? AND revision = ?`

		result, err := querier.ExecContext(
			ctx,
			query,
			state.State,
			next,
			nullableUUIDBytes(state.OperationID),
			updatedAt,
			state.TenantID,
			expectedRevision,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to update tenant key state")
		}
		if err := requireAffected(result, kekDomain.ErrVersionConflict); err != nil {
			return err
		}
	}

	state.Revision = next
	state.UpdatedAt = updatedAt
	return nil
}

// MySQLRotationJobRepository implements rotation job persistence for MySQL.
type MySQLRotationJobRepository struct {
	db *sql.DB
}

// NewMySQLRotationJobRepository creates a new MySQLRotationJobRepository.
func NewMySQLRotationJobRepository(db *sql.DB) *MySQLRotationJobRepository {
	return &MySQLRotationJobRepository{db: db}
}

const mysqlJobColumns = `id, tenant_id, from_version_id, to_version_id, mode, status, reason,
	total_items, done_items, failed_items, created_by, created_at, updated_at, completed_at`

func scanMySQLJob(row interface{ Scan(...any) error }) (*kekDomain.RotationJob, error) {
	var job kekDomain.RotationJob
	var id, fromID, toID []byte
	err := row.Scan(
		&id,
		&job.TenantID,
		&fromID,
		&toID,
		&job.Mode,
		&job.Status,
		&job.Reason,
		&job.TotalItems,
		&job.DoneItems,
		&job.FailedItems,
		&job.CreatedBy,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if job.ID, err = parseUUIDBytes(id, "rotation job id"); err != nil {
		return nil, err
	}
	if job.FromVersionID, err = parseUUIDBytes(fromID, "from version id"); err != nil {
		return nil, err
	}
	if job.ToVersionID, err = parseUUIDBytes(toID, "to version id"); err != nil {
		return nil, err
	}
	return &job, nil
}

// Create inserts a new rotation job.
func (m *MySQLRotationJobRepository) Create(ctx context.Context, job *kekDomain.RotationJob) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO rotation_jobs (` + mysqlJobColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		uuidBytes(job.ID),
		job.TenantID,
		uuidBytes(job.FromVersionID),
		uuidBytes(job.ToVersionID),
		job.Mode,
		job.Status,
		job.Reason,
		job.TotalItems,
		job.DoneItems,
		job.FailedItems,
		job.CreatedBy,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create rotation job")
	}
	return nil
}

// Get retrieves a rotation job of a tenant.
func (m *MySQLRotationJobRepository) Get(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*kekDomain.RotationJob, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlJobColumns + ` FROM rotation_jobs WHERE tenant_id = ? AND id = ?`

	job, err := scanMySQLJob(querier.QueryRowContext(ctx, query, tenantID, uuidBytes(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrRotationJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get rotation job")
	}
	return job, nil
}

// GetLatest retrieves the most recent rotation job of a tenant.
func (m *MySQLRotationJobRepository) GetLatest(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlJobColumns + ` FROM rotation_jobs
			  WHERE tenant_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`

	job, err := scanMySQLJob(querier.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrRotationJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get latest rotation job")
	}
	return job, nil
}

// Update stores the status and counters of a rotation job.
func (m *MySQLRotationJobRepository) Update(ctx context.Context, job *kekDomain.RotationJob) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE rotation_jobs
			  SET status = ?, done_items = ?, failed_items = ?, updated_at = ?, completed_at = ?
			  WHERE id = ?`

	_, err := querier.ExecContext(
		ctx,
		query,
		job.Status,
		job.DoneItems,
		job.FailedItems,
		job.UpdatedAt,
		job.CompletedAt,
		uuidBytes(job.ID),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update rotation job")
	}
	return nil
}

// CreateItems inserts the items of a rotation job.
func (m *MySQLRotationJobRepository) CreateItems(ctx context.Context, items []*kekDomain.RotationItem) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO rotation_items (job_id, log_id, status, attempts, last_error, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	for _, item := range items {
		_, err := querier.ExecContext(
			ctx,
			query,
			uuidBytes(item.JobID),
			uuidBytes(item.LogID),
			item.Status,
			item.Attempts,
			item.LastError,
			item.UpdatedAt,
		)
		if err != nil {
			return apperrors.Wrap(err, "failed to create rotation item")
		}
	}
	return nil
}

func scanMySQLItem(row interface{ Scan(...any) error }) (*kekDomain.RotationItem, error) {
	var item kekDomain.RotationItem
	var jobID, logID []byte
	err := row.Scan(&jobID, &logID, &item.Status, &item.Attempts, &item.LastError, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if item.JobID, err = parseUUIDBytes(jobID, "rotation job id"); err != nil {
		return nil, err
	}
	if item.LogID, err = parseUUIDBytes(logID, "log id"); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem retrieves the item of a log within a job.
func (m *MySQLRotationJobRepository) GetItem(ctx context.Context, jobID, logID uuid.UUID) (*kekDomain.RotationItem, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT job_id, log_id, status, attempts, last_error, updated_at
			  FROM rotation_items WHERE job_id = ? AND log_id = ?`

	item, err := scanMySQLItem(querier.QueryRowContext(ctx, query, uuidBytes(jobID), uuidBytes(logID)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrRotationItemNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get rotation item")
	}
	return item, nil
}

// ListItems retrieves the items of a job, optionally filtered by status.
func (m *MySQLRotationJobRepository) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status kekDomain.ItemStatus,
) ([]*kekDomain.RotationItem, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT job_id, log_id, status, attempts, last_error, updated_at
			  FROM rotation_items WHERE job_id = ? AND (? = '' OR status = ?) ORDER BY log_id`

	rows, err := querier.QueryContext(ctx, query, uuidBytes(jobID), string(status), string(status))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list rotation items")
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []*kekDomain.RotationItem
	for rows.Next() {
		item, err := scanMySQLItem(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan rotation item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate rotation items")
	}
	return items, nil
}

// UpdateItem stores the outcome of one item.
func (m *MySQLRotationJobRepository) UpdateItem(ctx context.Context, item *kekDomain.RotationItem) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE rotation_items SET status = ?, attempts = ?, last_error = ?, updated_at = ?
			  WHERE job_id = ? AND log_id = ?`

	_, err := querier.ExecContext(
		ctx,
		query,
		item.Status,
		item.Attempts,
		item.LastError,
		item.UpdatedAt,
		uuidBytes(item.JobID),
		uuidBytes(item.LogID),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update rotation item")
	}
	return nil
}

// CountItems counts the items of a job per status.
func (m *MySQLRotationJobRepository) CountItems(ctx context.Context, jobID uuid.UUID) (map[kekDomain.ItemStatus]int, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT status, COUNT(*) FROM rotation_items WHERE job_id = ? GROUP BY status`
	return countItems(ctx, querier, query, uuidBytes(jobID))
}
