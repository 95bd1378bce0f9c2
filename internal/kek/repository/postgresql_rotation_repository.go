package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

// PostgreSQLTenantStateRepository implements tenant key state persistence for PostgreSQL.
type PostgreSQLTenantStateRepository struct {
	db *sql.DB
}

// NewPostgreSQLTenantStateRepository creates a new PostgreSQLTenantStateRepository.
func NewPostgreSQLTenantStateRepository(db *sql.DB) *PostgreSQLTenantStateRepository {
	return &PostgreSQLTenantStateRepository{db: db}
}

// Get retrieves the state of a tenant, or a fresh state for an unknown tenant.
func (p *PostgreSQLTenantStateRepository) Get(ctx context.Context, tenantID string) (*kekDomain.TenantKeyState, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT tenant_id, state, revision, operation_id, updated_at
			  FROM tenant_key_states WHERE tenant_id = $1`

	var state kekDomain.TenantKeyState
	var operationID uuid.NullUUID
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
	if operationID.Valid {
		state.OperationID = operationID.UUID
	}
	return &state, nil
}

// Save writes the state when the stored revision equals expectedRevision.
func (p *PostgreSQLTenantStateRepository) Save(
	ctx context.Context,
	state *kekDomain.TenantKeyState,
	expectedRevision int64,
) error {
	querier := database.GetTx(ctx, p.db)
	next := expectedRevision + 1
	updatedAt := nowUTC()

	if expectedRevision == 0 {
		query := `INSERT INTO tenant_key_states (tenant_id, state, revision, operation_id, updated_at)
				  VALUES ($1, $2, $3, $4, $5)`

		_, err := querier.ExecContext(
			ctx,
			query,
			state.TenantID,
			state.State,
			next,
			nullableUUID(state.OperationID),
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
				  SET state = $1, revision = $2, operation_id = $3, updated_at = $4
				  WHERE tenant_id = $5 AND revision = $6`

		result, err := querier.ExecContext(
			ctx,
			query,
			state.State,
			next,
			nullableUUID(state.OperationID),
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

// PostgreSQLRotationJobRepository implements rotation job persistence for PostgreSQL.
type PostgreSQLRotationJobRepository struct {
	db *sql.DB
}

// NewPostgreSQLRotationJobRepository creates a new PostgreSQLRotationJobRepository.
func NewPostgreSQLRotationJobRepository(db *sql.DB) *PostgreSQLRotationJobRepository {
	return &PostgreSQLRotationJobRepository{db: db}
}

const postgresJobColumns = `id, tenant_id, from_version_id, to_version_id, mode, status, reason,
	total_items, done_items, failed_items, created_by, created_at, updated_at, completed_at`

func scanPostgresJob(row interface{ Scan(...any) error }) (*kekDomain.RotationJob, error) {
	var job kekDomain.RotationJob
	err := row.Scan(
		&job.ID,
		&job.TenantID,
		&job.FromVersionID,
		&job.ToVersionID,
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
	return &job, nil
}

// Create inserts a new rotation job.
func (p *PostgreSQLRotationJobRepository) Create(ctx context.Context, job *kekDomain.RotationJob) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO rotation_jobs (` + postgresJobColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := querier.ExecContext(
		ctx,
		query,
		job.ID,
		job.TenantID,
		job.FromVersionID,
		job.ToVersionID,
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
func (p *PostgreSQLRotationJobRepository) Get(
	ctx context.Context,
	tenantID string,
	id uuid.UUID,
) (*kekDomain.RotationJob, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresJobColumns + ` FROM rotation_jobs WHERE tenant_id = $1 AND id = $2`

	job, err := scanPostgresJob(querier.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrRotationJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get rotation job")
	}
	return job, nil
}

// GetLatest retrieves the most recent rotation job of a tenant.
func (p *PostgreSQLRotationJobRepository) GetLatest(ctx context.Context, tenantID string) (*kekDomain.RotationJob, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresJobColumns + ` FROM rotation_jobs
			  WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`

	job, err := scanPostgresJob(querier.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrRotationJobNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get latest rotation job")
	}
	return job, nil
}

// Update stores the status and counters of a rotation job.
func (p *PostgreSQLRotationJobRepository) Update(ctx context.Context, job *kekDomain.RotationJob) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE rotation_jobs
			  SET status = $1, done_items = $2, failed_items = $3, updated_at = $4, completed_at = $5
			  WHERE id = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		job.Status,
		job.DoneItems,
		job.FailedItems,
		job.UpdatedAt,
		job.CompletedAt,
		job.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update rotation job")
	}
	return requireAffected(result, kekDomain.ErrRotationJobNotFound)
}

// CreateItems inserts the items of a rotation job.
func (p *PostgreSQLRotationJobRepository) CreateItems(ctx context.Context, items []*kekDomain.RotationItem) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO rotation_items (job_id, log_id, status, attempts, last_error, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	for _, item := range items {
		_, err := querier.ExecContext(
			ctx,
			query,
			item.JobID,
			item.LogID,
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

const postgresItemColumns = `job_id, log_id, status, attempts, last_error, updated_at`

func scanPostgresItem(row interface{ Scan(...any) error }) (*kekDomain.RotationItem, error) {
	var item kekDomain.RotationItem
	err := row.Scan(&item.JobID, &item.LogID, &item.Status, &item.Attempts, &item.LastError, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItem retrieves the item of a log within a job.
func (p *PostgreSQLRotationJobRepository) GetItem(
	ctx context.Context,
	jobID, logID uuid.UUID,
) (*kekDomain.RotationItem, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresItemColumns + ` FROM rotation_items WHERE job_id = $1 AND log_id = $2`

	item, err := scanPostgresItem(querier.QueryRowContext(ctx, query, jobID, logID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, kekDomain.ErrRotationItemNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get rotation item")
	}
	return item, nil
}

// ListItems retrieves the items of a job, optionally filtered by status.
func (p *PostgreSQLRotationJobRepository) ListItems(
	ctx context.Context,
	jobID uuid.UUID,
	status kekDomain.ItemStatus,
) ([]*kekDomain.RotationItem, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresItemColumns + ` FROM rotation_items
			  WHERE job_id = $1 AND ($2 = '' OR status = $2) ORDER BY log_id`

	rows, err := querier.QueryContext(ctx, query, jobID, string(status))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list rotation items")
	}
	defer func() {
		_ = rows.Close()
	}()

	var items []*kekDomain.RotationItem
	for rows.Next() {
		item, err := scanPostgresItem(rows)
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
func (p *PostgreSQLRotationJobRepository) UpdateItem(ctx context.Context, item *kekDomain.RotationItem) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE rotation_items SET status = $1, attempts = $2, last_error = $3, updated_at = $4
			  WHERE job_id = $5 AND log_id = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		item.Status,
		item.Attempts,
		item.LastError,
		item.UpdatedAt,
		item.JobID,
		item.LogID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update rotation item")
	}
	return requireAffected(result, kekDomain.ErrRotationItemNotFound)
}

// CountItems counts the items of a job per status.
func (p *PostgreSQLRotationJobRepository) CountItems(
	ctx context.Context,
	jobID uuid.UUID,
) (map[kekDomain.ItemStatus]int, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT status, COUNT(*) FROM rotation_items WHERE job_id = $1 GROUP BY status`
	return countItems(ctx, querier, query, jobID)
}

func countItems(
	ctx context.Context,
	querier database.Querier,
	query string,
	jobID any,
) (map[kekDomain.ItemStatus]int, error) {
	rows, err := querier.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count rotation items")
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[kekDomain.ItemStatus]int)
	for rows.Next() {
		var status kekDomain.ItemStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan rotation item count")
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate rotation item counts")
	}
	return counts, nil
}
