package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// PostgreSQLRetentionPolicyRepository implements retention policy persistence for PostgreSQL.
type PostgreSQLRetentionPolicyRepository struct {
	db *sql.DB
}

// NewPostgreSQLRetentionPolicyRepository creates a new PostgreSQLRetentionPolicyRepository.
func NewPostgreSQLRetentionPolicyRepository(db *sql.DB) *PostgreSQLRetentionPolicyRepository {
	return &PostgreSQLRetentionPolicyRepository{db: db}
}

const postgresPolicyColumns = `tenant_id, log_id, retention_seconds, created_by, updated_by, created_at, updated_at`

func scanPostgresPolicy(row interface{ Scan(...any) error }) (*logsDomain.RetentionPolicy, error) {
	var p logsDomain.RetentionPolicy
	var seconds int64
	err := row.Scan(&p.TenantID, &p.LogID, &seconds, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.RetentionPeriod = secondsToPeriod(seconds)
	return &p, nil
}

// Upsert creates or replaces the policy of a log.
func (p *PostgreSQLRetentionPolicyRepository) Upsert(ctx context.Context, policy *logsDomain.RetentionPolicy) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO retention_policies (` + postgresPolicyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (tenant_id, log_id) DO UPDATE SET
			  retention_seconds = EXCLUDED.retention_seconds,
			  updated_by = EXCLUDED.updated_by,
			  updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		policy.TenantID,
		policy.LogID,
		periodToSeconds(policy.RetentionPeriod),
		policy.CreatedBy,
		policy.UpdatedBy,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert retention policy")
	}
	return nil
}

// Get retrieves the policy of a log.
func (p *PostgreSQLRetentionPolicyRepository) Get(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) (*logsDomain.RetentionPolicy, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + postgresPolicyColumns + ` FROM retention_policies WHERE tenant_id = $1 AND log_id = $2`

	policy, err := scanPostgresPolicy(querier.QueryRowContext(ctx, query, tenantID, logID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrRetentionPolicyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get retention policy")
	}
	return policy, nil
}

// Delete removes the policy of a log.
func (p *PostgreSQLRetentionPolicyRepository) Delete(ctx context.Context, tenantID string, logID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM retention_policies WHERE tenant_id = $1 AND log_id = $2`

	result, err := querier.ExecContext(ctx, query, tenantID, logID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete retention policy")
	}
	return requireAffected(result, logsDomain.ErrRetentionPolicyNotFound)
}

// List retrieves the policies of a tenant.
func (p *PostgreSQLRetentionPolicyRepository) List(
	ctx context.Context,
	tenantID string,
) ([]*logsDomain.RetentionPolicy, error) {
	query := `SELECT ` + postgresPolicyColumns + ` FROM retention_policies WHERE tenant_id = $1 ORDER BY log_id`
	return p.list(ctx, query, tenantID)
}

// ListAll retrieves the policies of every tenant.
func (p *PostgreSQLRetentionPolicyRepository) ListAll(ctx context.Context) ([]*logsDomain.RetentionPolicy, error) {
	query := `SELECT ` + postgresPolicyColumns + ` FROM retention_policies ORDER BY tenant_id, log_id`
	return p.list(ctx, query)
}

func (p *PostgreSQLRetentionPolicyRepository) list(
	ctx context.Context,
	query string,
	args ...any,
) ([]*logsDomain.RetentionPolicy, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list retention policies")
	}
	defer func() {
		_ = rows.Close()
	}()

	var policies []*logsDomain.RetentionPolicy
	for rows.Next() {
		policy, err := scanPostgresPolicy(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan retention policy")
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate retention policies")
	}
	return policies, nil
}
