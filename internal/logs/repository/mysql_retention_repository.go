package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/allisson/logvault/internal/database"
	apperrors "github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// MySQLRetentionPolicyRepository implements retention policy persistence for MySQL.
type MySQLRetentionPolicyRepository struct {
	db *sql.DB
}

// NewMySQLRetentionPolicyRepository creates a new MySQLRetentionPolicyRepository.
func NewMySQLRetentionPolicyRepository(db *sql.DB) *MySQLRetentionPolicyRepository {
	return &MySQLRetentionPolicyRepository{db: db}
}

const mysqlPolicyColumns = `tenant_id, log_id, retention_seconds, created_by, updated_by, created_at, updated_at`

func scanMySQLPolicy(row interface{ Scan(...any) error }) (*logsDomain.RetentionPolicy, error) {
	var p logsDomain.RetentionPolicy
	var logID []byte
	var seconds int64
	err := row.Scan(&p.TenantID, &logID, &seconds, &p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if p.LogID, err = parseUUIDBytes(logID, "log id"); err != nil {
		return nil, err
	}
	p.RetentionPeriod = secondsToPeriod(seconds)
	return &p, nil
}

// Upsert creates or replaces the policy of a log.
func (m *MySQLRetentionPolicyRepository) Upsert(ctx context.Context, policy *logsDomain.RetentionPolicy) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO retention_policies (` + mysqlPolicyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			  retention_seconds = VALUES(retention_seconds),
			  updated_by = VALUES(updated_by),
			  updated_at = VALUES(updated_at)`

	_, err := querier.ExecContext(
		ctx,
		query,
		policy.TenantID,
		uuidBytes(policy.LogID),
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
func (m *MySQLRetentionPolicyRepository) Get(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) (*logsDomain.RetentionPolicy, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + mysqlPolicyColumns + ` FROM retention_policies WHERE tenant_id = ? AND log_id = ?`

	policy, err := scanMySQLPolicy(querier.QueryRowContext(ctx, query, tenantID, uuidBytes(logID)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, logsDomain.ErrRetentionPolicyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get retention policy")
	}
	return policy, nil
}

// Delete removes the policy of a log.
func (m *MySQLRetentionPolicyRepository) Delete(ctx context.Context, tenantID string, logID uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM retention_policies WHERE tenant_id = ? AND log_id = ?`

	result, err := querier.ExecContext(ctx, query, tenantID, uuidBytes(logID))
	if err != nil {
		return apperrors.Wrap(err, "failed to delete retention policy")
	}
	return requireAffected(result, logsDomain.ErrRetentionPolicyNotFound)
}

// List retrieves the policies of a tenant.
func (m *MySQLRetentionPolicyRepository) List(ctx context.Context, tenantID string) ([]*logsDomain.RetentionPolicy, error) {
	query := `SELECT ` + mysqlPolicyColumns + ` FROM retention_policies WHERE tenant_id = ? ORDER BY log_id`
	return m.list(ctx, query, tenantID)
}

// ListAll retrieves the policies of every tenant.
func (m *MySQLRetentionPolicyRepository) ListAll(ctx context.Context) ([]*logsDomain.RetentionPolicy, error) {
	query := `SELECT ` + mysqlPolicyColumns + ` FROM retention_policies ORDER BY tenant_id, log_id`
	return m.list(ctx, query)
}

func (m *MySQLRetentionPolicyRepository) list(
	ctx context.Context,
	query string,
	args ...any,
) ([]*logsDomain.RetentionPolicy, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list retention policies")
	}
	defer func() {
		_ = rows.Close()
	}()

	var policies []*logsDomain.RetentionPolicy
	for rows.Next() {
		policy, err := scanMySQLPolicy(rows)
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
