// Package repository persists encrypted logs, wrapped DEKs, entries with
// their search tokens, and retention policies in PostgreSQL and MySQL.
package repository

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/logvault/internal/errors"
	logsDomain "github.com/allisson/logvault/internal/logs/domain"
)

// dialect captures what differs between the two drivers when building
// dynamic queries: placeholder syntax and the wire form of uuids.
type dialect struct {
	placeholder func(n int) string
	id          func(id uuid.UUID) any
}

var (
	postgresDialect = dialect{
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		id:          func(id uuid.UUID) any { return id },
	}
	mysqlDialect = dialect{
		placeholder: func(int) string { return "?" },
		id:          func(id uuid.UUID) any { return uuidBytes(id) },
	}
)

// queryBuilder accumulates conditions and their arguments in order.
type queryBuilder struct {
	dialect dialect
	conds   []string
	args    []any
}

func newQueryBuilder(d dialect) *queryBuilder {
	return &queryBuilder{dialect: d}
}

// arg registers a value and returns its placeholder.
func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.dialect.placeholder(len(b.args))
}

func (b *queryBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *queryBuilder) whereClause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

// entryFilter adds the tenant and filter conditions of an entry query.
func (b *queryBuilder) entryFilter(tenantID string, filter logsDomain.EntryFilter) {
	b.where("tenant_id = " + b.arg(tenantID))
	if filter.LogID != nil {
		b.where("log_id = " + b.arg(b.dialect.id(*filter.LogID)))
	}
	if filter.From != nil {
		b.where("entry_timestamp >= " + b.arg(filter.From.UTC()))
	}
	if filter.To != nil {
		b.where("entry_timestamp < " + b.arg(filter.To.UTC()))
	}
}

// tokenGroups matches entries holding every token of at least one group.
func (b *queryBuilder) tokenGroups(tenantID string, groups [][]string) {
	clauses := make([]string, 0, len(groups))
	for _, group := range groups {
		tokens := uniqueTokens(group)
		if len(tokens) == 0 {
			continue
		}
		placeholders := make([]string, len(tokens))
		tenant := b.arg(tenantID)
		for i, token := range tokens {
			placeholders[i] = b.arg(token)
		}
		clauses = append(clauses, "id IN (SELECT entry_id FROM log_entry_tokens WHERE tenant_id = "+tenant+
			" AND token IN ("+strings.Join(placeholders, ", ")+")"+
			" GROUP BY entry_id HAVING COUNT(DISTINCT token) = "+b.arg(len(tokens))+")")
	}
	if len(clauses) > 0 {
		b.where("(" + strings.Join(clauses, " OR ") + ")")
	}
}

// page appends ordering and pagination to a select.
func (b *queryBuilder) page(query string, filter logsDomain.EntryFilter) string {
	query += b.whereClause() + " ORDER BY entry_timestamp, id"
	if filter.Limit > 0 {
		query += " LIMIT " + b.arg(filter.Limit) + " OFFSET " + b.arg(filter.Offset)
	}
	return query
}

// inIDs adds an id IN (...) condition.
func (b *queryBuilder) inIDs(column string, ids []uuid.UUID) {
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = b.arg(b.dialect.id(id))
	}
	b.where(column + " IN (" + strings.Join(placeholders, ", ") + ")")
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// requireAffected returns notFound when an update or delete matched no row.
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func uuidBytes(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}

func parseUUIDBytes(raw []byte, field string) (uuid.UUID, error) {
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "failed to unmarshal "+field)
	}
	return id, nil
}

// Retention periods are stored in whole seconds, rounded up; -1 is unlimited.
func periodToSeconds(period time.Duration) int64 {
	if period < 0 {
		return -1
	}
	return int64((period + time.Second - 1) / time.Second)
}

func secondsToPeriod(seconds int64) time.Duration {
	if seconds < 0 {
		return logsDomain.UnlimitedRetention
	}
	return time.Duration(seconds) * time.Second
}
