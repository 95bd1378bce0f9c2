package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	logsDomain "github.com/allisson/logvault/internal/logs/domain"
	"github.com/allisson/logvault/internal/metrics"
)

const (
	logsMetricsDomain      = "logs"
	retentionMetricsDomain = "retention"
)

// logStoreWithMetrics decorates LogStore with metrics instrumentation.
type logStoreWithMetrics struct {
	next    LogStore
	metrics metrics.BusinessMetrics
}

// NewLogStoreWithMetrics wraps a LogStore with metrics recording.
func NewLogStoreWithMetrics(store LogStore, m metrics.BusinessMetrics) LogStore {
	return &logStoreWithMetrics{next: store, metrics: m}
}

func (s *logStoreWithMetrics) CreateLog(
	ctx context.Context,
	tenantID, userID string,
	log *logsDomain.Log,
	key *logsDomain.LogKey,
) (created *logsDomain.Log, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "create_log", start, err)
	}(time.Now())
	return s.next.CreateLog(ctx, tenantID, userID, log, key)
}

func (s *logStoreWithMetrics) GetLog(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) (log *logsDomain.Log, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "get_log", start, err)
	}(time.Now())
	return s.next.GetLog(ctx, tenantID, logID)
}

func (s *logStoreWithMetrics) GetLogByName(
	ctx context.Context,
	tenantID, encryptedName string,
) (log *logsDomain.Log, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "get_log_by_name", start, err)
	}(time.Now())
	return s.next.GetLogByName(ctx, tenantID, encryptedName)
}

func (s *logStoreWithMetrics) ListLogs(ctx context.Context, tenantID string) (logs []*logsDomain.Log, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "list_logs", start, err)
	}(time.Now())
	return s.next.ListLogs(ctx, tenantID)
}

func (s *logStoreWithMetrics) ListLogIDs(ctx context.Context, tenantID string) (ids []uuid.UUID, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "list_log_ids", start, err)
	}(time.Now())
	return s.next.ListLogIDs(ctx, tenantID)
}

func (s *logStoreWithMetrics) UpdateLogName(
	ctx context.Context,
	tenantID, userID string,
	logID uuid.UUID,
	encryptedName string,
	versionID uuid.UUID,
) (log *logsDomain.Log, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "update_log_name", start, err)
	}(time.Now())
	return s.next.UpdateLogName(ctx, tenantID, userID, logID, encryptedName, versionID)
}

func (s *logStoreWithMetrics) PutLogKey(
	ctx context.Context,
	tenantID, userID string,
	key *logsDomain.LogKey,
) (stored *logsDomain.LogKey, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "put_log_key", start, err)
	}(time.Now())
	return s.next.PutLogKey(ctx, tenantID, userID, key)
}

func (s *logStoreWithMetrics) GetLogKey(
	ctx context.Context,
	tenantID, userID string,
	logID, versionID uuid.UUID,
) (key *logsDomain.LogKey, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "get_log_key", start, err)
	}(time.Now())
	return s.next.GetLogKey(ctx, tenantID, userID, logID, versionID)
}

func (s *logStoreWithMetrics) FindLogKeyByName(
	ctx context.Context,
	tenantID, userID string,
	versionID uuid.UUID,
	encryptedName string,
) (key *logsDomain.LogKey, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "find_log_key_by_name", start, err)
	}(time.Now())
	return s.next.FindLogKeyByName(ctx, tenantID, userID, versionID, encryptedName)
}

func (s *logStoreWithMetrics) ListLogKeys(
	ctx context.Context,
	tenantID, userID string,
	logID uuid.UUID,
) (keys []*logsDomain.LogKey, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "list_log_keys", start, err)
	}(time.Now())
	return s.next.ListLogKeys(ctx, tenantID, userID, logID)
}

func (s *logStoreWithMetrics) AppendEntry(
	ctx context.Context,
	tenantID, userID string,
	entry *logsDomain.EncryptedLogEntry,
) (stored *logsDomain.EncryptedLogEntry, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "append_entry", start, err)
	}(time.Now())
	return s.next.AppendEntry(ctx, tenantID, userID, entry)
}

func (s *logStoreWithMetrics) ListEntries(
	ctx context.Context,
	tenantID string,
	filter logsDomain.EntryFilter,
) (entries []*logsDomain.EncryptedLogEntry, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "list_entries", start, err)
	}(time.Now())
	return s.next.ListEntries(ctx, tenantID, filter)
}

func (s *logStoreWithMetrics) Search(
	ctx context.Context,
	tenantID string,
	query logsDomain.SearchQuery,
) (entries []*logsDomain.EncryptedLogEntry, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, logsMetricsDomain, "search", start, err)
	}(time.Now())
	return s.next.Search(ctx, tenantID, query)
}

// retentionServiceWithMetrics decorates RetentionService with metrics instrumentation.
type retentionServiceWithMetrics struct {
	next    RetentionService
	metrics metrics.BusinessMetrics
}

// NewRetentionServiceWithMetrics wraps a RetentionService with metrics recording.
func NewRetentionServiceWithMetrics(service RetentionService, m metrics.BusinessMetrics) RetentionService {
	return &retentionServiceWithMetrics{next: service, metrics: m}
}

func (s *retentionServiceWithMetrics) SetRetentionPolicy(
	ctx context.Context,
	tenantID, actor string,
	logID uuid.UUID,
	period time.Duration,
) (policy *logsDomain.RetentionPolicy, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, retentionMetricsDomain, "set_policy", start, err)
	}(time.Now())
	return s.next.SetRetentionPolicy(ctx, tenantID, actor, logID, period)
}

func (s *retentionServiceWithMetrics) GetRetentionPolicy(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) (policy *logsDomain.RetentionPolicy, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, retentionMetricsDomain, "get_policy", start, err)
	}(time.Now())
	return s.next.GetRetentionPolicy(ctx, tenantID, logID)
}

func (s *retentionServiceWithMetrics) DeleteRetentionPolicy(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
) (err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, retentionMetricsDomain, "delete_policy", start, err)
	}(time.Now())
	return s.next.DeleteRetentionPolicy(ctx, tenantID, logID)
}

func (s *retentionServiceWithMetrics) ListRetentionPolicies(
	ctx context.Context,
	tenantID string,
) (policies []*logsDomain.RetentionPolicy, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, retentionMetricsDomain, "list_policies", start, err)
	}(time.Now())
	return s.next.ListRetentionPolicies(ctx, tenantID)
}

func (s *retentionServiceWithMetrics) CountExpiredEntries(
	ctx context.Context,
	tenantID string,
	logID uuid.UUID,
	now time.Time,
) (count int64, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, retentionMetricsDomain, "count_expired", start, err)
	}(time.Now())
	return s.next.CountExpiredEntries(ctx, tenantID, logID, now)
}

func (s *retentionServiceWithMetrics) Enforce(
	ctx context.Context,
	now time.Time,
) (report *logsDomain.RetentionReport, err error) {
	defer func(start time.Time) {
		metrics.Observe(ctx, s.metrics, retentionMetricsDomain, "enforce", start, err)
	}(time.Now())
	return s.next.Enforce(ctx, now)
}
