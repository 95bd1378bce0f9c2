// Package rotation runs the client half of a KEK rotation job: every pending
// log is moved to the new version concurrently, retried with exponential
// backoff, and its outcome reported to the server item by item so an
// interrupted job can be resumed where it stopped.
package rotation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	"github.com/allisson/logvault/internal/errors"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

const (
	defaultConcurrency     = 4
	defaultMaxRetries      = 3
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Reporter records the outcome of one item. The kek use case satisfies it.
type Reporter interface {
	ReportRotationItem(
		ctx context.Context,
		tenantID string,
		jobID, logID uuid.UUID,
		status kekDomain.ItemStatus,
		lastError string,
	) (*kekDomain.RotationItem, error)
}

// ProcessFunc moves one log of the job to the new version.
type ProcessFunc func(ctx context.Context, item *kekDomain.RotationItem) error

// ItemFailure is an item that still failed after its retries.
type ItemFailure struct {
	LogID uuid.UUID
	Err   error
}

// Report summarizes one run.
type Report struct {
	Done   []uuid.UUID
	Failed []ItemFailure
}

// Runner processes rotation items.
type Runner struct {
	reporter        Reporter
	logger          *slog.Logger
	concurrency     int
	maxRetries      int
	initialInterval time.Duration
	maxInterval     time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets how many items are processed at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithMaxRetries sets how often a failing item is retried.
func WithMaxRetries(n int) Option {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithBackOff sets the first and the largest wait between retries.
func WithBackOff(initial, max time.Duration) Option {
	return func(r *Runner) {
		r.initialInterval = initial
		r.maxInterval = max
	}
}

// NewRunner creates a Runner reporting to reporter.
func NewRunner(reporter Reporter, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		reporter:        reporter,
		logger:          logger,
		concurrency:     defaultConcurrency,
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsPermanent reports whether retrying err cannot help: the data does not
// open under the key it claims, or the user may not use the key.
func IsPermanent(err error) bool {
	return errors.Is(err, cryptoDomain.ErrIntegrity) ||
		errors.Is(err, cryptoDomain.ErrKeyMismatch) ||
		errors.Is(err, kekDomain.ErrAccessDenied)
}

// Run processes items of job. A failing item never stops the others; its
// error is reported and returned in the report. Run returns an error only
// when ctx is cancelled.
func (r *Runner) Run(
	ctx context.Context,
	job *kekDomain.RotationJob,
	items []*kekDomain.RotationItem,
	process ProcessFunc,
) (*Report, error) {
	var (
		mu     sync.Mutex
		report = &Report{}
	)

	g := &errgroup.Group{}
	g.SetLimit(r.concurrency)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := r.processItem(ctx, item, process)
			if ctx.Err() != nil {
				// Left pending for the next run.
				return nil
			}

			status, lastError := kekDomain.ItemDone, ""
			if err != nil {
				status, lastError = kekDomain.ItemFailed, err.Error()
			}
			if _, reportErr := r.reporter.ReportRotationItem(
				ctx, job.TenantID, job.ID, item.LogID, status, lastError,
			); reportErr != nil && err == nil {
				err = reportErr
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("rotation item failed",
					slog.String("job_id", job.ID.String()),
					slog.String("log_id", item.LogID.String()),
					slog.Any("error", err),
				)
				report.Failed = append(report.Failed, ItemFailure{LogID: item.LogID, Err: err})
				return nil
			}
			report.Done = append(report.Done, item.LogID)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	r.logger.Info("rotation run finished",
		slog.String("job_id", job.ID.String()),
		slog.Int("done", len(report.Done)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (r *Runner) processItem(ctx context.Context, item *kekDomain.RotationItem, process ProcessFunc) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.maxInterval
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := process(ctx, item)
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.maxRetries)), ctx))
}
