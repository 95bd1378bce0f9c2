package rotation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	cryptoDomain "github.com/allisson/logvault/internal/crypto/domain"
	kekDomain "github.com/allisson/logvault/internal/kek/domain"
)

type reported struct {
	status    kekDomain.ItemStatus
	lastError string
}

// fakeReporter records the last outcome of every item.
type fakeReporter struct {
	mu    sync.Mutex
	items map[uuid.UUID]reported
	err   error
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{items: make(map[uuid.UUID]reported)}
}

func (f *fakeReporter) ReportRotationItem(
	_ context.Context,
	_ string,
	jobID, logID uuid.UUID,
	status kekDomain.ItemStatus,
	lastError string,
) (*kekDomain.RotationItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[logID] = reported{status: status, lastError: lastError}
	return &kekDomain.RotationItem{JobID: jobID, LogID: logID, Status: status, LastError: lastError}, nil
}

func newJob(n int) (*kekDomain.RotationJob, []*kekDomain.RotationItem) {
	job := &kekDomain.RotationJob{ID: uuid.New(), TenantID: "acme", Status: kekDomain.JobRunning, TotalItems: n}
	items := make([]*kekDomain.RotationItem, n)
	for i := range items {
		items[i] = &kekDomain.RotationItem{JobID: job.ID, LogID: uuid.New(), Status: kekDomain.ItemPending}
	}
	return job, items
}

func newTestRunner(reporter Reporter, opts ...Option) *Runner {
	opts = append([]Option{WithBackOff(time.Millisecond, 2*time.Millisecond)}, opts...)
	return NewRunner(reporter, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestRunner_Run(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := context.Background()

	t.Run("Success_AllDone", func(t *testing.T) {
		reporter := newFakeReporter()
		job, items := newJob(10)

		var active, peak atomic.Int32
		report, err := newTestRunner(reporter, WithConcurrency(3)).Run(ctx, job, items,
			func(ctx context.Context, item *kekDomain.RotationItem) error {
				n := active.Add(1)
				defer active.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		require.NoError(t, err)

		assert.Len(t, report.Done, 10)
		assert.Empty(t, report.Failed)
		assert.LessOrEqual(t, peak.Load(), int32(3))
		for _, item := range items {
			assert.Equal(t, kekDomain.ItemDone, reporter.items[item.LogID].status)
		}
	})

	t.Run("Success_RetriesTransientErrors", func(t *testing.T) {
		reporter := newFakeReporter()
		job, items := newJob(1)

		var calls atomic.Int32
		report, err := newTestRunner(reporter, WithMaxRetries(3)).Run(ctx, job, items,
			func(ctx context.Context, item *kekDomain.RotationItem) error {
				if calls.Add(1) < 3 {
					return errors.New("connection reset")
				}
				return nil
			})
		require.NoError(t, err)

		assert.Equal(t, int32(3), calls.Load())
		assert.Len(t, report.Done, 1)
	})

	t.Run("Error_FailureDoesNotStopSiblings", func(t *testing.T) {
		reporter := newFakeReporter()
		job, items := newJob(4)
		bad := items[1].LogID

		var badCalls atomic.Int32
		report, err := newTestRunner(reporter, WithMaxRetries(5)).Run(ctx, job, items,
			func(ctx context.Context, item *kekDomain.RotationItem) error {
				if item.LogID == bad {
					badCalls.Add(1)
					return cryptoDomain.ErrKeyMismatch
				}
				return nil
			})
		require.NoError(t, err)

		assert.Len(t, report.Done, 3)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, bad, report.Failed[0].LogID)
		assert.ErrorIs(t, report.Failed[0].Err, cryptoDomain.ErrKeyMismatch)
		assert.Equal(t, int32(1), badCalls.Load())
		assert.Equal(t, kekDomain.ItemFailed, reporter.items[bad].status)
		assert.Equal(t, cryptoDomain.ErrKeyMismatch.Error(), reporter.items[bad].lastError)
	})

	t.Run("Error_GivesUpAfterMaxRetries", func(t *testing.T) {
		reporter := newFakeReporter()
		job, items := newJob(1)

		var calls atomic.Int32
		report, err := newTestRunner(reporter, WithMaxRetries(2)).Run(ctx, job, items,
			func(ctx context.Context, item *kekDomain.RotationItem) error {
				calls.Add(1)
				return errors.New("store unavailable")
			})
		require.NoError(t, err)

		assert.Equal(t, int32(3), calls.Load())
		require.Len(t, report.Failed, 1)
		assert.Equal(t, kekDomain.ItemFailed, reporter.items[items[0].LogID].status)
	})

	t.Run("Error_ReportFails", func(t *testing.T) {
		reporter := newFakeReporter()
		reporter.err = errors.New("server down")
		job, items := newJob(2)

		report, err := newTestRunner(reporter).Run(ctx, job, items,
			func(ctx context.Context, item *kekDomain.RotationItem) error { return nil })
		require.NoError(t, err)
		assert.Empty(t, report.Done)
		assert.Len(t, report.Failed, 2)
	})

	t.Run("Error_Cancelled", func(t *testing.T) {
		reporter := newFakeReporter()
		job, items := newJob(5)
		cctx, cancel := context.WithCancel(ctx)

		report, err := newTestRunner(reporter, WithConcurrency(1)).Run(cctx, job, items,
			func(ctx context.Context, item *kekDomain.RotationItem) error {
				cancel()
				return nil
			})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, report.Done)
		assert.Empty(t, reporter.items)
	})
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(cryptoDomain.ErrIntegrity))
	assert.True(t, IsPermanent(cryptoDomain.ErrKeyMismatch))
	assert.True(t, IsPermanent(kekDomain.ErrAccessDenied))
	assert.False(t, IsPermanent(errors.New("timeout")))
	assert.False(t, IsPermanent(nil))
}
