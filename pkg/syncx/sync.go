package syncx

import (
	"context"
	"sync"
	"time"

	"github.com/gardenledger/fieldsync/pkg/asyncx"
	"github.com/gardenledger/fieldsync/pkg/errx"
	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/ledgerx"
	"github.com/gardenledger/fieldsync/pkg/logx"
	"github.com/gardenledger/fieldsync/pkg/ptrx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
	"github.com/gardenledger/fieldsync/pkg/retryx"
)

const (
	// DefaultInterval is the background flush cadence.
	DefaultInterval = 30 * time.Second

	// DefaultOnlineDebounce coalesces connectivity flaps into one flush.
	DefaultOnlineDebounce = 2 * time.Second

	// DefaultFlushTimeout bounds a single triggered flush pass.
	DefaultFlushTimeout = 2 * time.Minute
)

// Manager drives the reconciliation loop: it decides which pending jobs are
// eligible right now, pushes them through the ledger processor, and feeds
// the outcomes back into the retry schedule.
type Manager struct {
	queue     *queuex.Queue
	processor *ledgerx.Processor
	retry     *retryx.Manager
	bus       *eventx.Bus

	onlineFlush func()

	mu       sync.Mutex
	inflight *asyncx.Future[ledgerx.BatchResult]
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithOnlineDebounce sets the quiet period for connectivity-triggered flushes.
func WithOnlineDebounce(wait time.Duration) ManagerOption {
	return func(m *Manager) {
		m.onlineFlush = asyncx.Debounced(wait, m.triggerFlush)
	}
}

// NewManager creates a sync manager.
func NewManager(queue *queuex.Queue, processor *ledgerx.Processor, retry *retryx.Manager, bus *eventx.Bus, options ...ManagerOption) *Manager {
	m := &Manager{
		queue:     queue,
		processor: processor,
		retry:     retry,
		bus:       bus,
	}
	m.onlineFlush = asyncx.Debounced(DefaultOnlineDebounce, m.triggerFlush)
	for _, o := range options {
		o(m)
	}
	return m
}

// Flush runs one reconciliation pass and returns its counts. Concurrent
// callers share a single in-flight pass: whoever arrives while one is
// running gets that pass's settled result instead of starting another.
//
// Per-job failures are counted, never returned as errors; only a queue
// store failure while loading jobs produces an error.
func (m *Manager) Flush(ctx context.Context) (ledgerx.BatchResult, error) {
	m.mu.Lock()
	if m.inflight != nil {
		f := m.inflight
		m.mu.Unlock()
		return f.Await()
	}

	f := asyncx.Run(func() (ledgerx.BatchResult, error) {
		defer func() {
			m.mu.Lock()
			m.inflight = nil
			m.mu.Unlock()
		}()
		return m.flushOnce(ctx)
	})
	m.inflight = f
	m.mu.Unlock()

	return f.Await()
}

func (m *Manager) flushOnce(ctx context.Context) (ledgerx.BatchResult, error) {
	jobs, err := m.queue.GetJobs(ctx, queuex.Filter{Synced: ptrx.Ptr(false)})
	if err != nil {
		return ledgerx.BatchResult{}, errx.Wrap(err, "failed to load pending jobs", errx.TypeExternal)
	}

	m.bus.Publish(eventx.TopicSyncStarted, eventx.SyncEvent{})

	var batch ledgerx.BatchResult

	eligible := make([]queuex.Job, 0, len(jobs))
	for i := range jobs {
		if jobs[i].Exhausted() || !m.retry.ShouldRetry(jobs[i].ID) {
			batch.Skipped++
			continue
		}
		eligible = append(eligible, jobs[i])
	}

	if len(eligible) > 0 {
		result := m.processor.ProcessBatch(ctx, eligible)
		batch.Processed = result.Processed
		batch.Failed = result.Failed
		batch.Skipped += result.Skipped
		batch.Results = result.Results

		for _, r := range result.Results {
			if !r.Attempted {
				continue
			}
			m.retry.RecordAttempt(r.JobID, r.Success)
		}
	}

	m.bus.Publish(eventx.TopicSyncCompleted, eventx.SyncEvent{
		Processed: batch.Processed,
		Failed:    batch.Failed,
		Skipped:   batch.Skipped,
	})

	if batch.Processed > 0 || batch.Failed > 0 {
		logx.WithFields(logx.Fields{
			"processed": batch.Processed,
			"failed":    batch.Failed,
			"skipped":   batch.Skipped,
		}).Info("syncx: flush pass completed")
	}
	return batch, nil
}

// OnOnline signals that connectivity came back. Flushes are debounced so a
// flapping link produces a single pass once it settles.
func (m *Manager) OnOnline() {
	m.onlineFlush()
}

func (m *Manager) triggerFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultFlushTimeout)
	defer cancel()
	if _, err := m.Flush(ctx); err != nil {
		logx.WithError(err).Warn("syncx: connectivity-triggered flush failed")
	}
}

// Run flushes on a fixed interval until ctx is cancelled. Intended to run in
// its own goroutine from the composition root.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Flush(ctx); err != nil {
				logx.WithError(err).Warn("syncx: periodic flush failed")
			}
		}
	}
}
