package queuex

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/gardenledger/fieldsync/pkg/errx"
	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/logx"
)

// DefaultMaxAttempts is the retry budget given to new jobs.
const DefaultMaxAttempts = 3

// Queue is the single source of truth for pending/synced/failed job state.
// All mutation of persisted jobs goes through its narrow API.
type Queue struct {
	store       Store
	bus         *eventx.Bus
	maxAttempts int
	now         func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxAttempts sets the retry budget for newly added jobs.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a queue over the given store, emitting lifecycle events on bus.
func NewQueue(store Store, bus *eventx.Bus, options ...Option) *Queue {
	q := &Queue{
		store:       store,
		bus:         bus,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, o := range options {
		o(q)
	}
	return q
}

// AddJob persists a new job with attempts=0, synced=false and returns its id.
// It performs no network I/O beyond the store write; syncing happens later.
func (q *Queue) AddJob(ctx context.Context, kind JobKind, payload any, meta map[string]string) (string, error) {
	if !kind.Valid() {
		return "", queuexErrors.New(ErrInvalidKind).WithDetail("kind", string(kind))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", queuexErrors.NewWithCause(ErrInvalidPayload, err)
	}

	now := q.now().UTC()
	job := Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		Payload:     raw,
		Meta:        meta,
		Attempts:    0,
		MaxAttempts: q.maxAttempts,
		Synced:      false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := q.store.Put(ctx, job); err != nil {
		return "", errx.Wrap(err, "failed to persist job", errx.TypeExternal)
	}

	q.bus.Publish(eventx.TopicJobAdded, eventx.JobEvent{JobID: job.ID, Kind: string(kind)})
	return job.ID, nil
}

// GetJob returns a job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, id)
}

// GetJobs returns jobs matching the filter, oldest first.
func (q *Queue) GetJobs(ctx context.Context, filter Filter) ([]Job, error) {
	return q.store.List(ctx, filter)
}

// MarkJobSynced sets synced=true and records the ledger reference. A missing
// job is a logged no-op: the store may have been cleaned up independently of
// in-flight references.
func (q *Queue) MarkJobSynced(ctx context.Context, id, txRef string) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		logx.WithError(err).WithField("job_id", id).
			Warn("queuex: cannot mark missing job synced")
		return
	}

	job.Synced = true
	job.TxRef = txRef
	job.LastError = ""
	job.UpdatedAt = q.now().UTC()

	if err := q.store.Update(ctx, *job); err != nil {
		logx.WithError(err).WithField("job_id", id).
			Error("queuex: failed to mark job synced")
		return
	}

	q.bus.Publish(eventx.TopicJobSynced, eventx.JobEvent{JobID: id, Kind: string(job.Kind), TxRef: txRef})
}

// MarkJobFailed increments attempts and records the last error. It never sets
// synced. A missing job is a logged no-op.
func (q *Queue) MarkJobFailed(ctx context.Context, id, errMsg string) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		logx.WithError(err).WithField("job_id", id).
			Warn("queuex: cannot mark missing job failed")
		return
	}

	job.Attempts++
	job.LastError = errMsg
	job.UpdatedAt = q.now().UTC()

	if err := q.store.Update(ctx, *job); err != nil {
		logx.WithError(err).WithField("job_id", id).
			Error("queuex: failed to record job failure")
		return
	}

	q.bus.Publish(eventx.TopicJobFailed, eventx.JobEvent{JobID: id, Kind: string(job.Kind), Error: errMsg})
}

// MarkJobSkipped pushes a job past its retry budget with a sentinel error so
// it stays out of future flushes but remains in the store for audit. Used by
// the conflict resolver's skip strategy.
func (q *Queue) MarkJobSkipped(ctx context.Context, id, reason string) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		logx.WithError(err).WithField("job_id", id).
			Warn("queuex: cannot skip missing job")
		return
	}

	if job.Attempts < job.MaxAttempts {
		job.Attempts = job.MaxAttempts
	}
	job.LastError = "skipped: " + reason
	job.UpdatedAt = q.now().UTC()

	if err := q.store.Update(ctx, *job); err != nil {
		logx.WithError(err).WithField("job_id", id).
			Error("queuex: failed to skip job")
	}
}

// ClearSyncedJobs bulk-deletes terminal successful jobs. Used by the storage
// manager under quota pressure.
func (q *Queue) ClearSyncedJobs(ctx context.Context) (int, error) {
	removed, err := q.store.DeleteSynced(ctx)
	if err != nil {
		return 0, errx.Wrap(err, "failed to clear synced jobs", errx.TypeExternal)
	}
	if removed > 0 {
		logx.Infof("queuex: cleared %d synced jobs", removed)
	}
	return removed, nil
}

// Stats counts pending, synced and permanently failed jobs.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	jobs, err := q.store.List(ctx, Filter{})
	if err != nil {
		return Stats{}, errx.Wrap(err, "failed to load jobs for stats", errx.TypeExternal)
	}

	var s Stats
	for i := range jobs {
		switch {
		case jobs[i].Synced:
			s.Synced++
		case jobs[i].Exhausted():
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s, nil
}

// DecodeWorkPayload unmarshals a work job's payload.
func DecodeWorkPayload(job *Job) (*WorkPayload, error) {
	var p WorkPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, queuexErrors.NewWithCause(ErrInvalidPayload, err).WithDetail("job_id", job.ID)
	}
	return &p, nil
}

// DecodeApprovalPayload unmarshals an approval job's payload.
func DecodeApprovalPayload(job *Job) (*ApprovalPayload, error) {
	var p ApprovalPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, queuexErrors.NewWithCause(ErrInvalidPayload, err).WithDetail("job_id", job.ID)
	}
	return &p, nil
}
