package ledgerx

import (
	"context"

	"github.com/gardenledger/fieldsync/pkg/asyncx"
	"github.com/gardenledger/fieldsync/pkg/logx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// DefaultBatchWorkers bounds concurrent ledger submissions in a batch.
const DefaultBatchWorkers = 4

// Result is the outcome of a single processing attempt. Attempted reports
// whether the transport (or encoder) was actually tried: the precondition
// guards fail without attempting, and such failures must not feed backoff
// accounting.
type Result struct {
	JobID     string `json:"job_id"`
	Success   bool   `json:"success"`
	TxRef     string `json:"tx_ref,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempted bool   `json:"-"`
}

// BatchResult summarises a batch pass. Results holds the per-job outcomes
// for the jobs that were eligible (skipped jobs have no entry).
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Results   []Result `json:"-"`
}

// Processor submits queued jobs to the ledger and reconciles their queue
// state with the outcome. It owns the attempt accounting: a job's attempt
// counter moves only when the transport was actually tried.
type Processor struct {
	queue   *queuex.Queue
	client  Client
	workers int
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithBatchWorkers bounds batch concurrency.
func WithBatchWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewProcessor creates a processor. A nil client is legal and makes every
// processing attempt report the client as unavailable without consuming
// retry attempts; this is the offline/unauthenticated state.
func NewProcessor(queue *queuex.Queue, client Client, options ...ProcessorOption) *Processor {
	p := &Processor{
		queue:   queue,
		client:  client,
		workers: DefaultBatchWorkers,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// SetClient swaps the ledger client, e.g. after the device authenticates.
func (p *Processor) SetClient(client Client) { p.client = client }

// ProcessJob attempts to commit one job to the ledger.
//
// Preconditions checked in order: the job must exist and be unsynced, the
// client must be available, and the retry budget must not be exhausted.
// None of these guards consume an attempt; only an actual encode or
// transport failure does.
func (p *Processor) ProcessJob(ctx context.Context, id string) Result {
	job, err := p.queue.GetJob(ctx, id)
	if err != nil || job.Synced {
		return Result{JobID: id, Error: ErrJobNotProcessable.Message}
	}

	if p.client == nil {
		return Result{JobID: id, Error: ErrClientUnavailable.Message}
	}

	if job.Exhausted() {
		return Result{JobID: id, Error: ErrAttemptsExhausted.Message}
	}

	tx, err := EncodeTx(job)
	if err != nil {
		p.queue.MarkJobFailed(ctx, id, err.Error())
		return Result{JobID: id, Error: err.Error(), Attempted: true}
	}

	txRef, err := p.client.Execute(ctx, tx)
	if err != nil {
		logx.WithError(err).WithField("job_id", id).
			Warn("ledgerx: transaction failed")
		p.queue.MarkJobFailed(ctx, id, err.Error())
		return Result{JobID: id, Error: err.Error(), Attempted: true}
	}

	p.queue.MarkJobSynced(ctx, id, txRef)
	return Result{JobID: id, Success: true, TxRef: txRef, Attempted: true}
}

// ProcessBatch runs ProcessJob over the given jobs with bounded concurrency.
// Jobs that are already synced or out of attempts are counted as skipped
// without touching the transport. A failure of the batch driver itself (for
// example context cancellation) counts the unfinished jobs as failed.
func (p *Processor) ProcessBatch(ctx context.Context, jobs []queuex.Job) BatchResult {
	var batch BatchResult

	eligible := make([]string, 0, len(jobs))
	for i := range jobs {
		if jobs[i].Synced || jobs[i].Exhausted() {
			batch.Skipped++
			continue
		}
		eligible = append(eligible, jobs[i].ID)
	}

	results := asyncx.PoolSettled(ctx, p.workers, eligible,
		func(ctx context.Context, id string) (Result, error) {
			return p.ProcessJob(ctx, id), nil
		})

	for i, r := range results {
		switch {
		case r.Err != nil:
			batch.Failed++
			batch.Results = append(batch.Results, Result{JobID: eligible[i], Error: r.Err.Error()})
		case r.Value.Success:
			batch.Processed++
			batch.Results = append(batch.Results, r.Value)
		default:
			batch.Failed++
			batch.Results = append(batch.Results, r.Value)
		}
	}
	return batch
}
