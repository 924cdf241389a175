package queuex

import "context"

// Store is the durable persistence port for jobs. One record per job keyed by
// ID, with the synced flag indexable for filtered scans. Implementations live
// in queuexredis, queuexpg and queuexmemory.
type Store interface {
	// Put persists a new job.
	Put(ctx context.Context, job Job) error

	// Get returns a job by ID, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// List returns jobs matching the filter, oldest first.
	List(ctx context.Context, filter Filter) ([]Job, error)

	// Update overwrites an existing job record, or ErrJobNotFound.
	Update(ctx context.Context, job Job) error

	// Delete removes a job by ID. Deleting a missing job is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteSynced bulk-deletes terminal successful jobs and returns how
	// many were removed.
	DeleteSynced(ctx context.Context) (int, error)
}
