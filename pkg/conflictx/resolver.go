package conflictx

import (
	"context"
	"fmt"

	"github.com/gardenledger/fieldsync/pkg/attestx"
	"github.com/gardenledger/fieldsync/pkg/dedupx"
	"github.com/gardenledger/fieldsync/pkg/eventx"
	"github.com/gardenledger/fieldsync/pkg/logx"
	"github.com/gardenledger/fieldsync/pkg/queuex"
)

// Resolver classifies divergence between locally-queued jobs and remote
// system state before they are committed, and applies resolution strategies.
//
// Detection is fail-open like the checks it builds on: an individual check
// failing (network, malformed response) yields no conflict for that check and
// never aborts detection for the item or the batch.
type Resolver struct {
	checker attestx.Checker
	dedup   *dedupx.Manager
	queue   *queuex.Queue
	bus     *eventx.Bus
}

// NewResolver creates a conflict resolver.
func NewResolver(checker attestx.Checker, dedup *dedupx.Manager, queue *queuex.Queue, bus *eventx.Bus) *Resolver {
	return &Resolver{
		checker: checker,
		dedup:   dedup,
		queue:   queue,
		bus:     bus,
	}
}

// DetectConflicts runs the detection pass over pending jobs. Checks per item
// are independent and order-insensitive; one item may yield several conflicts.
func (r *Resolver) DetectConflicts(ctx context.Context, jobs []queuex.Job) []Conflict {
	var conflicts []Conflict

	for i := range jobs {
		for _, c := range r.detectForJob(ctx, &jobs[i]) {
			conflicts = append(conflicts, c)
			r.bus.Publish(eventx.TopicConflictDetected, eventx.ConflictEvent{
				WorkID: c.WorkID,
				Type:   string(c.Type),
			})
		}
	}
	return conflicts
}

func (r *Resolver) detectForJob(ctx context.Context, job *queuex.Job) []Conflict {
	if job.Kind != queuex.JobKindWork {
		// Approvals reference already-committed work; the duplicate and
		// garden checks below only apply to work submissions.
		return nil
	}

	payload, err := queuex.DecodeWorkPayload(job)
	if err != nil {
		logx.WithError(err).WithField("job_id", job.ID).
			Warn("conflictx: undecodable payload, skipping detection")
		return nil
	}

	var conflicts []Conflict

	if c := r.checkAlreadySubmitted(ctx, job, payload); c != nil {
		conflicts = append(conflicts, *c)
	}
	if c := r.checkSchemaMismatch(ctx, job, payload); c != nil {
		conflicts = append(conflicts, *c)
	}
	if c := r.checkGardenChanged(ctx, job, payload); c != nil {
		conflicts = append(conflicts, *c)
	}
	return conflicts
}

func (r *Resolver) checkAlreadySubmitted(ctx context.Context, job *queuex.Job, payload *queuex.WorkPayload) *Conflict {
	if r.checker == nil {
		return nil
	}

	exists, remote := r.checker.CheckDuplicate(ctx, r.dedup.ContentHash(payload))
	if !exists {
		return nil
	}

	c := &Conflict{
		WorkID:         job.ID,
		Type:           TypeAlreadySubmitted,
		Local:          payload,
		Description:    "identical work already committed from another device",
		AutoResolvable: true,
	}
	if remote != nil {
		c.Remote = remote
		c.Description = fmt.Sprintf("identical work already committed as %s", remote.ID)
	}
	return c
}

func (r *Resolver) checkSchemaMismatch(ctx context.Context, job *queuex.Job, payload *queuex.WorkPayload) *Conflict {
	if r.checker == nil || payload.SchemaID == "" {
		return nil
	}

	current, ok := r.checker.CurrentSchema(ctx, string(job.Kind))
	if !ok || current == payload.SchemaID {
		return nil
	}

	// Automatic transformation risks data loss; a human decides.
	return &Conflict{
		WorkID: job.ID,
		Type:   TypeSchemaMismatch,
		Local:  payload,
		Description: fmt.Sprintf("work uses schema %s but the current schema is %s",
			payload.SchemaID, current),
		AutoResolvable: false,
	}
}

func (r *Resolver) checkGardenChanged(ctx context.Context, job *queuex.Job, payload *queuex.WorkPayload) *Conflict {
	if r.checker == nil || payload.GardenAddress == "" {
		return nil
	}

	status, ok := r.checker.GardenStatus(ctx, payload.GardenAddress)
	if !ok || (!status.IsArchived && !status.IsInactive) {
		return nil
	}

	state := "inactive"
	if status.IsArchived {
		state = "archived"
	}
	return &Conflict{
		WorkID:         job.ID,
		Type:           TypeGardenChanged,
		Local:          payload,
		Description:    fmt.Sprintf("target garden %s is %s", payload.GardenAddress, state),
		AutoResolvable: false,
	}
}

// ResolveConflict applies a strategy to a detected conflict. It always
// settles for a well-formed conflict record; unknown strategies and unknown
// merge types default to keeping local data.
func (r *Resolver) ResolveConflict(ctx context.Context, conflict Conflict, strategy Strategy) {
	switch strategy {
	case StrategyKeepLocal:
		// Proceed with normal sync as if no conflict existed.

	case StrategyKeepRemote:
		r.adoptRemote(ctx, conflict)

	case StrategyMerge:
		r.merge(ctx, conflict)

	case StrategySkip:
		r.queue.MarkJobSkipped(ctx, conflict.WorkID, string(conflict.Type))

	default:
		logx.WithField("strategy", string(strategy)).
			Warnf("conflictx: unknown strategy for %s, keeping local data", conflict.WorkID)
	}
}

// adoptRemote marks the local job synced without transmitting it. The remote
// copy is the truth; the local one just needs to stop being pending.
func (r *Resolver) adoptRemote(ctx context.Context, conflict Conflict) {
	txRef := ""
	if remote, ok := conflict.Remote.(*attestx.RemoteWork); ok && remote != nil {
		txRef = remote.TxRef
	}
	r.queue.MarkJobSynced(ctx, conflict.WorkID, txRef)
}

func (r *Resolver) merge(ctx context.Context, conflict Conflict) {
	switch conflict.Type {
	case TypeAlreadySubmitted:
		// The local copy is a straight duplicate: discard it in favour of
		// the remote record.
		r.adoptRemote(ctx, conflict)

	case TypeDataModified:
		r.mergeDataModified(ctx, conflict)

	default:
		logx.WithField("type", string(conflict.Type)).
			Debugf("conflictx: merge not applicable for %s, keeping local data", conflict.WorkID)
	}
}

// mergeDataModified merges non-conflicting fields. Queued payloads are
// immutable, so the merge rule for work items is: local non-empty fields win
// and the job proceeds through normal sync; empty local fields adopt the
// remote value in the conflict record handed back to the caller.
func (r *Resolver) mergeDataModified(_ context.Context, conflict Conflict) {
	local, lok := conflict.Local.(*queuex.WorkPayload)
	remote, rok := conflict.Remote.(*attestx.RemoteWork)
	if !lok || !rok || remote == nil {
		return
	}

	if local.Title == "" {
		local.Title = remote.Title
	}
	if local.GardenAddress == "" {
		local.GardenAddress = remote.GardenAddress
	}
}
