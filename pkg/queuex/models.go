package queuex

import (
	"encoding/json"
	"time"
)

// JobKind identifies the variant of work a job carries. The set is closed;
// adding a kind means touching the encoder dispatch in ledgerx too.
type JobKind string

const (
	JobKindWork     JobKind = "work"
	JobKindApproval JobKind = "approval"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindWork, JobKindApproval:
		return true
	}
	return false
}

// Job is a durable write-intent: one pending ledger commit recorded while the
// device may be offline. Once Synced is true the job is immutable; before
// that, only Attempts, LastError, Synced and TxRef may change.
type Job struct {
	ID          string            `json:"id"`
	Kind        JobKind           `json:"kind"`
	Payload     json.RawMessage   `json:"payload"`
	Meta        map[string]string `json:"meta,omitempty"`
	Synced      bool              `json:"synced"`
	TxRef       string            `json:"tx_ref,omitempty"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Exhausted reports whether the job has used up its retry budget without
// syncing. Exhausted jobs are kept for user-visible error surfacing and are
// never retried automatically.
func (j *Job) Exhausted() bool {
	return !j.Synced && j.Attempts >= j.MaxAttempts
}

// WorkPayload is the payload for JobKindWork: a field work submission with
// photo attachments already uploaded to the media store.
type WorkPayload struct {
	GardenAddress string   `json:"garden_address"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	SchemaID      string   `json:"schema_id"`
	MediaPaths    []string `json:"media_paths,omitempty"`
	ContributorID string   `json:"contributor_id"`
}

// ApprovalPayload is the payload for JobKindApproval: an approval or
// rejection of previously submitted work.
type ApprovalPayload struct {
	WorkID   string `json:"work_id"`
	Approver string `json:"approver"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Stats summarises the queue for the UI.
type Stats struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// Filter selects jobs on List. A nil Synced matches every job.
type Filter struct {
	Synced *bool
}
