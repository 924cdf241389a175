package conflictx

// ConflictType classifies the divergence between local intent and remote truth.
type ConflictType string

const (
	// TypeAlreadySubmitted means another device already committed this
	// content; the local copy is a duplicate.
	TypeAlreadySubmitted ConflictType = "already_submitted"

	// TypeSchemaMismatch means the work references a stale schema version.
	TypeSchemaMismatch ConflictType = "schema_mismatch"

	// TypeGardenChanged means the target garden is archived or inactive.
	TypeGardenChanged ConflictType = "garden_changed"

	// TypeDataModified means remote and local copies diverge field-wise.
	TypeDataModified ConflictType = "data_modified"
)

// Strategy is how a detected conflict gets settled.
type Strategy string

const (
	// StrategyKeepLocal proceeds with normal sync as if no conflict existed.
	StrategyKeepLocal Strategy = "keep_local"

	// StrategyKeepRemote marks the local job synced without transmitting it.
	StrategyKeepRemote Strategy = "keep_remote"

	// StrategyMerge dispatches on the conflict type; see ResolveConflict.
	StrategyMerge Strategy = "merge"

	// StrategySkip retires the job from retry attempts but keeps it for audit.
	StrategySkip Strategy = "skip"
)

// Conflict is one detected mismatch, consumed and discarded once a strategy
// is applied.
type Conflict struct {
	WorkID         string       `json:"work_id"`
	Type           ConflictType `json:"type"`
	Local          any          `json:"local_work"`
	Remote         any          `json:"remote_work,omitempty"`
	Description    string       `json:"description"`
	AutoResolvable bool         `json:"auto_resolvable"`
}
