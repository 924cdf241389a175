package eventx

import "time"

// Topic identifies what kind of event is being emitted. The set of topics is
// closed: components publish and subscribe only to the constants below.
type Topic string

const (
	// TopicJobAdded fires when a new job is persisted to the queue
	TopicJobAdded Topic = "job:added"

	// TopicJobSynced fires when a job is committed to the ledger
	TopicJobSynced Topic = "job:synced"

	// TopicJobFailed fires when a job attempt fails
	TopicJobFailed Topic = "job:failed"

	// TopicSyncStarted fires at the beginning of a flush pass
	TopicSyncStarted Topic = "queue:sync-started"

	// TopicSyncCompleted fires when a flush pass settles, with its counts
	TopicSyncCompleted Topic = "queue:sync-completed"

	// TopicCleanupCompleted fires after a storage cleanup pass
	TopicCleanupCompleted Topic = "storage:cleanup-completed"

	// TopicConflictDetected fires for each conflict found during detection
	TopicConflictDetected Topic = "conflict:detected"

	// TopicAlertRaised fires when an operator alert is sent
	TopicAlertRaised Topic = "alert:raised"
)

// Event is the structured payload delivered to every subscriber of a topic.
type Event struct {
	Topic Topic
	At    time.Time

	// Payload carries the topic-specific data:
	//   job:* topics        → JobEvent
	//   queue:sync-* topics → SyncEvent
	//   storage:* topics    → CleanupEvent
	//   conflict:* topics   → ConflictEvent
	//   alert:* topics      → AlertEvent
	Payload any
}

// JobEvent describes a job lifecycle change.
type JobEvent struct {
	JobID string
	Kind  string
	TxRef string
	Error string
}

// SyncEvent describes a flush pass.
type SyncEvent struct {
	Processed int
	Failed    int
	Skipped   int
}

// CleanupEvent describes a storage cleanup pass.
type CleanupEvent struct {
	ItemsRemoved int
	SpaceFreed   int64
}

// ConflictEvent describes a detected conflict.
type ConflictEvent struct {
	WorkID string
	Type   string
}

// AlertEvent describes a raised operator alert.
type AlertEvent struct {
	Severity string
	Subject  string
}

// Handler receives events as they happen.
type Handler func(event Event)
