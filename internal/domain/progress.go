package domain

import "time"

// SyncState enumerates the overall run state reported by the status object.
type SyncState string

const (
	StateIdle    SyncState = "idle"
	StateRunning SyncState = "running"
	StateStopped SyncState = "stopped"
	StateFailed  SyncState = "failed"
	StateDone    SyncState = "completed"
)

// SyncStatusSnapshot is the user-visible status object (spec §7):
// {state, stage, processed, total, last_error?, last_sync_time, memory_usage}.
type SyncStatusSnapshot struct {
	State         SyncState `json:"state"`
	Stage         int       `json:"stage"`
	TotalStages   int       `json:"total_stages"`
	Message       string    `json:"message,omitempty"`
	Processed     int       `json:"processed"`
	Total         int       `json:"total"`
	LastError     string    `json:"last_error,omitempty"`
	LastSyncTime  time.Time `json:"last_sync_time"`
	MemoryUsage   uint64    `json:"memory_usage"`
	SubscribersSynced int   `json:"subscribers_synced"`
}

// ProgressCheckpoint is a resumable snapshot of sync pipeline position.
// An empty/zero Campaign+Group with Stage set means "resume stage N from
// page NextPage with no entity scoping" (used by stages 4 and 5).
type ProgressCheckpoint struct {
	Stage    int    `json:"stage"`
	Campaign string `json:"campaign,omitempty"`
	Group    string `json:"group,omitempty"`
	NextPage int    `json:"next_page"`
	Cursor   string `json:"cursor,omitempty"`
	Retries  int    `json:"retries"`
}

// ErrorQueueEntry is one bounded-FIFO entry recording a failed work item.
type ErrorQueueEntry struct {
	Kind        string    `json:"kind"`
	Reference   string    `json:"reference"`
	Message     string    `json:"message"`
	RetryCount  int       `json:"retry_count"`
	LastAttempt time.Time `json:"last_attempt"`
}
