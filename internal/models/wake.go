package models

import "time"

// WakeSignal is what the orchestrator reports back to the chain scheduler.
type WakeSignal string

const (
	// WakeSignalRest means the agent explicitly ended its wake; the chain stops.
	WakeSignalRest WakeSignal = "rest"

	// WakeSignalContinue means the agent ran out of tool budget mid-task;
	// the scheduler should enqueue a continuation.
	WakeSignalContinue WakeSignal = "continue"

	// WakeSignalSkipped means a guard short-circuited the attempt.
	WakeSignalSkipped WakeSignal = "skipped"

	// WakeSignalError means the attempt failed; the chain stops.
	WakeSignalError WakeSignal = "error"
)

// WakeResult is the outcome of a single orchestrated wake attempt.
type WakeResult struct {
	Signal      WakeSignal `json:"signal"`
	ChainDepth  int        `json:"chain_depth,omitempty"`
	TaskContext string     `json:"task_context,omitempty"`
	EndSignal   EndSignal  `json:"end_signal,omitempty"`
	SkipReason  SkipReason `json:"reason,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// WakeJobStatus is the lifecycle status of a queued wake job.
type WakeJobStatus string

const (
	WakeJobStatusPending   WakeJobStatus = "pending"
	WakeJobStatusRunning   WakeJobStatus = "running"
	WakeJobStatusCompleted WakeJobStatus = "completed"
	WakeJobStatusFailed    WakeJobStatus = "failed"
)

// WakeJob is one unit of work on the wake queue: either a scheduled wake or a
// chain continuation. Running jobs are never redelivered; a worker crash is
// recovered by the sweeper on the entity's next attempt, not by job retry.
type WakeJob struct {
	ID          string        `json:"id"`
	EntityID    string        `json:"entity_id"`
	EntityName  string        `json:"entity_name"`
	WakeType    WakeType      `json:"wake_type"`
	ChainDepth  int           `json:"chain_depth"`
	TaskContext string        `json:"task_context,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	Status      WakeJobStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	ClaimedAt   *time.Time    `json:"claimed_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Validate checks if the wake job is valid.
func (j *WakeJob) Validate() error {
	validation := &ValidationErrors{}
	if j.EntityID == "" {
		validation.Add("entity_id", ErrInvalidJobEntity)
	}
	if !j.WakeType.Valid() {
		validation.Add("wake_type", ErrInvalidWakeType)
	}
	if j.ChainDepth < 0 {
		validation.Add("chain_depth", ErrNegativeChainDepth)
	}
	switch j.Status {
	case "", WakeJobStatusPending, WakeJobStatusRunning, WakeJobStatusCompleted, WakeJobStatusFailed:
	default:
		validation.Add("status", ErrInvalidJobStatus)
	}
	return validation.Err()
}
