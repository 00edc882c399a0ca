package models

import "time"

// WakeType distinguishes the first wake of a chain from its continuations.
type WakeType string

const (
	WakeTypeScheduled WakeType = "scheduled"
	WakeTypeContinue  WakeType = "continue"
)

// Valid reports whether the wake type is a known value.
func (w WakeType) Valid() bool {
	return w == WakeTypeScheduled || w == WakeTypeContinue
}

// PulseStatus is the lifecycle status of a wake attempt.
type PulseStatus string

const (
	PulseStatusPending    PulseStatus = "pending"
	PulseStatusInProgress PulseStatus = "in_progress"
	PulseStatusCompleted  PulseStatus = "completed"
	PulseStatusFailed     PulseStatus = "failed"
	PulseStatusSkipped    PulseStatus = "skipped"
)

// Terminal reports whether the status is a terminal state.
func (s PulseStatus) Terminal() bool {
	switch s {
	case PulseStatusCompleted, PulseStatusFailed, PulseStatusSkipped:
		return true
	}
	return false
}

// SkipReason explains why a wake attempt was skipped before invoking the agent.
type SkipReason string

const (
	SkipReasonNone               SkipReason = ""
	SkipReasonActiveConversation SkipReason = "active_conversation"
	SkipReasonBudgetExhausted    SkipReason = "budget_exhausted"
	SkipReasonOutsideActiveHours SkipReason = "outside_active_hours"
	SkipReasonMaxChainDepth      SkipReason = "max_chain_depth"
)

// EndSignal records how a wake attempt ended.
type EndSignal string

const (
	EndSignalNone          EndSignal = ""
	EndSignalRest          EndSignal = "rest"
	EndSignalToolLimit     EndSignal = "tool_limit"
	EndSignalError         EndSignal = "error"
	EndSignalCrashRecovery EndSignal = "crash_recovery"
)

// PulseLog is one durable record per wake attempt. Created in_progress at the
// start of an attempt; receives exactly one terminal update from the
// orchestrator, or a crash_recovery reclassification from the sweeper.
// Settled entries are eventually pruned by the retention service.
type PulseLog struct {
	ID          string      `json:"id"`
	EntityID    string      `json:"entity_id"`
	EntityName  string      `json:"entity_name"`
	WakeType    WakeType    `json:"wake_type"`
	Status      PulseStatus `json:"status"`
	SkipReason  SkipReason  `json:"skip_reason,omitempty"`
	ChainDepth  int         `json:"chain_depth"`
	EndSignal   EndSignal   `json:"end_signal,omitempty"`
	TaskContext string      `json:"task_context,omitempty"`
	Reflection  string      `json:"reflection,omitempty"`
	TokensUsed  int         `json:"tokens_used"`
	ToolCalls   int         `json:"tool_calls"`
	Error       string      `json:"error,omitempty"`
	DurationMs  int64       `json:"duration_ms"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Validate checks if the pulse log entry is valid.
func (p *PulseLog) Validate() error {
	validation := &ValidationErrors{}
	if p.EntityID == "" {
		validation.Add("entity_id", ErrInvalidLogEntity)
	}
	if !p.WakeType.Valid() {
		validation.Add("wake_type", ErrInvalidWakeType)
	}
	if p.ChainDepth < 0 {
		validation.Add("chain_depth", ErrNegativeChainDepth)
	}

	switch p.Status {
	case PulseStatusPending, PulseStatusInProgress, PulseStatusCompleted, PulseStatusFailed, PulseStatusSkipped:
	default:
		validation.Add("status", ErrInvalidLogStatus)
	}

	// Illegal state combinations: a skipped entry carries a reason but no end
	// signal; a non-skipped entry never carries a skip reason.
	if p.Status == PulseStatusSkipped && p.EndSignal != EndSignalNone {
		validation.Add("end_signal", ErrInvalidEndSignal)
	}
	if p.Status != PulseStatusSkipped && p.SkipReason != SkipReasonNone {
		validation.Add("skip_reason", ErrInvalidSkipReason)
	}

	return validation.Err()
}
