package pulse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/agent"
	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/events"
	"github.com/Enntity/pulse/internal/logging"
	"github.com/Enntity/pulse/internal/models"
)

// AutoContextLimit bounds the auto task context derived from an invocation's
// textual result when the agent hits its tool limit without resting.
const AutoContextLimit = 2000

// WakeRequest describes one wake attempt for the orchestrator.
type WakeRequest struct {
	WakeType models.WakeType

	// ChainDepth is how many attempts preceded this one in the chain.
	ChainDepth int

	// TaskContext is an explicitly supplied carried note. Takes priority
	// over the persisted and crash-recovered sources.
	TaskContext string
}

// Orchestrator runs the state machine for a single wake attempt: guards,
// crash recovery, prompt assembly, the agent invocation, end-signal
// consumption, and budget/log bookkeeping. It never retries; continuation
// and retry policy belong to the chain scheduler.
type Orchestrator struct {
	logs      *db.PulseLogRepository
	ledger    *Ledger
	store     *ContextStore
	sweeper   *Sweeper
	invoker   agent.Invoker
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewOrchestrator wires the orchestrator. The publisher may be nil.
func NewOrchestrator(
	logs *db.PulseLogRepository,
	ledger *Ledger,
	store *ContextStore,
	sweeper *Sweeper,
	invoker agent.Invoker,
	publisher events.Publisher,
) *Orchestrator {
	return &Orchestrator{
		logs:      logs,
		ledger:    ledger,
		store:     store,
		sweeper:   sweeper,
		invoker:   invoker,
		publisher: publisher,
		logger:    logging.Component("orchestrator"),
	}
}

// RunWake executes one wake attempt for the entity and reports the outcome
// signal. Every attempt produces exactly one terminal log row; failures after
// log creation are recorded there and surfaced as an error signal rather
// than a returned error.
func (o *Orchestrator) RunWake(ctx context.Context, entity *models.Entity, req WakeRequest) (*models.WakeResult, error) {
	start := time.Now()

	entry := &models.PulseLog{
		EntityID:    entity.ID,
		EntityName:  entity.Name,
		WakeType:    req.WakeType,
		ChainDepth:  req.ChainDepth,
		TaskContext: req.TaskContext,
	}
	if err := o.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create pulse log: %w", err)
	}

	o.publish(ctx, events.EventWakeStarted, entity.ID, map[string]any{
		"log_id":      entry.ID,
		"wake_type":   req.WakeType,
		"chain_depth": req.ChainDepth,
	})

	result, err := o.attempt(ctx, entity, req, entry, start)
	if err != nil {
		o.logger.Error().
			Str("entity_id", entity.ID).
			Str("log_id", entry.ID).
			Err(err).
			Msg("wake attempt failed")

		o.markTerminal(ctx, entry.ID, db.TerminalUpdate{
			Status:     models.PulseStatusFailed,
			EndSignal:  models.EndSignalError,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		})
		o.publish(ctx, events.EventWakeFailed, entity.ID, map[string]any{
			"log_id": entry.ID,
			"error":  err.Error(),
		})
		return &models.WakeResult{Signal: models.WakeSignalError, Error: err.Error()}, nil
	}

	return result, nil
}

// attempt runs guards through invocation. A returned error means the attempt
// failed after log creation; RunWake maps it to the failed terminal state.
func (o *Orchestrator) attempt(ctx context.Context, entity *models.Entity, req WakeRequest, entry *models.PulseLog, start time.Time) (result *models.WakeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("wake attempt panicked: %v", r)
		}
	}()

	logger := o.logger.With().
		Str("entity_id", entity.ID).
		Str("log_id", entry.ID).
		Str("wake_type", string(req.WakeType)).
		Int("chain_depth", req.ChainDepth).
		Logger()

	// Guards run in a fixed order and short-circuit; at most one skip
	// reason is ever recorded per attempt.
	active, err := o.store.ConversationActive(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check conversation liveness: %w", err)
	}
	if active {
		return o.skip(ctx, entry.ID, entity.ID, models.SkipReasonActiveConversation, start)
	}

	budget, err := o.ledger.Check(ctx, entity.ID, entity.Pulse)
	if err != nil {
		return nil, fmt.Errorf("failed to check daily budget: %w", err)
	}
	if budget.Exhausted {
		logger.Info().
			Int("wakes", budget.Wakes).
			Int("tokens", budget.Tokens).
			Msg("daily budget exhausted")
		return o.skip(ctx, entry.ID, entity.ID, models.SkipReasonBudgetExhausted, start)
	}

	if !InActiveHours(entity.Pulse.ActiveHours, time.Now()) {
		return o.skip(ctx, entry.ID, entity.ID, models.SkipReasonOutsideActiveHours, start)
	}

	if req.ChainDepth >= entity.Pulse.ChainDepthLimit() {
		return o.skip(ctx, entry.ID, entity.ID, models.SkipReasonMaxChainDepth, start)
	}

	recovered, err := o.sweeper.CleanupStuck(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("crash recovery sweep failed: %w", err)
	}
	if recovered != "" {
		o.publish(ctx, events.EventCrashRecovered, entity.ID, map[string]any{"log_id": entry.ID})
	}

	// The three reads are independent; issue them concurrently. Individual
	// failures degrade to empty values rather than failing the attempt.
	var (
		wg         sync.WaitGroup
		lastWakeAt *time.Time
		persisted  string
		compass    string
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		if last, err := o.logs.FindLastSettled(ctx, entity.ID); err == nil {
			lastWakeAt = &last.CreatedAt
		}
	}()
	go func() {
		defer wg.Done()
		persisted, _ = o.store.TaskContext(ctx, entity.ID)
	}()
	go func() {
		defer wg.Done()
		compass, _ = o.store.Compass(ctx, entity.ID)
	}()
	wg.Wait()

	taskContext := req.TaskContext
	if taskContext == "" {
		taskContext = persisted
	}
	if taskContext == "" {
		taskContext = recovered
	}

	prompt := BuildWakePrompt(PromptInput{
		Entity:        entity,
		WakeType:      req.WakeType,
		ChainDepth:    req.ChainDepth,
		MaxChainDepth: entity.Pulse.ChainDepthLimit(),
		TaskContext:   taskContext,
		LastWakeAt:    lastWakeAt,
		Compass:       compass,
		Recovered:     recovered != "" && taskContext == recovered,
	})

	logger.Info().Msg("invoking agent")
	invocation, err := o.invoker.Invoke(ctx, agent.InvokeRequest{
		EntityID:   entity.ID,
		Model:      entity.Pulse.Model,
		Prompt:     prompt,
		Background: true,
	})
	if err != nil {
		return nil, fmt.Errorf("agent invocation failed: %w", err)
	}

	endSignal, err := o.store.TakeEndSignal(ctx, entity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume end signal: %w", err)
	}

	tokens, unparsed := agent.SumUsageTokens(invocation.Usage)
	if unparsed > 0 {
		logger.Warn().Int("unparsed_records", unparsed).Msg("usage records could not be parsed")
		o.publish(ctx, events.EventUsageUnparsed, entity.ID, map[string]any{
			"log_id":   entry.ID,
			"unparsed": unparsed,
		})
	}
	if err := o.ledger.Increment(ctx, entity.ID, tokens); err != nil {
		return nil, fmt.Errorf("failed to increment budget: %w", err)
	}

	duration := time.Since(start).Milliseconds()

	if endSignal != nil {
		// The agent explicitly ended its wake. The durable note is
		// superseded by whatever it chose to carry forward in the log.
		if err := o.store.ClearTaskContext(ctx, entity.ID); err != nil {
			logger.Warn().Err(err).Msg("failed to clear persisted task context")
		}

		toolCalls := invocation.ToolCalls
		if endSignal.ToolCalls > 0 {
			toolCalls = endSignal.ToolCalls
		}
		o.markTerminal(ctx, entry.ID, db.TerminalUpdate{
			Status:      models.PulseStatusCompleted,
			EndSignal:   models.EndSignalRest,
			TaskContext: endSignal.TaskContext,
			Reflection:  endSignal.Reflection,
			TokensUsed:  tokens,
			ToolCalls:   toolCalls,
			DurationMs:  duration,
		})
		o.publish(ctx, events.EventWakeCompleted, entity.ID, map[string]any{
			"log_id": entry.ID,
			"tokens": tokens,
		})
		logger.Info().Int("tokens", tokens).Msg("wake completed, entity rested")
		return &models.WakeResult{Signal: models.WakeSignalRest, EndSignal: models.EndSignalRest}, nil
	}

	// No end signal: the agent ran out of tool budget mid-task. Carry a
	// truncated slice of its output forward and ask for a continuation.
	autoContext := truncate(invocation.Text, AutoContextLimit)
	if err := o.store.SaveTaskContext(ctx, entity.ID, autoContext); err != nil {
		logger.Warn().Err(err).Msg("failed to persist task context")
	}

	o.markTerminal(ctx, entry.ID, db.TerminalUpdate{
		Status:      models.PulseStatusCompleted,
		EndSignal:   models.EndSignalToolLimit,
		TaskContext: autoContext,
		TokensUsed:  tokens,
		ToolCalls:   invocation.ToolCalls,
		DurationMs:  duration,
	})
	o.publish(ctx, events.EventWakeContinued, entity.ID, map[string]any{
		"log_id":      entry.ID,
		"chain_depth": req.ChainDepth + 1,
	})
	logger.Info().Int("next_depth", req.ChainDepth+1).Msg("wake hit tool limit, chain continues")

	return &models.WakeResult{
		Signal:      models.WakeSignalContinue,
		ChainDepth:  req.ChainDepth + 1,
		TaskContext: autoContext,
		EndSignal:   models.EndSignalToolLimit,
	}, nil
}

func (o *Orchestrator) skip(ctx context.Context, logID, entityID string, reason models.SkipReason, start time.Time) (*models.WakeResult, error) {
	o.markTerminal(ctx, logID, db.TerminalUpdate{
		Status:     models.PulseStatusSkipped,
		SkipReason: reason,
		DurationMs: time.Since(start).Milliseconds(),
	})
	o.publish(ctx, events.EventWakeSkipped, entityID, map[string]any{
		"log_id": logID,
		"reason": reason,
	})
	return &models.WakeResult{Signal: models.WakeSignalSkipped, SkipReason: reason}, nil
}

// markTerminal records the attempt's terminal state. A failure here is logged
// but not propagated: the attempt's outcome already happened, and losing the
// log row must not change the signal reported to the scheduler.
func (o *Orchestrator) markTerminal(ctx context.Context, logID string, update db.TerminalUpdate) {
	if err := o.logs.UpdateTerminal(ctx, logID, update); err != nil {
		o.logger.Error().Str("log_id", logID).Err(err).Msg("failed to finalize pulse log")
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType events.EventType, entityID string, payload any) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(ctx, events.New(eventType, entityID, payload))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
