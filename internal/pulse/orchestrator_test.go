package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Enntity/pulse/internal/agent"
	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/events"
	"github.com/Enntity/pulse/internal/models"
)

type fakeInvoker struct {
	result  *agent.InvokeResult
	err     error
	calls   int
	prompts []string
}

func (f *fakeInvoker) Invoke(_ context.Context, req agent.InvokeRequest) (*agent.InvokeResult, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	logs         *db.PulseLogRepository
	ledger       *Ledger
	store        *ContextStore
	invoker      *fakeInvoker
	publisher    *events.MemoryPublisher
}

func setupOrchestrator(t *testing.T) *orchestratorFixture {
	t.Helper()
	database := setupTestDB(t)
	kv := db.NewKVRepository(database)
	logs := db.NewPulseLogRepository(database)
	ledger := NewLedger(kv)
	store := NewContextStore(kv)
	invoker := &fakeInvoker{result: &agent.InvokeResult{Text: "pondered quietly"}}
	publisher := events.NewMemoryPublisher()

	return &orchestratorFixture{
		orchestrator: NewOrchestrator(logs, ledger, store, NewSweeper(logs), invoker, publisher),
		logs:         logs,
		ledger:       ledger,
		store:        store,
		invoker:      invoker,
		publisher:    publisher,
	}
}

func (f *orchestratorFixture) lastLog(t *testing.T, entityID string) *models.PulseLog {
	t.Helper()
	entries, err := f.logs.List(context.Background(), db.ListFilter{EntityID: entityID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}

func TestRunWakeMaxChainDepthShortCircuits(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	entity := testEntity()
	entity.Pulse.MaxChainDepth = 1

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{
		WakeType:   models.WakeTypeContinue,
		ChainDepth: 1,
	})
	require.NoError(t, err)
	require.Equal(t, models.WakeSignalSkipped, result.Signal)
	require.Equal(t, models.SkipReasonMaxChainDepth, result.SkipReason)
	require.Zero(t, f.invoker.calls, "no agent invocation on a guard skip")

	entry := f.lastLog(t, entity.ID)
	require.Equal(t, models.PulseStatusSkipped, entry.Status)
	require.Equal(t, models.SkipReasonMaxChainDepth, entry.SkipReason)

	budget, err := f.ledger.Check(ctx, entity.ID, entity.Pulse)
	require.NoError(t, err)
	require.Zero(t, budget.Wakes, "guard skips never touch the budget")
}

func TestRunWakeActiveConversationGuard(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	require.NoError(t, f.store.MarkInteraction(ctx, entity.ID))

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	require.Equal(t, models.WakeSignalSkipped, result.Signal)
	require.Equal(t, models.SkipReasonActiveConversation, result.SkipReason)
	require.Zero(t, f.invoker.calls)
}

func TestRunWakeBudgetGuard(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	entity := testEntity()
	entity.Pulse.DailyBudgetWakes = 1
	require.NoError(t, f.ledger.Increment(ctx, entity.ID, 0))

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	require.Equal(t, models.SkipReasonBudgetExhausted, result.SkipReason)
	require.Zero(t, f.invoker.calls)
}

func TestRunWakeOutsideActiveHoursGuard(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	// A window that is never active: start and end one minute apart, and the
	// test would have to run exactly inside it to pass the guard.
	entity := testEntity()
	entity.Pulse.ActiveHours = &models.ActiveHours{Start: "00:00", End: "00:00", Timezone: "UTC"}

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	if result.SkipReason != models.SkipReasonOutsideActiveHours {
		t.Skip("test ran at exactly 00:00 UTC")
	}
	require.Equal(t, models.WakeSignalSkipped, result.Signal)
	require.Zero(t, f.invoker.calls)
}

func TestRunWakeRest(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	require.NoError(t, f.store.SaveTaskContext(ctx, entity.ID, "stale note"))
	require.NoError(t, f.store.WriteEndSignal(ctx, entity.ID, EndSignalPayload{
		Signal:      "rest",
		TaskContext: "return to the garden tomorrow",
		Reflection:  "a good day",
		ToolCalls:   7,
	}))
	f.invoker.result = &agent.InvokeResult{
		Text:  "resting now",
		Usage: []json.RawMessage{json.RawMessage(`{"input_tokens": 100, "output_tokens": 50}`)},
	}

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	require.Equal(t, models.WakeSignalRest, result.Signal)
	require.Equal(t, models.EndSignalRest, result.EndSignal)
	require.Equal(t, 1, f.invoker.calls)

	entry := f.lastLog(t, entity.ID)
	require.Equal(t, models.PulseStatusCompleted, entry.Status)
	require.Equal(t, models.EndSignalRest, entry.EndSignal)
	require.Equal(t, "return to the garden tomorrow", entry.TaskContext)
	require.Equal(t, "a good day", entry.Reflection)
	require.Equal(t, 150, entry.TokensUsed)
	require.Equal(t, 7, entry.ToolCalls)

	persisted, err := f.store.TaskContext(ctx, entity.ID)
	require.NoError(t, err)
	require.Empty(t, persisted, "resting supersedes the durable note")

	budget, err := f.ledger.Check(ctx, entity.ID, entity.Pulse)
	require.NoError(t, err)
	require.Equal(t, 1, budget.Wakes)
	require.Equal(t, 150, budget.Tokens)
}

func TestRunWakeToolLimitContinues(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	longText := strings.Repeat("x", 5000)
	f.invoker.result = &agent.InvokeResult{Text: longText, ToolCalls: 25}

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	require.Equal(t, models.WakeSignalContinue, result.Signal)
	require.Equal(t, 1, result.ChainDepth, "chain depth increments by exactly one")
	require.Equal(t, longText[:AutoContextLimit], result.TaskContext)
	require.Len(t, result.TaskContext, AutoContextLimit)

	entry := f.lastLog(t, entity.ID)
	require.Equal(t, models.PulseStatusCompleted, entry.Status)
	require.Equal(t, models.EndSignalToolLimit, entry.EndSignal)
	require.Equal(t, 25, entry.ToolCalls)

	persisted, err := f.store.TaskContext(ctx, entity.ID)
	require.NoError(t, err)
	require.Equal(t, longText[:AutoContextLimit], persisted, "auto context survives a crash")
}

func TestRunWakeContextPriority(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	require.NoError(t, f.store.SaveTaskContext(ctx, entity.ID, "persisted note"))

	_, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{
		WakeType:    models.WakeTypeContinue,
		ChainDepth:  1,
		TaskContext: "explicit note",
	})
	require.NoError(t, err)
	require.Contains(t, f.invoker.prompts[0], "explicit note")
	require.NotContains(t, f.invoker.prompts[0], "persisted note")
}

func TestRunWakeRecoversCrashedContext(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	insertLogAt(t, f.logs, entity.ID, models.PulseStatusInProgress, "salvaged note", timeAgo(30))

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	require.Equal(t, models.WakeSignalContinue, result.Signal)

	require.Contains(t, f.invoker.prompts[0], "salvaged note")
	require.Contains(t, f.invoker.prompts[0], "interrupted")

	require.NotEmpty(t, f.publisher.ByType(events.EventCrashRecovered))
}

func TestRunWakeInvocationError(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	f.invoker.err = errors.New("upstream unavailable")

	result, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)
	require.Equal(t, models.WakeSignalError, result.Signal)
	require.Contains(t, result.Error, "upstream unavailable")

	entry := f.lastLog(t, entity.ID)
	require.Equal(t, models.PulseStatusFailed, entry.Status)
	require.Equal(t, models.EndSignalError, entry.EndSignal)
	require.Contains(t, entry.Error, "upstream unavailable")

	require.NotEmpty(t, f.publisher.ByType(events.EventWakeFailed))
}

func TestRunWakeUnparsedUsageIsObservable(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	f.invoker.result = &agent.InvokeResult{
		Text: "done",
		Usage: []json.RawMessage{
			json.RawMessage(`{"input_tokens": 10, "output_tokens": 5}`),
			json.RawMessage(`garbage`),
		},
	}

	_, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)

	require.NotEmpty(t, f.publisher.ByType(events.EventUsageUnparsed))

	budget, err := f.ledger.Check(ctx, entity.ID, entity.Pulse)
	require.NoError(t, err)
	require.Equal(t, 15, budget.Tokens, "parsable records still count")
}

func TestRunWakeEmitsLifecycleEvents(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()
	entity := testEntity()

	require.NoError(t, f.store.WriteEndSignal(ctx, entity.ID, EndSignalPayload{Signal: "rest"}))

	_, err := f.orchestrator.RunWake(ctx, entity, WakeRequest{WakeType: models.WakeTypeScheduled})
	require.NoError(t, err)

	require.Len(t, f.publisher.ByType(events.EventWakeStarted), 1)
	require.Len(t, f.publisher.ByType(events.EventWakeCompleted), 1)
}
