package pulse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/db"
	"github.com/Enntity/pulse/internal/logging"
)

// Liveness and mailbox retention.
const (
	// InteractionWindow is how recently a human interaction must have
	// happened for the active-conversation guard to fire.
	InteractionWindow = 5 * time.Minute

	// endSignalTTL bounds how long an unconsumed end signal survives. An
	// end signal only matters to the attempt whose invocation wrote it;
	// one lock TTL is more than enough.
	endSignalTTL = DefaultLockTTL
)

// EndSignalPayload is the mailbox schema the agent-side end tool writes.
// Consumption is destructive (read-then-delete): at most one reader ever
// sees a given signal, and the last write before that read wins.
type EndSignalPayload struct {
	Signal      string `json:"signal"`
	TaskContext string `json:"task_context,omitempty"`
	Reflection  string `json:"reflection,omitempty"`
	ToolCalls   int    `json:"tool_calls,omitempty"`
}

// ContextStore holds the entity-scoped side state the orchestrator consults:
// the durable task context, the end-signal mailbox, the liveness marker, and
// the compass narrative.
type ContextStore struct {
	kv     *db.KVRepository
	logger zerolog.Logger
}

// NewContextStore creates a context store.
func NewContextStore(kv *db.KVRepository) *ContextStore {
	return &ContextStore{kv: kv, logger: logging.Component("context")}
}

// SaveTaskContext durably persists the note an agent leaves for its future
// self. Survives process crashes; no expiry. An empty context clears the key.
func (s *ContextStore) SaveTaskContext(ctx context.Context, entityID, taskContext string) error {
	if taskContext == "" {
		return s.kv.Delete(ctx, taskContextKey(entityID))
	}
	return s.kv.Set(ctx, taskContextKey(entityID), taskContext, 0)
}

// TaskContext returns the persisted task context, or empty if none.
func (s *ContextStore) TaskContext(ctx context.Context, entityID string) (string, error) {
	value, _, err := s.kv.Get(ctx, taskContextKey(entityID))
	return value, err
}

// ClearTaskContext removes the persisted task context.
func (s *ContextStore) ClearTaskContext(ctx context.Context, entityID string) error {
	return s.kv.Delete(ctx, taskContextKey(entityID))
}

// WriteEndSignal is the producer side of the mailbox: the agent-side end tool
// calls this when the agent explicitly ends its wake.
func (s *ContextStore) WriteEndSignal(ctx context.Context, entityID string, payload EndSignalPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, endSignalKey(entityID), string(data), endSignalTTL)
}

// TakeEndSignal consumes the entity's end signal, if any. The read deletes
// the key in the same transaction, so a signal is observed at most once.
// A malformed payload still counts as present (the agent did end its turn);
// its fields degrade to empty rather than failing the attempt.
func (s *ContextStore) TakeEndSignal(ctx context.Context, entityID string) (*EndSignalPayload, error) {
	raw, ok, err := s.kv.TakeValue(ctx, endSignalKey(entityID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var payload EndSignalPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		s.logger.Warn().
			Str("entity_id", entityID).
			Err(err).
			Msg("malformed end signal payload, treating as bare rest")
		return &EndSignalPayload{Signal: "rest"}, nil
	}
	if payload.Signal == "" {
		payload.Signal = "rest"
	}
	return &payload, nil
}

// MarkInteraction records that the entity just interacted with a human.
// An embedding chat surface calls this on every message so the
// active-conversation guard can keep Pulse from talking over a live chat.
func (s *ContextStore) MarkInteraction(ctx context.Context, entityID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.kv.Set(ctx, interactionKey(entityID), now, InteractionWindow)
}

// ConversationActive reports whether a human interaction happened within the
// liveness window.
func (s *ContextStore) ConversationActive(ctx context.Context, entityID string) (bool, error) {
	_, ok, err := s.kv.Get(ctx, interactionKey(entityID))
	return ok, err
}

// SetCompass stores the entity's longer-term narrative summary. No expiry.
func (s *ContextStore) SetCompass(ctx context.Context, entityID, narrative string) error {
	if narrative == "" {
		return s.kv.Delete(ctx, compassKey(entityID))
	}
	return s.kv.Set(ctx, compassKey(entityID), narrative, 0)
}

// Compass returns the entity's compass narrative, or empty if none.
func (s *ContextStore) Compass(ctx context.Context, entityID string) (string, error) {
	value, _, err := s.kv.Get(ctx, compassKey(entityID))
	return value, err
}
