// Package events defines the wake lifecycle events and the publisher
// interface components use to emit them.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Enntity/pulse/internal/logging"
)

// EventType identifies a kind of event.
type EventType string

// Wake lifecycle event types.
const (
	EventWakeStarted    EventType = "wake.started"
	EventWakeCompleted  EventType = "wake.completed"
	EventWakeSkipped    EventType = "wake.skipped"
	EventWakeFailed     EventType = "wake.failed"
	EventWakeContinued  EventType = "wake.continued"
	EventCrashRecovered EventType = "wake.crash_recovered"
	EventUsageUnparsed  EventType = "usage.unparsed"
)

// Event is a single published event.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	EntityID  string          `json:"entity_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher publishes events. Implementations must not block the caller.
type Publisher interface {
	Publish(ctx context.Context, event *Event)
}

// New builds an event, marshalling the payload if one is given.
func New(eventType EventType, entityID string, payload any) *Event {
	event := &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher backed by the component logger.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: logging.Component("events")}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event *Event) {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("type", string(event.Type)).
		Str("entity_id", event.EntityID).
		RawJSON("payload", payloadOrEmpty(event.Payload)).
		Msg("event")
}

func payloadOrEmpty(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage(`{}`)
	}
	return payload
}

// MemoryPublisher collects events in memory, for tests and introspection.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryPublisher creates an in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish records the event.
func (p *MemoryPublisher) Publish(_ context.Context, event *Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// Events returns a copy of the recorded events.
func (p *MemoryPublisher) Events() []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Event, len(p.events))
	copy(out, p.events)
	return out
}

// ByType returns recorded events of the given type.
func (p *MemoryPublisher) ByType(eventType EventType) []*Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*MemoryPublisher)(nil)
)
