package audit

import (
	"log/slog"

	"github.com/zombor/bill-itemizer/internal/common"
)

// Trail stamps and records audit events
type Trail struct {
	ids    common.IDGenerator
	clock  common.TimeSource
	logger *slog.Logger
}

// NewTrail creates a Trail with random UUIDs and the system clock
func NewTrail(logger *slog.Logger) *Trail {
	return NewTrailWithDeps(common.UUIDGenerator{}, common.SystemTime{}, logger)
}

// NewTrailWithDeps creates a Trail with explicit dependencies (for testing)
func NewTrailWithDeps(ids common.IDGenerator, clock common.TimeSource, logger *slog.Logger) *Trail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{ids: ids, clock: clock, logger: logger}
}

// EventOption customizes an event before it is recorded
type EventOption func(*Event)

// WithMetadata attaches metadata to the event
func WithMetadata(metadata map[string]any) EventOption {
	return func(e *Event) {
		for k, v := range metadata {
			e.Metadata[k] = v
		}
	}
}

// WithError marks the event as failed and records the error details
func WithError(details map[string]any) EventOption {
	return func(e *Event) {
		e.Status = StatusError
		e.ErrorDetails = details
	}
}

// LogEvent builds an event for the log's claim, appends it and returns it
func (t *Trail) LogEvent(log *Log, component string, eventType EventType, message string, opts ...EventOption) Event {
	e := Event{
		EventID:   t.ids.Generate(),
		ClaimID:   log.ClaimID(),
		EventType: eventType,
		Timestamp: t.clock.Now().UTC(),
		AgentName: component,
		Message:   message,
		Metadata:  map[string]any{},
		Status:    StatusSuccess,
	}
	for _, opt := range opts {
		opt(&e)
	}

	log.AddEvent(e)

	attrs := []any{
		"claim_id", e.ClaimID,
		"event_type", e.EventType,
		"agent", e.AgentName,
		"status", e.Status,
	}
	if e.Status == StatusError {
		t.logger.Error(message, attrs...)
	} else {
		t.logger.Info(message, attrs...)
	}
	return e
}

// LogEventNamed is LogEvent for callers holding an event type name.
// Unrecognized names are recorded as FallbackEventType.
func (t *Trail) LogEventNamed(log *Log, component, eventName, message string, opts ...EventOption) Event {
	eventType, ok := ParseEventType(eventName)
	if !ok {
		t.logger.Debug("unknown audit event type, using fallback", "name", eventName, "fallback", eventType)
	}
	return t.LogEvent(log, component, eventType, message, opts...)
}
