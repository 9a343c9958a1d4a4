package audit

import (
	"encoding/json"
	"sync"
	"time"
)

// Log is the append-only audit log of one claim run.
// Events can only be added through AddEvent, which keeps the summary
// fields consistent with the event list.
type Log struct {
	mu          sync.Mutex
	claimID     string
	events      []Event
	startedAt   *time.Time
	completedAt *time.Time
}

// NewLog creates an empty log for claimID
func NewLog(claimID string) *Log {
	return &Log{claimID: claimID, events: []Event{}}
}

// AddEvent appends e. The first event sets StartedAt and every event moves
// CompletedAt forward.
func (l *Log) AddEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	ts := e.Timestamp
	if l.startedAt == nil {
		l.startedAt = &ts
	}
	l.completedAt = &ts
}

func (l *Log) ClaimID() string {
	return l.claimID
}

// Events returns a copy of the recorded events in insertion order
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) TotalEvents() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// StartedAt returns the timestamp of the first event, or the zero time
func (l *Log) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startedAt == nil {
		return time.Time{}
	}
	return *l.startedAt
}

// CompletedAt returns the timestamp of the latest event, or the zero time
func (l *Log) CompletedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.completedAt == nil {
		return time.Time{}
	}
	return *l.completedAt
}

type logJSON struct {
	ClaimID     string     `json:"claim_id"`
	Events      []Event    `json:"events"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	TotalEvents int        `json:"total_events"`
}

func (l *Log) MarshalJSON() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := l.events
	if events == nil {
		events = []Event{}
	}
	return json.Marshal(logJSON{
		ClaimID:     l.claimID,
		Events:      events,
		StartedAt:   l.startedAt,
		CompletedAt: l.completedAt,
		TotalEvents: len(events),
	})
}

// UnmarshalJSON restores a log by replaying its events, so the summary
// fields are always derived rather than trusted from input.
func (l *Log) UnmarshalJSON(data []byte) error {
	var raw logJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.mu.Lock()
	l.claimID = raw.ClaimID
	l.events = []Event{}
	l.startedAt = nil
	l.completedAt = nil
	l.mu.Unlock()

	for _, e := range raw.Events {
		l.AddEvent(e)
	}
	return nil
}
