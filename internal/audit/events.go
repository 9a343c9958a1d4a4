package audit

import "time"

// EventType identifies a pipeline step in the audit log
type EventType string

const (
	IngestionStart          EventType = "INGESTION_START"
	IngestionComplete       EventType = "INGESTION_COMPLETE"
	OCRStart                EventType = "OCR_START"
	OCRComplete             EventType = "OCR_COMPLETE"
	ClassificationStart     EventType = "CLASSIFICATION_START"
	ClassificationComplete  EventType = "CLASSIFICATION_COMPLETE"
	DuplicateCheckStart     EventType = "DUPLICATE_CHECK_START"
	DuplicateCheckComplete  EventType = "DUPLICATE_CHECK_COMPLETE"
	FinalBillSelectionStart EventType = "FINAL_BILL_SELECTION_START"
	FinalBillSelection      EventType = "FINAL_BILL_SELECTION"
	PipelineStart           EventType = "PIPELINE_START"
	PipelineComplete        EventType = "PIPELINE_COMPLETE"
	PipelineError           EventType = "PIPELINE_ERROR"
)

// FallbackEventType is recorded when an event is logged under a name that is
// not one of the known event types.
const FallbackEventType = PipelineComplete

var eventTypes = map[string]EventType{}

func init() {
	for _, t := range []EventType{
		IngestionStart, IngestionComplete,
		OCRStart, OCRComplete,
		ClassificationStart, ClassificationComplete,
		DuplicateCheckStart, DuplicateCheckComplete,
		FinalBillSelectionStart, FinalBillSelection,
		PipelineStart, PipelineComplete, PipelineError,
	} {
		eventTypes[string(t)] = t
	}
}

// ParseEventType resolves an event type by name. Unknown names resolve to
// FallbackEventType and ok is false.
func ParseEventType(name string) (t EventType, ok bool) {
	t, ok = eventTypes[name]
	if !ok {
		return FallbackEventType, false
	}
	return t, true
}

// Valid reports whether t is one of the known event types
func (t EventType) Valid() bool {
	_, ok := eventTypes[string(t)]
	return ok
}

// Status is the outcome recorded on an event
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// Event is one immutable audit record
type Event struct {
	EventID      string         `json:"event_id"`
	ClaimID      string         `json:"claim_id"`
	EventType    EventType      `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	AgentName    string         `json:"agent_name"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata"`
	Status       Status         `json:"status"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
}
