package domain

import (
	"time"
)

// EventID is a unique identifier for a validation event.
type EventID string

// String returns the string representation of the EventID.
func (id EventID) String() string {
	return string(id)
}

// EventType tags the union of validation events pushed to subscribers.
type EventType string

const (
	// EventBatchStarted is emitted once when a batch run begins.
	EventBatchStarted EventType = "batch_started"

	// EventStationValidating is emitted when a station's check starts,
	// before any I/O completes.
	EventStationValidating EventType = "station_validating"

	// EventStationResolved is emitted when a station reaches a terminal
	// valid/invalid state.
	EventStationResolved EventType = "station_resolved"

	// EventProgressUpdated is emitted after every station transition.
	EventProgressUpdated EventType = "progress_updated"

	// EventBatchFinished is emitted when a batch run ends, completed or not.
	EventBatchFinished EventType = "batch_finished"
)

// ValidationEvent is a single message on the validation event stream.
// Which fields are set depends on Type: station events carry StationUUID,
// Status and optionally Error; progress events carry Progress; batch
// events carry Completed.
type ValidationEvent struct {
	ID          EventID             `json:"id"`
	Timestamp   time.Time           `json:"timestamp"`
	Type        EventType           `json:"type"`
	BatchID     string              `json:"batch_id,omitempty"`
	StationUUID StationUUID         `json:"station_uuid,omitempty"`
	Status      ValidationStatus    `json:"status,omitempty"`
	Error       *ValidationError    `json:"error,omitempty"`
	Progress    *ValidationProgress `json:"progress,omitempty"`
	Completed   *bool               `json:"completed,omitempty"`
}

// EventFilter specifies criteria for querying historical events.
type EventFilter struct {
	Type        *EventType   `json:"type,omitempty"`
	BatchID     string       `json:"batch_id,omitempty"`
	StationUUID *StationUUID `json:"station_uuid,omitempty"`
	StartTime   *time.Time   `json:"start_time,omitempty"`
	EndTime     *time.Time   `json:"end_time,omitempty"`
}

// EventQuery represents a query for events with pagination.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// EventQueryResult contains the result of an event query.
type EventQueryResult struct {
	Events  []ValidationEvent `json:"events"`
	Total   int               `json:"total"`
	HasMore bool              `json:"has_more"`
}
