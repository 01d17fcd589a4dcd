package domain

import (
	"math"
	"time"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	// ErrorKindNetwork is a connection-level failure (DNS, refused, reset).
	ErrorKindNetwork ErrorKind = "network"

	// ErrorKindHTTP is a non-success HTTP status from the stream host.
	ErrorKindHTTP ErrorKind = "http"

	// ErrorKindTimeout is a probe that exceeded its deadline.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindAudioCompat means the playback capability rejected the
	// stream's format.
	ErrorKindAudioCompat ErrorKind = "audio_compatibility"
)

// ValidationError is a typed, non-thrown validation failure.
// Retryable is a policy hint for callers; the validator itself never retries.
type ValidationError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
}

func (e *ValidationError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// ValidationResult is the immutable outcome of validating one stream URL.
type ValidationResult struct {
	URL          string           `json:"url"`
	IsValid      bool             `json:"is_valid"`
	Err          *ValidationError `json:"error,omitempty"`
	ResponseTime time.Duration    `json:"response_time_ms"`
	LastChecked  time.Time        `json:"last_checked"`
	Cached       bool             `json:"cached"`
}

// ValidationProgress is the aggregate state of an in-flight batch run,
// recomputed after every station transition.
type ValidationProgress struct {
	Total           int `json:"total"`
	Validated       int `json:"validated"`
	Failed          int `json:"failed"`
	InProgress      int `json:"in_progress"`
	PercentComplete int `json:"percent_complete"`
}

// NewProgress derives the aggregate from raw counters.
func NewProgress(total, validated, failed, inProgress int) ValidationProgress {
	p := ValidationProgress{
		Total:      total,
		Validated:  validated,
		Failed:     failed,
		InProgress: inProgress,
	}
	if total > 0 {
		p.PercentComplete = int(math.Round(100 * float64(validated+failed) / float64(total)))
	}
	return p
}

// BatchValidationResult is the final outcome of a streaming batch run.
// Completed is false iff the run was cancelled before every station
// reached a terminal state; PendingStations then holds the unresolved set.
type BatchValidationResult struct {
	ValidStations   []StationUUID      `json:"valid_stations"`
	InvalidStations []StationUUID      `json:"invalid_stations"`
	PendingStations []StationUUID      `json:"pending_stations"`
	Progress        ValidationProgress `json:"progress"`
	Completed       bool               `json:"completed"`
}
