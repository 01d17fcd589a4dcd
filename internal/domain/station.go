package domain

import (
	"time"
)

// StationUUID is the directory-assigned unique identifier for a station.
type StationUUID string

// String returns the string representation of the StationUUID.
func (id StationUUID) String() string {
	return string(id)
}

// Station is a radio station record as returned by the directory.
type Station struct {
	UUID        StationUUID `json:"station_uuid"`
	Name        string      `json:"name"`
	StreamURL   string      `json:"stream_url"`
	ResolvedURL string      `json:"resolved_url,omitempty"`
	Homepage    string      `json:"homepage,omitempty"`
	Favicon     string      `json:"favicon,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Country     string      `json:"country,omitempty"`
	CountryCode string      `json:"country_code,omitempty"`
	Language    string      `json:"language,omitempty"`
	Codec       string      `json:"codec,omitempty"`
	Bitrate     int         `json:"bitrate,omitempty"`
	Votes       int         `json:"votes,omitempty"`
}

// EffectiveURL returns the URL that should be probed and played: the
// redirect-resolved URL when the directory provides one, the raw stream
// URL otherwise.
func (s *Station) EffectiveURL() string {
	if s.ResolvedURL != "" {
		return s.ResolvedURL
	}
	return s.StreamURL
}

// ValidationStatus is the UI-facing state of a station within a validation run.
type ValidationStatus string

const (
	StatusUnknown    ValidationStatus = "unknown"
	StatusValidating ValidationStatus = "validating"
	StatusValid      ValidationStatus = "valid"
	StatusInvalid    ValidationStatus = "invalid"
)

// Terminal reports whether the status is a terminal state for a batch run.
func (s ValidationStatus) Terminal() bool {
	return s == StatusValid || s == StatusInvalid
}

// StationValidationState is the per-station projection consumed by the UI.
type StationValidationState struct {
	StationUUID  StationUUID      `json:"station_uuid"`
	Status       ValidationStatus `json:"status"`
	Error        *ValidationError `json:"error,omitempty"`
	ResponseTime time.Duration    `json:"response_time_ms,omitempty"`
	LastChecked  time.Time        `json:"last_checked,omitempty"`
}
