package domain

import (
	"time"
)

// JobID is a unique identifier for a revalidation job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a revalidation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// JobReason records why a revalidation was scheduled.
type JobReason string

const (
	// JobReasonStaleFavorite marks a favorite whose last check aged out.
	JobReasonStaleFavorite JobReason = "stale_favorite"

	// JobReasonManual marks an operator-requested revalidation.
	JobReasonManual JobReason = "manual"
)

// Job is a queued background revalidation of one station's stream.
type Job struct {
	ID          JobID
	StationUUID StationUUID
	StreamURL   string
	Reason      JobReason
	Status      JobStatus
	Attempts    int
	MaxRetries  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewJob creates a new revalidation job for a station stream.
func NewJob(id JobID, uuid StationUUID, streamURL string, reason JobReason, maxRetries int) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		StationUUID: uuid,
		StreamURL:   streamURL,
		Reason:      reason,
		Status:      JobStatusQueued,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanRetry returns true if the job can be retried.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxRetries
}

// MarkProcessing updates the job status to processing.
func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now()
}

// MarkCompleted updates the job status to completed.
func (j *Job) MarkCompleted() {
	j.Status = JobStatusCompleted
	j.UpdatedAt = time.Now()
}

// MarkFailed records a failed attempt; the job moves to retrying while it
// has retry budget left, failed otherwise.
func (j *Job) MarkFailed(err string) {
	j.Attempts++
	j.LastError = err
	j.UpdatedAt = time.Now()

	if j.CanRetry() {
		j.Status = JobStatusRetrying
	} else {
		j.Status = JobStatusFailed
	}
}
