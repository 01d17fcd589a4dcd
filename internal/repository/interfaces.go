package repository

import (
	"context"

	"github.com/tunewave/tunewave/internal/domain"
)

// StateRepository tracks the per-station validation state projection.
type StateRepository interface {
	// Set stores or replaces the state for a station.
	Set(ctx context.Context, state domain.StationValidationState) error

	// Get retrieves the state for a station.
	Get(ctx context.Context, uuid domain.StationUUID) (domain.StationValidationState, error)

	// List returns every known station state.
	List(ctx context.Context) ([]domain.StationValidationState, error)

	// Clear drops all states.
	Clear(ctx context.Context) error
}

// JobRepository manages the background revalidation queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next pending job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// GetByStationUUID finds the latest job for a station.
	GetByStationUUID(ctx context.Context, uuid domain.StationUUID) (*domain.Job, error)

	// ListPending returns all pending/retrying jobs.
	ListPending(ctx context.Context) ([]*domain.Job, error)

	// HasPending reports whether a station already has an unfinished job.
	HasPending(ctx context.Context, uuid domain.StationUUID) bool

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains revalidation queue statistics.
type QueueStats struct {
	Queued     int
	Processing int
	Completed  int
	Failed     int
	Retrying   int
}
