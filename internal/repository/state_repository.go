package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/tunewave/tunewave/internal/domain"
)

// InMemoryStateRepository implements StateRepository using in-memory storage.
type InMemoryStateRepository struct {
	mu     sync.RWMutex
	states map[domain.StationUUID]domain.StationValidationState
}

// NewInMemoryStateRepository creates a new in-memory state repository.
func NewInMemoryStateRepository() *InMemoryStateRepository {
	return &InMemoryStateRepository{
		states: make(map[domain.StationUUID]domain.StationValidationState),
	}
}

// Set stores or replaces the state for a station.
func (r *InMemoryStateRepository) Set(ctx context.Context, state domain.StationValidationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.StationUUID] = state
	return nil
}

// Get retrieves the state for a station. Unknown stations return a state
// with StatusUnknown rather than an error: a station never validated is a
// normal condition, not a failure.
func (r *InMemoryStateRepository) Get(ctx context.Context, uuid domain.StationUUID) (domain.StationValidationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[uuid]
	if !ok {
		return domain.StationValidationState{
			StationUUID: uuid,
			Status:      domain.StatusUnknown,
		}, nil
	}
	return state, nil
}

// List returns every known station state, ordered by UUID for stable output.
func (r *InMemoryStateRepository) List(ctx context.Context) ([]domain.StationValidationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.StationValidationState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StationUUID < out[j].StationUUID
	})
	return out, nil
}

// Clear drops all states.
func (r *InMemoryStateRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states = make(map[domain.StationUUID]domain.StationValidationState)
	return nil
}
