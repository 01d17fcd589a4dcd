package service

import (
	"context"
	"net/url"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/tunewave/tunewave/internal/directory"
	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/repository"
	"github.com/tunewave/tunewave/internal/storage"
	"github.com/tunewave/tunewave/internal/validator"
)

// StationService orchestrates the station browsing and validation workflow:
// directory lookups, stream validation, favorites and listening history.
type StationService struct {
	directory directory.Client
	validator *validator.Validator
	states    repository.StateRepository
	events    *EventService
	favorites *storage.FavoritesStore
	recents   *storage.RecentsLog
	logger    *slog.Logger

	batchMu  sync.Mutex
	inFlight bool
}

// NewStationService creates a new station service.
func NewStationService(
	dir directory.Client,
	v *validator.Validator,
	states repository.StateRepository,
	events *EventService,
	favorites *storage.FavoritesStore,
	recents *storage.RecentsLog,
	logger *slog.Logger,
) *StationService {
	return &StationService{
		directory: dir,
		validator: v,
		states:    states,
		events:    events,
		favorites: favorites,
		recents:   recents,
		logger:    logger,
	}
}

// SearchStations queries the directory and annotates each result with its
// locally known validation state.
func (s *StationService) SearchStations(ctx context.Context, q directory.SearchQuery) ([]StationWithState, error) {
	stations, err := s.directory.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.withStates(ctx, stations), nil
}

// TopStations returns the directory's most-voted stations with local state.
func (s *StationService) TopStations(ctx context.Context, limit int) ([]StationWithState, error) {
	stations, err := s.directory.TopStations(ctx, limit)
	if err != nil {
		return nil, err
	}
	return s.withStates(ctx, stations), nil
}

// StationWithState pairs a directory record with its validation state.
type StationWithState struct {
	Station domain.Station                `json:"station"`
	State   domain.StationValidationState `json:"state"`
}

func (s *StationService) withStates(ctx context.Context, stations []domain.Station) []StationWithState {
	out := make([]StationWithState, 0, len(stations))
	for _, st := range stations {
		state, _ := s.states.Get(ctx, st.UUID)
		out = append(out, StationWithState{Station: st, State: state})
	}
	return out
}

// ValidateURL validates a single stream URL directly.
func (s *StationService) ValidateURL(ctx context.Context, rawURL string) (domain.ValidationResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ValidationResult{}, domain.ErrInvalidStreamURL
	}
	return s.validator.ValidateStream(ctx, rawURL), nil
}

// BatchOutcome is the final report of one batch validation run.
type BatchOutcome struct {
	BatchID string                       `json:"batch_id"`
	Result  domain.BatchValidationResult `json:"result"`
}

// ValidateStations runs a streaming batch validation over the given
// stations, recording per-station states and publishing events as each
// transition happens. Only one batch may run at a time; a second call
// while one is in flight returns domain.ErrValidationInFlight.
//
// The call blocks until the batch finishes or is cancelled through
// CancelValidation (or ctx).
func (s *StationService) ValidateStations(ctx context.Context, stations []domain.Station) (*BatchOutcome, error) {
	s.batchMu.Lock()
	if s.inFlight {
		s.batchMu.Unlock()
		return nil, domain.ErrValidationInFlight
	}
	s.inFlight = true
	s.batchMu.Unlock()

	defer func() {
		s.batchMu.Lock()
		s.inFlight = false
		s.batchMu.Unlock()
	}()

	batchID := "batch_" + uuid.New().String()[:8]
	s.logger.Info("batch validation started", "batch_id", batchID, "stations", len(stations))

	total := len(stations)
	s.events.Emit(domain.ValidationEvent{
		Type:     domain.EventBatchStarted,
		BatchID:  batchID,
		Progress: &domain.ValidationProgress{Total: total},
	})

	result := s.validator.ValidateStationsStreaming(ctx, stations,
		func(state domain.StationValidationState) {
			if err := s.states.Set(ctx, state); err != nil {
				s.logger.Warn("failed to record station state", "station", state.StationUUID, "error", err)
			}
			eventType := domain.EventStationValidating
			if state.Status.Terminal() {
				eventType = domain.EventStationResolved
			}
			s.events.Emit(domain.ValidationEvent{
				Type:        eventType,
				BatchID:     batchID,
				StationUUID: state.StationUUID,
				Status:      state.Status,
				Error:       state.Error,
			})
		},
		func(p domain.ValidationProgress) {
			progress := p
			s.events.Emit(domain.ValidationEvent{
				Type:     domain.EventProgressUpdated,
				BatchID:  batchID,
				Progress: &progress,
			})
		})

	completed := result.Completed
	s.events.Emit(domain.ValidationEvent{
		Type:      domain.EventBatchFinished,
		BatchID:   batchID,
		Progress:  &result.Progress,
		Completed: &completed,
	})

	// Stations interrupted mid-check go back to unknown so the UI does
	// not show a validating spinner forever.
	for _, uuid := range result.PendingStations {
		if err := s.states.Set(ctx, domain.StationValidationState{
			StationUUID: uuid,
			Status:      domain.StatusUnknown,
		}); err != nil {
			s.logger.Warn("failed to reset pending station state", "station", uuid, "error", err)
		}
	}

	s.logger.Info("batch validation finished",
		"batch_id", batchID,
		"completed", result.Completed,
		"valid", len(result.ValidStations),
		"invalid", len(result.InvalidStations),
		"pending", len(result.PendingStations),
	)

	return &BatchOutcome{BatchID: batchID, Result: result}, nil
}

// ValidateStationsByUUID resolves station records from the directory and
// validates them.
func (s *StationService) ValidateStationsByUUID(ctx context.Context, uuids []domain.StationUUID) (*BatchOutcome, error) {
	stations := make([]domain.Station, 0, len(uuids))
	for _, id := range uuids {
		st, err := s.directory.StationByUUID(ctx, id)
		if err != nil {
			return nil, domain.NewStationError(id, "resolve station", err)
		}
		stations = append(stations, *st)
	}
	return s.ValidateStations(ctx, stations)
}

// CancelValidation cancels the in-flight batch run, if any.
func (s *StationService) CancelValidation() {
	s.validator.CancelValidation()
}

// ValidationInFlight reports whether a batch run is active.
func (s *StationService) ValidationInFlight() bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.inFlight
}

// ValidatorConfig returns the validator's current configuration.
func (s *StationService) ValidatorConfig() validator.Config {
	return s.validator.GetConfig()
}

// UpdateValidatorConfig applies a partial validator configuration update.
func (s *StationService) UpdateValidatorConfig(patch validator.ConfigPatch) validator.Config {
	cfg := s.validator.UpdateConfig(patch)
	s.logger.Info("validator config updated",
		"timeout", cfg.Timeout,
		"batch_size", cfg.BatchSize,
		"enable_cache", cfg.EnableCache,
		"cache_ttl", cfg.CacheTTL,
	)
	return cfg
}

// ClearValidationCache drops all cached validation results.
func (s *StationService) ClearValidationCache() {
	s.validator.ClearCache()
	s.logger.Info("validation cache cleared")
}

// ValidationCacheSize reports the number of live cache entries.
func (s *StationService) ValidationCacheSize() int {
	return s.validator.CacheSize()
}

// StationStates returns every locally known validation state.
func (s *StationService) StationStates(ctx context.Context) ([]domain.StationValidationState, error) {
	return s.states.List(ctx)
}

// StationState returns the state of one station.
func (s *StationService) StationState(ctx context.Context, uuid domain.StationUUID) (domain.StationValidationState, error) {
	return s.states.Get(ctx, uuid)
}

// AddFavorite validates a station's stream and saves it as a favorite.
// A station whose stream fails validation is not saved; the validation
// error is wrapped in the returned StationError.
func (s *StationService) AddFavorite(ctx context.Context, uuid domain.StationUUID) (*storage.Favorite, error) {
	station, err := s.directory.StationByUUID(ctx, uuid)
	if err != nil {
		return nil, domain.NewStationError(uuid, "add favorite", err)
	}

	res := s.validator.ValidateStream(ctx, station.EffectiveURL())
	now := time.Now()

	if err := s.states.Set(ctx, domain.StationValidationState{
		StationUUID:  uuid,
		Status:       statusFromResult(res),
		Error:        res.Err,
		ResponseTime: res.ResponseTime,
		LastChecked:  res.LastChecked,
	}); err != nil {
		s.logger.Warn("failed to record station state", "station", uuid, "error", err)
	}

	if !res.IsValid {
		return nil, domain.NewStationError(uuid, "add favorite", domain.ErrStationNotPlayable)
	}

	fav := storage.Favorite{
		Station:       *station,
		AddedAt:       now,
		LastValidated: now,
		LastValid:     true,
	}
	if err := s.favorites.Add(fav); err != nil {
		return nil, domain.NewStationError(uuid, "add favorite", err)
	}

	s.logger.Info("favorite added", "station", uuid, "name", station.Name)
	return &fav, nil
}

// RemoveFavorite deletes a favorite.
func (s *StationService) RemoveFavorite(ctx context.Context, uuid domain.StationUUID) error {
	if err := s.favorites.Remove(uuid); err != nil {
		return domain.NewStationError(uuid, "remove favorite", err)
	}
	s.logger.Info("favorite removed", "station", uuid)
	return nil
}

// ListFavorites returns all favorites.
func (s *StationService) ListFavorites(ctx context.Context) []storage.Favorite {
	return s.favorites.List()
}

// RegisterPlay records a play in the listening history and reports the
// click to the directory. Stations whose last validation failed are
// rejected with domain.ErrStationNotPlayable.
func (s *StationService) RegisterPlay(ctx context.Context, uuid domain.StationUUID) (*domain.Station, error) {
	station, err := s.resolveStation(ctx, uuid)
	if err != nil {
		return nil, domain.NewStationError(uuid, "play", err)
	}

	state, _ := s.states.Get(ctx, uuid)
	if state.Status == domain.StatusInvalid {
		return nil, domain.NewStationError(uuid, "play", domain.ErrStationNotPlayable)
	}

	if err := s.recents.Append(storage.PlayEvent{
		StationUUID: station.UUID,
		StationName: station.Name,
		StreamURL:   station.EffectiveURL(),
	}); err != nil {
		s.logger.Warn("failed to record play", "station", uuid, "error", err)
	}

	// Click counting keeps directory popularity honest but must never
	// fail a play.
	if err := s.directory.CountClick(ctx, uuid); err != nil {
		s.logger.Debug("click count failed", "station", uuid, "error", err)
	}

	return station, nil
}

// RecentPlays returns the most recent listening history entries.
func (s *StationService) RecentPlays(limit int) ([]storage.PlayEvent, error) {
	return s.recents.GetRecent(limit)
}

// resolveStation prefers the locally saved favorite record and falls back
// to the directory.
func (s *StationService) resolveStation(ctx context.Context, uuid domain.StationUUID) (*domain.Station, error) {
	if fav, err := s.favorites.Get(uuid); err == nil {
		return &fav.Station, nil
	}
	return s.directory.StationByUUID(ctx, uuid)
}

func statusFromResult(res domain.ValidationResult) domain.ValidationStatus {
	if res.IsValid {
		return domain.StatusValid
	}
	return domain.StatusInvalid
}
