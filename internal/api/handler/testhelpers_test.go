package handler

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/tunewave/tunewave/internal/directory"
	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/repository"
	"github.com/tunewave/tunewave/internal/service"
	"github.com/tunewave/tunewave/internal/storage"
	"github.com/tunewave/tunewave/internal/validator"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDirectory is a test implementation of directory.Client.
type fakeDirectory struct {
	stations map[domain.StationUUID]domain.Station
	err      error
}

func newFakeDirectory(stations ...domain.Station) *fakeDirectory {
	d := &fakeDirectory{stations: make(map[domain.StationUUID]domain.Station)}
	for _, st := range stations {
		d.stations[st.UUID] = st
	}
	return d
}

func (d *fakeDirectory) Search(ctx context.Context, q directory.SearchQuery) ([]domain.Station, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []domain.Station
	for _, st := range d.stations {
		out = append(out, st)
	}
	return out, nil
}

func (d *fakeDirectory) TopStations(ctx context.Context, limit int) ([]domain.Station, error) {
	return d.Search(ctx, directory.SearchQuery{})
}

func (d *fakeDirectory) StationByUUID(ctx context.Context, uuid domain.StationUUID) (*domain.Station, error) {
	if d.err != nil {
		return nil, d.err
	}
	st, ok := d.stations[uuid]
	if !ok {
		return nil, domain.ErrStationNotFound
	}
	return &st, nil
}

func (d *fakeDirectory) CountClick(ctx context.Context, uuid domain.StationUUID) error {
	return nil
}

// passFailChecker marks configured URLs invalid and everything else valid.
type passFailChecker struct {
	invalid map[string]bool
}

func (c *passFailChecker) CheckAccessibility(ctx context.Context, url string, _ time.Duration) validator.CheckResult {
	if c.invalid[url] {
		return validator.CheckResult{Err: &domain.ValidationError{
			Kind: domain.ErrorKindHTTP, Message: "HTTP 404", HTTPStatus: 404,
		}}
	}
	return validator.CheckResult{IsValid: true}
}

func (c *passFailChecker) CheckCompatibility(ctx context.Context, url string, _ time.Duration) validator.CheckResult {
	return validator.CheckResult{IsValid: true}
}

func testStation(uuid, url string) domain.Station {
	return domain.Station{UUID: domain.StationUUID(uuid), Name: "Station " + uuid, StreamURL: url}
}

// handlerFixture wires real services over fakes for handler tests.
type handlerFixture struct {
	dir        *fakeDirectory
	stationSvc *service.StationService
	eventSvc   *service.EventService
	jobs       *mockJobRepository
}

func newHandlerFixture(t *testing.T, invalidURLs []string, stations ...domain.Station) *handlerFixture {
	t.Helper()

	invalid := make(map[string]bool)
	for _, u := range invalidURLs {
		invalid[u] = true
	}
	checker := &passFailChecker{invalid: invalid}

	cfg := validator.DefaultConfig()
	cfg.BatchSize = 2
	v := validator.New(cfg, "tunewave-test/1.0", 1000, 1000, testLogger(),
		validator.WithAccessibilityChecker(checker),
		validator.WithMediaChecker(checker),
	)

	eventSvc, err := service.NewEventService(service.EventServiceConfig{RingBufferSize: 200}, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eventSvc.Close() })

	favorites, err := storage.NewFavoritesStore(filepath.Join(t.TempDir(), "favorites.json"))
	if err != nil {
		t.Fatal(err)
	}
	recents := storage.NewRecentsLog(filepath.Join(t.TempDir(), "recents.jsonl"), 50)

	dir := newFakeDirectory(stations...)
	stationSvc := service.NewStationService(dir, v,
		repository.NewInMemoryStateRepository(), eventSvc, favorites, recents, testLogger())

	return &handlerFixture{
		dir:        dir,
		stationSvc: stationSvc,
		eventSvc:   eventSvc,
		jobs:       newMockJobRepository(),
	}
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats    *repository.QueueStats
	statsErr error
	jobs     map[domain.JobID]*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued {
			return job, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) GetByStationUUID(ctx context.Context, uuid domain.StationUUID) (*domain.Job, error) {
	for _, job := range m.jobs {
		if job.StationUUID == uuid {
			return job, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) HasPending(ctx context.Context, uuid domain.StationUUID) bool {
	for _, job := range m.jobs {
		if job.StationUUID != uuid {
			continue
		}
		switch job.Status {
		case domain.JobStatusQueued, domain.JobStatusProcessing, domain.JobStatusRetrying:
			return true
		}
	}
	return false
}

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	var pending []*domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying {
			pending = append(pending, job)
		}
	}
	return pending, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}
