package worker

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/repository"
	"github.com/tunewave/tunewave/internal/storage"
	"github.com/tunewave/tunewave/internal/validator"
)

type fixedChecker struct {
	result validator.CheckResult
}

func (c *fixedChecker) CheckAccessibility(ctx context.Context, url string, _ time.Duration) validator.CheckResult {
	return c.result
}

func (c *fixedChecker) CheckCompatibility(ctx context.Context, url string, _ time.Duration) validator.CheckResult {
	return c.result
}

type poolFixture struct {
	pool      *Pool
	jobs      *repository.InMemoryJobRepository
	states    *repository.InMemoryStateRepository
	favorites *storage.FavoritesStore
}

func newPoolFixture(t *testing.T, check validator.CheckResult) *poolFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checker := &fixedChecker{result: check}

	cfg := validator.DefaultConfig()
	cfg.EnableCache = false
	v := validator.New(cfg, "tunewave-test/1.0", 1000, 1000, logger,
		validator.WithAccessibilityChecker(checker),
		validator.WithMediaChecker(checker),
	)

	favorites, err := storage.NewFavoritesStore(filepath.Join(t.TempDir(), "favorites.json"))
	if err != nil {
		t.Fatal(err)
	}

	jobs := repository.NewInMemoryJobRepository()
	states := repository.NewInMemoryStateRepository()

	pool := NewPool(Config{
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
		ScanInterval: time.Hour, // scans driven manually in tests
		MaxRetries:   2,
		StaleAfter:   24 * time.Hour,
	}, jobs, states, favorites, v, logger)

	return &poolFixture{pool: pool, jobs: jobs, states: states, favorites: favorites}
}

func addFavorite(t *testing.T, f *poolFixture, uuid string, lastValidated time.Time) {
	t.Helper()
	fav := storage.Favorite{
		Station: domain.Station{
			UUID:      domain.StationUUID(uuid),
			Name:      "Station " + uuid,
			StreamURL: "http://stream.example/" + uuid,
		},
		AddedAt:       time.Now(),
		LastValidated: lastValidated,
	}
	if err := f.favorites.Add(fav); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestScanOnceQueuesStaleFavorites(t *testing.T) {
	f := newPoolFixture(t, validator.CheckResult{IsValid: true})

	addFavorite(t, f, "stale", time.Now().Add(-48*time.Hour))
	addFavorite(t, f, "fresh", time.Now())
	addFavorite(t, f, "never", time.Time{})

	queued := f.pool.ScanOnce()
	if queued != 2 {
		t.Fatalf("queued = %d, want 2 (stale + never validated)", queued)
	}

	// A second scan must not double-queue.
	if again := f.pool.ScanOnce(); again != 0 {
		t.Errorf("rescan queued = %d, want 0", again)
	}
}

func TestPoolRevalidatesStation(t *testing.T) {
	f := newPoolFixture(t, validator.CheckResult{IsValid: true})
	addFavorite(t, f, "s1", time.Now().Add(-48*time.Hour))
	f.pool.ScanOnce()

	f.pool.Start()
	defer f.pool.Stop(time.Second)

	waitFor(t, "job completion", func() bool {
		stats, _ := f.jobs.Stats(context.Background())
		return stats.Completed == 1
	})

	state, _ := f.states.Get(context.Background(), "s1")
	if state.Status != domain.StatusValid {
		t.Errorf("state = %s, want valid", state.Status)
	}

	fav, err := f.favorites.Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if !fav.LastValid || time.Since(fav.LastValidated) > time.Minute {
		t.Errorf("favorite = %+v", fav)
	}
}

func TestPoolRecordsInvalidVerdict(t *testing.T) {
	f := newPoolFixture(t, validator.CheckResult{
		Err: &domain.ValidationError{Kind: domain.ErrorKindHTTP, Message: "HTTP 404", HTTPStatus: 404},
	})
	addFavorite(t, f, "s1", time.Now().Add(-48*time.Hour))
	f.pool.ScanOnce()

	f.pool.Start()
	defer f.pool.Stop(time.Second)

	waitFor(t, "job completion", func() bool {
		stats, _ := f.jobs.Stats(context.Background())
		return stats.Completed == 1
	})

	state, _ := f.states.Get(context.Background(), "s1")
	if state.Status != domain.StatusInvalid {
		t.Errorf("state = %s, want invalid", state.Status)
	}
	if state.Error == nil || state.Error.HTTPStatus != 404 {
		t.Errorf("error = %+v", state.Error)
	}

	fav, _ := f.favorites.Get("s1")
	if fav.LastValid {
		t.Error("favorite must record the failed verdict")
	}
}

func TestPoolRetriesRetryableFailures(t *testing.T) {
	f := newPoolFixture(t, validator.CheckResult{
		Err: &domain.ValidationError{Kind: domain.ErrorKindTimeout, Message: "probe deadline exceeded", Retryable: true},
	})
	addFavorite(t, f, "s1", time.Now().Add(-48*time.Hour))
	f.pool.ScanOnce()

	f.pool.Start()
	defer f.pool.Stop(time.Second)

	// MaxRetries=2: two attempts, then the job fails permanently.
	waitFor(t, "job exhaustion", func() bool {
		stats, _ := f.jobs.Stats(context.Background())
		return stats.Failed == 1
	})

	job, err := f.jobs.GetByStationUUID(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Attempts != 2 || job.Status != domain.JobStatusFailed {
		t.Errorf("job = %+v", job)
	}
}

func TestPoolStopGraceful(t *testing.T) {
	f := newPoolFixture(t, validator.CheckResult{IsValid: true})
	f.pool.Start()

	if err := f.pool.Stop(2 * time.Second); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
