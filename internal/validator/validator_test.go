package validator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

type stubAccessibility struct {
	fn func(ctx context.Context, url string) CheckResult
}

func (s *stubAccessibility) CheckAccessibility(ctx context.Context, url string, _ time.Duration) CheckResult {
	return s.fn(ctx, url)
}

type stubMedia struct {
	fn func(ctx context.Context, url string) CheckResult
}

func (s *stubMedia) CheckCompatibility(ctx context.Context, url string, _ time.Duration) CheckResult {
	return s.fn(ctx, url)
}

func okResult(context.Context, string) CheckResult { return CheckResult{IsValid: true} }

func errResult(verr *domain.ValidationError) func(context.Context, string) CheckResult {
	return func(context.Context, string) CheckResult { return CheckResult{Err: verr} }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStubValidator(cfg Config, acc, media func(ctx context.Context, url string) CheckResult) *Validator {
	return New(cfg, "tunewave-test/1.0", 1000, 1000, testLogger(),
		WithAccessibilityChecker(&stubAccessibility{fn: acc}),
		WithMediaChecker(&stubMedia{fn: media}),
	)
}

func makeStations(n int) []domain.Station {
	stations := make([]domain.Station, n)
	for i := range stations {
		stations[i] = domain.Station{
			UUID:      domain.StationUUID(fmt.Sprintf("uuid-%02d", i)),
			Name:      fmt.Sprintf("Station %d", i),
			StreamURL: fmt.Sprintf("http://stream.example/%02d", i),
		}
	}
	return stations
}

func TestValidateStreamBothChecksPass(t *testing.T) {
	v := newStubValidator(DefaultConfig(), okResult, okResult)

	res := v.ValidateStream(context.Background(), "http://stream.example/a")
	if !res.IsValid {
		t.Fatalf("expected valid, got %+v", res.Err)
	}
	if res.Cached {
		t.Error("first result must not be marked cached")
	}
	if res.LastChecked.IsZero() {
		t.Error("LastChecked not set")
	}
}

func TestValidateStreamMediaVetoes(t *testing.T) {
	mediaErr := &domain.ValidationError{Kind: domain.ErrorKindAudioCompat, Message: "unsupported format"}
	v := newStubValidator(DefaultConfig(), okResult, errResult(mediaErr))

	res := v.ValidateStream(context.Background(), "http://stream.example/a")
	if res.IsValid {
		t.Fatal("media rejection must make the result invalid")
	}
	if res.Err != mediaErr {
		t.Errorf("Err = %+v, want the media error", res.Err)
	}
}

func TestValidateStreamHTTPErrorSkipsMedia(t *testing.T) {
	httpErr := &domain.ValidationError{Kind: domain.ErrorKindHTTP, Message: "HTTP 404", HTTPStatus: 404}
	var mediaCalls atomic.Int32
	v := newStubValidator(DefaultConfig(), errResult(httpErr), func(ctx context.Context, url string) CheckResult {
		mediaCalls.Add(1)
		return CheckResult{IsValid: true}
	})

	res := v.ValidateStream(context.Background(), "http://stream.example/a")
	if res.IsValid {
		t.Fatal("HTTP error is authoritative")
	}
	if res.Err != httpErr {
		t.Errorf("Err = %+v, want the accessibility error", res.Err)
	}
	if mediaCalls.Load() != 0 {
		t.Error("media check must not run after a clean HTTP error")
	}
}

func TestValidateStreamTimeoutSkipsMedia(t *testing.T) {
	tErr := &domain.ValidationError{Kind: domain.ErrorKindTimeout, Message: "probe deadline exceeded", Retryable: true}
	var mediaCalls atomic.Int32
	v := newStubValidator(DefaultConfig(), errResult(tErr), func(ctx context.Context, url string) CheckResult {
		mediaCalls.Add(1)
		return CheckResult{IsValid: true}
	})

	res := v.ValidateStream(context.Background(), "http://stream.example/a")
	if res.IsValid || res.Err != tErr {
		t.Fatalf("got (%v, %+v), want the timeout error", res.IsValid, res.Err)
	}
	if mediaCalls.Load() != 0 {
		t.Error("media check must not run after a timeout")
	}
}

func TestValidateStreamNetworkErrorFallsBackToMedia(t *testing.T) {
	netErr := &domain.ValidationError{Kind: domain.ErrorKindNetwork, Message: "connection reset", Retryable: true}

	t.Run("media rescues the stream", func(t *testing.T) {
		v := newStubValidator(DefaultConfig(), errResult(netErr), okResult)
		res := v.ValidateStream(context.Background(), "http://stream.example/a")
		if !res.IsValid {
			t.Fatalf("expected media verdict to win, got %+v", res.Err)
		}
	})

	t.Run("media failure is the reported error", func(t *testing.T) {
		mediaErr := &domain.ValidationError{Kind: domain.ErrorKindAudioCompat, Message: "unsupported format"}
		v := newStubValidator(DefaultConfig(), errResult(netErr), errResult(mediaErr))
		res := v.ValidateStream(context.Background(), "http://stream.example/a")
		if res.IsValid {
			t.Fatal("expected invalid")
		}
		if res.Err != mediaErr {
			t.Errorf("Err = %+v, want the media error from the fallback check", res.Err)
		}
	})
}

func TestValidateStreamCaching(t *testing.T) {
	var accCalls atomic.Int32
	v := newStubValidator(DefaultConfig(), func(ctx context.Context, url string) CheckResult {
		accCalls.Add(1)
		return CheckResult{IsValid: true}
	}, okResult)

	first := v.ValidateStream(context.Background(), "http://stream.example/a")
	second := v.ValidateStream(context.Background(), "http://stream.example/a")

	if first.Cached {
		t.Error("first call must not be cached")
	}
	if !second.Cached {
		t.Error("second call must be served from cache")
	}
	if second.IsValid != first.IsValid {
		t.Error("cached result must match the original verdict")
	}
	if accCalls.Load() != 1 {
		t.Errorf("accessibility ran %d times, want 1", accCalls.Load())
	}
}

func TestValidateStreamFailureCachedToo(t *testing.T) {
	httpErr := &domain.ValidationError{Kind: domain.ErrorKindHTTP, Message: "HTTP 404", HTTPStatus: 404}
	var accCalls atomic.Int32
	v := newStubValidator(DefaultConfig(), func(ctx context.Context, url string) CheckResult {
		accCalls.Add(1)
		return CheckResult{Err: httpErr}
	}, okResult)

	v.ValidateStream(context.Background(), "http://stream.example/a")
	second := v.ValidateStream(context.Background(), "http://stream.example/a")

	if !second.Cached {
		t.Error("failed results are cached as well, just with a shorter lifetime")
	}
	if accCalls.Load() != 1 {
		t.Errorf("accessibility ran %d times, want 1", accCalls.Load())
	}
}

func TestValidateStreamCacheDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCache = false

	var accCalls atomic.Int32
	v := newStubValidator(cfg, func(ctx context.Context, url string) CheckResult {
		accCalls.Add(1)
		return CheckResult{IsValid: true}
	}, okResult)

	v.ValidateStream(context.Background(), "http://stream.example/a")
	res := v.ValidateStream(context.Background(), "http://stream.example/a")

	if res.Cached {
		t.Error("no result may be served from cache when caching is off")
	}
	if accCalls.Load() != 2 {
		t.Errorf("accessibility ran %d times, want 2", accCalls.Load())
	}
}

func TestValidateStreamCancelledContextNotCached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	v := newStubValidator(DefaultConfig(), func(ctx context.Context, url string) CheckResult {
		cancel()
		return CheckResult{Err: &domain.ValidationError{Kind: domain.ErrorKindTimeout, Message: "probe deadline exceeded"}}
	}, okResult)

	v.ValidateStream(ctx, "http://stream.example/a")
	if v.CacheSize() != 0 {
		t.Error("results produced under a cancelled context must not be cached")
	}
}

func TestClearCache(t *testing.T) {
	v := newStubValidator(DefaultConfig(), okResult, okResult)
	v.ValidateStream(context.Background(), "http://stream.example/a")
	if v.CacheSize() != 1 {
		t.Fatalf("CacheSize = %d, want 1", v.CacheSize())
	}

	v.ClearCache()

	if v.CacheSize() != 0 {
		t.Errorf("CacheSize = %d after clear, want 0", v.CacheSize())
	}
	res := v.ValidateStream(context.Background(), "http://stream.example/a")
	if res.Cached {
		t.Error("post-clear validation must re-probe")
	}
}

func TestUpdateConfig(t *testing.T) {
	v := newStubValidator(DefaultConfig(), okResult, okResult)

	newTimeout := 2 * time.Second
	newBatch := 10
	got := v.UpdateConfig(ConfigPatch{Timeout: &newTimeout, BatchSize: &newBatch})

	if got.Timeout != newTimeout || got.BatchSize != newBatch {
		t.Errorf("got %+v", got)
	}
	if !got.EnableCache || got.CacheTTL != 24*time.Hour {
		t.Error("unpatched fields must keep their values")
	}

	bad := -1
	got = v.UpdateConfig(ConfigPatch{BatchSize: &bad})
	if got.BatchSize != DefaultConfig().BatchSize {
		t.Errorf("invalid batch size must normalize to default, got %d", got.BatchSize)
	}
}

func TestValidateStationsStreamingAllResolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2

	// Even-numbered stations pass, odd fail.
	v := newStubValidator(cfg, func(ctx context.Context, url string) CheckResult {
		var i int
		fmt.Sscanf(url, "http://stream.example/%02d", &i)
		if i%2 == 0 {
			return CheckResult{IsValid: true}
		}
		return CheckResult{Err: &domain.ValidationError{Kind: domain.ErrorKindHTTP, Message: "HTTP 404", HTTPStatus: 404}}
	}, okResult)

	stations := makeStations(5)

	var mu sync.Mutex
	var states []domain.StationValidationState
	var progress []domain.ValidationProgress

	res := v.ValidateStationsStreaming(context.Background(), stations,
		func(s domain.StationValidationState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		func(p domain.ValidationProgress) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		})

	if !res.Completed {
		t.Error("uncancelled run must complete")
	}
	if len(res.PendingStations) != 0 {
		t.Errorf("PendingStations = %v, want none", res.PendingStations)
	}
	if len(res.ValidStations) != 3 || len(res.InvalidStations) != 2 {
		t.Errorf("valid/invalid = %d/%d, want 3/2", len(res.ValidStations), len(res.InvalidStations))
	}

	// Every station gets exactly one validating and one terminal emission.
	validating := map[domain.StationUUID]int{}
	terminal := map[domain.StationUUID]int{}
	for _, s := range states {
		if s.Status == domain.StatusValidating {
			validating[s.StationUUID]++
		} else if s.Status.Terminal() {
			terminal[s.StationUUID]++
		}
	}
	for _, st := range stations {
		if validating[st.UUID] != 1 || terminal[st.UUID] != 1 {
			t.Errorf("station %s: validating=%d terminal=%d, want 1/1", st.UUID, validating[st.UUID], terminal[st.UUID])
		}
	}

	// Progress is monotonic in resolved count and ends at 100%.
	prevDone := -1
	for _, p := range progress {
		done := p.Validated + p.Failed
		if done < prevDone {
			t.Fatalf("resolved count went backwards: %d after %d", done, prevDone)
		}
		prevDone = done
	}
	last := progress[len(progress)-1]
	if last.PercentComplete != 100 || last.InProgress != 0 {
		t.Errorf("final progress = %+v, want 100%% with none in flight", last)
	}
	if res.Progress.Validated != 3 || res.Progress.Failed != 2 {
		t.Errorf("final counters = %+v", res.Progress)
	}
}

func TestValidateStationsStreamingRespectsBatchSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.EnableCache = false

	var inFlight, peak atomic.Int32
	v := newStubValidator(cfg, func(ctx context.Context, url string) CheckResult {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return CheckResult{IsValid: true}
	}, okResult)

	v.ValidateStationsStreaming(context.Background(), makeStations(6), nil, nil)

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want at most the batch size (2)", got)
	}
}

func TestValidateStationsStreamingCancellation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.EnableCache = false

	firstBatchDone := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32

	// The first batch resolves immediately; everything after it blocks
	// until the run is cancelled.
	v := newStubValidator(cfg, func(ctx context.Context, url string) CheckResult {
		n := calls.Add(1)
		if n == 2 {
			once.Do(func() { close(firstBatchDone) })
		}
		if n > 2 {
			<-ctx.Done()
			return CheckResult{Err: &domain.ValidationError{Kind: domain.ErrorKindTimeout, Message: "probe deadline exceeded"}}
		}
		return CheckResult{IsValid: true}
	}, okResult)

	done := make(chan domain.BatchValidationResult, 1)
	go func() {
		done <- v.ValidateStationsStreaming(context.Background(), makeStations(10), nil, nil)
	}()

	<-firstBatchDone
	v.CancelValidation()
	v.CancelValidation() // idempotent

	res := <-done

	if res.Completed {
		t.Error("cancelled run must not report completed")
	}
	if len(res.PendingStations) == 0 {
		t.Error("cancelled run must leave stations pending")
	}
	if got := len(res.ValidStations) + len(res.InvalidStations) + len(res.PendingStations); got != 10 {
		t.Errorf("station accounting off: %d total, want 10", got)
	}
}

func TestValidateStationsStreamingParentContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.EnableCache = false

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	v := newStubValidator(cfg, func(_ context.Context, url string) CheckResult {
		if calls.Add(1) == 1 {
			cancel()
		}
		return CheckResult{IsValid: true}
	}, okResult)

	res := v.ValidateStationsStreaming(ctx, makeStations(5), nil, nil)

	if res.Completed {
		t.Error("run under a cancelled parent context must not complete")
	}
	if calls.Load() > 2 {
		t.Errorf("validation kept starting stations after cancel: %d calls", calls.Load())
	}
}

func TestValidateStationsStreamingEmptyInput(t *testing.T) {
	v := newStubValidator(DefaultConfig(), okResult, okResult)

	res := v.ValidateStationsStreaming(context.Background(), nil, nil, nil)
	if !res.Completed {
		t.Error("empty input completes trivially")
	}
	if res.Progress.Total != 0 || res.Progress.PercentComplete != 0 {
		t.Errorf("progress = %+v", res.Progress)
	}
}

func TestValidateStationsStreamingPanicIsolated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 3
	cfg.EnableCache = false

	v := newStubValidator(cfg, func(_ context.Context, url string) CheckResult {
		if url == "http://stream.example/01" {
			panic("checker bug")
		}
		return CheckResult{IsValid: true}
	}, okResult)

	var mu sync.Mutex
	terminal := map[domain.StationUUID]domain.ValidationStatus{}
	res := v.ValidateStationsStreaming(context.Background(), makeStations(3),
		func(s domain.StationValidationState) {
			if s.Status.Terminal() {
				mu.Lock()
				terminal[s.StationUUID] = s.Status
				mu.Unlock()
			}
		}, nil)

	if !res.Completed {
		t.Fatal("a panicking station must not abort the batch")
	}
	if len(res.ValidStations) != 2 || len(res.InvalidStations) != 1 {
		t.Errorf("valid/invalid = %d/%d, want 2/1", len(res.ValidStations), len(res.InvalidStations))
	}
	if terminal["uuid-01"] != domain.StatusInvalid {
		t.Errorf("panicking station state = %q, want invalid", terminal["uuid-01"])
	}
}

func TestCancelValidationWithoutRun(t *testing.T) {
	v := newStubValidator(DefaultConfig(), okResult, okResult)
	v.CancelValidation() // must not panic

	// A later run is unaffected by the earlier no-op cancel.
	res := v.ValidateStationsStreaming(context.Background(), makeStations(2), nil, nil)
	if !res.Completed {
		t.Error("run after a stray cancel must still complete")
	}
}
