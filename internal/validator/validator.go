package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

// StationCallback receives per-station state transitions: once when a
// station begins validating and once when it reaches a terminal state.
type StationCallback func(state domain.StationValidationState)

// ProgressCallback receives the recomputed batch aggregate after every
// station transition. Validated+Failed never decreases within one run.
type ProgressCallback func(p domain.ValidationProgress)

// Validator composes the accessibility and media-compatibility checks,
// owns the result cache and the in-flight batch cancellation state.
type Validator struct {
	accessibility AccessibilityChecker
	media         MediaChecker
	cache         *resultCache
	logger        *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	runMu   sync.Mutex
	current *runHandle
}

type runHandle struct {
	cancel context.CancelFunc
}

// Option customizes a Validator; used mainly to substitute checkers.
type Option func(*Validator)

// WithAccessibilityChecker replaces the default HTTP accessibility checker.
func WithAccessibilityChecker(c AccessibilityChecker) Option {
	return func(v *Validator) { v.accessibility = c }
}

// WithMediaChecker replaces the default stream-probing media checker.
func WithMediaChecker(m MediaChecker) Option {
	return func(v *Validator) { v.media = m }
}

// New creates a Validator. Checkers default to the HTTP probe and the
// stream prober with the given user agent and probe rate.
func New(cfg Config, userAgent string, probeRate float64, probeBurst int, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		accessibility: NewHTTPAccessibilityChecker(userAgent, probeRate, probeBurst),
		media:         NewStreamProber(userAgent),
		cache:         newResultCache(),
		logger:        logger,
		cfg:           cfg.normalize(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// GetConfig returns a snapshot of the current configuration.
func (v *Validator) GetConfig() Config {
	v.cfgMu.RLock()
	defer v.cfgMu.RUnlock()
	return v.cfg
}

// UpdateConfig applies a partial configuration update and returns the
// resulting configuration. The new values apply to work started after the
// call; the failure-path cache TTL is fixed and unaffected.
func (v *Validator) UpdateConfig(patch ConfigPatch) Config {
	v.cfgMu.Lock()
	defer v.cfgMu.Unlock()
	v.cfg = patch.apply(v.cfg)
	return v.cfg
}

// ClearCache drops all cached validation results.
func (v *Validator) ClearCache() {
	v.cache.clear()
}

// CacheSize reports the number of live cache entries.
func (v *Validator) CacheSize() int {
	return v.cache.size()
}

// ValidateStream validates a single stream URL: cache lookup, then the
// accessibility probe, then the media-compatibility check.
//
// When the accessibility probe fails with a connection-level NetworkError
// (as opposed to a clean HTTP error or a timeout) the media check is run
// alone and its verdict trusted: some streams answer a player even when a
// bare network probe is blocked. If that fallback also fails, the media
// error is the one reported.
func (v *Validator) ValidateStream(ctx context.Context, url string) domain.ValidationResult {
	cfg := v.GetConfig()

	if cfg.EnableCache {
		if res, ok := v.cache.get(url); ok {
			res.Cached = true
			return res
		}
	}

	res := v.runChecks(ctx, url, cfg)

	// A result produced under a cancelled context reflects the
	// cancellation, not the stream; never cache it.
	if cfg.EnableCache && ctx.Err() == nil {
		v.cache.put(res, cfg.CacheTTL)
	}
	return res
}

func (v *Validator) runChecks(ctx context.Context, url string, cfg Config) domain.ValidationResult {
	start := time.Now()

	acc := v.accessibility.CheckAccessibility(ctx, url, cfg.Timeout)

	var verdict CheckResult
	switch {
	case acc.IsValid:
		// Reachable; the stream is valid only if the media check also
		// passes, and its error is the one reported.
		verdict = v.media.CheckCompatibility(ctx, url, cfg.Timeout)
	case acc.Err != nil && acc.Err.Kind == domain.ErrorKindNetwork:
		v.logger.Debug("accessibility probe blocked, falling back to media check", "url", url, "error", acc.Err.Message)
		verdict = v.media.CheckCompatibility(ctx, url, cfg.Timeout)
	default:
		verdict = acc
	}

	return domain.ValidationResult{
		URL:          url,
		IsValid:      verdict.IsValid,
		Err:          verdict.Err,
		ResponseTime: time.Since(start),
		LastChecked:  time.Now(),
	}
}

// ValidateStationsStreaming validates stations in fixed-size concurrent
// batches, pushing a Validating transition the moment each station's check
// starts and a terminal transition the moment it resolves. Stations within
// a batch report independently; only batch-to-batch sequencing is
// serialized. Cancellation is checked before each station and each batch;
// once signalled no new work starts and unresolved stations are returned
// in PendingStations with Completed=false.
func (v *Validator) ValidateStationsStreaming(ctx context.Context, stations []domain.Station, onStation StationCallback, onProgress ProgressCallback) domain.BatchValidationResult {
	cfg := v.GetConfig()

	runCtx, cancel := context.WithCancel(ctx)
	handle := &runHandle{cancel: cancel}

	v.runMu.Lock()
	v.current = handle
	v.runMu.Unlock()

	defer func() {
		cancel()
		v.runMu.Lock()
		if v.current == handle {
			v.current = nil
		}
		v.runMu.Unlock()
	}()

	run := newBatchRun(stations, onStation, onProgress)

batches:
	for start := 0; start < len(stations); start += cfg.BatchSize {
		if runCtx.Err() != nil {
			break
		}
		end := start + cfg.BatchSize
		if end > len(stations) {
			end = len(stations)
		}

		var wg sync.WaitGroup
		for _, st := range stations[start:end] {
			if runCtx.Err() != nil {
				wg.Wait()
				break batches
			}

			st := st
			run.markValidating(st.UUID)

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					// A fault in one station's validation must never
					// abort its siblings or the batch.
					if r := recover(); r != nil {
						v.logger.Error("station validation panicked", "station", st.UUID, "panic", r)
						run.resolve(runCtx, st.UUID, domain.ValidationResult{
							URL: st.EffectiveURL(),
							Err: &domain.ValidationError{
								Kind:      domain.ErrorKindNetwork,
								Message:   fmt.Sprintf("validation failed unexpectedly: %v", r),
								Retryable: false,
							},
							LastChecked: time.Now(),
						})
					}
				}()

				res := v.ValidateStream(runCtx, st.EffectiveURL())
				run.resolve(runCtx, st.UUID, res)
			}()
		}
		// Wait for all, ignoring individual failures; batch N+1 does not
		// start until batch N has fully settled.
		wg.Wait()
	}

	return run.finalResult()
}

// CancelValidation signals the current batch's cancellation token.
// Idempotent, and a no-op when no batch is in flight.
func (v *Validator) CancelValidation() {
	v.runMu.Lock()
	defer v.runMu.Unlock()
	if v.current != nil {
		v.current.cancel()
	}
}

// batchRun tracks the per-station states and aggregate counters of one
// streaming run. The mutex also serializes callbacks, so observers see
// monotonic progress even when stations resolve concurrently.
type batchRun struct {
	mu         sync.Mutex
	order      []domain.StationUUID
	state      map[domain.StationUUID]domain.ValidationStatus
	valid      []domain.StationUUID
	invalid    []domain.StationUUID
	inProgress int
	onStation  StationCallback
	onProgress ProgressCallback
}

func newBatchRun(stations []domain.Station, onStation StationCallback, onProgress ProgressCallback) *batchRun {
	r := &batchRun{
		order:      make([]domain.StationUUID, 0, len(stations)),
		state:      make(map[domain.StationUUID]domain.ValidationStatus, len(stations)),
		onStation:  onStation,
		onProgress: onProgress,
	}
	for _, st := range stations {
		r.order = append(r.order, st.UUID)
		r.state[st.UUID] = domain.StatusUnknown
	}
	return r
}

func (r *batchRun) markValidating(uuid domain.StationUUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state[uuid] = domain.StatusValidating
	r.inProgress++

	r.emitStation(domain.StationValidationState{
		StationUUID: uuid,
		Status:      domain.StatusValidating,
	})
	r.emitProgress()
}

// resolve records a terminal state for uuid. Resolutions observed after
// cancellation are discarded so the station remains pending.
func (r *batchRun) resolve(ctx context.Context, uuid domain.StationUUID, res domain.ValidationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if r.state[uuid].Terminal() {
		return
	}

	r.inProgress--
	status := domain.StatusInvalid
	if res.IsValid {
		status = domain.StatusValid
		r.valid = append(r.valid, uuid)
	} else {
		r.invalid = append(r.invalid, uuid)
	}
	r.state[uuid] = status

	r.emitStation(domain.StationValidationState{
		StationUUID:  uuid,
		Status:       status,
		Error:        res.Err,
		ResponseTime: res.ResponseTime,
		LastChecked:  res.LastChecked,
	})
	r.emitProgress()
}

func (r *batchRun) emitStation(state domain.StationValidationState) {
	if r.onStation != nil {
		r.onStation(state)
	}
}

func (r *batchRun) emitProgress() {
	if r.onProgress != nil {
		r.onProgress(r.progressLocked())
	}
}

func (r *batchRun) progressLocked() domain.ValidationProgress {
	return domain.NewProgress(len(r.order), len(r.valid), len(r.invalid), r.inProgress)
}

func (r *batchRun) finalResult() domain.BatchValidationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []domain.StationUUID
	for _, uuid := range r.order {
		if !r.state[uuid].Terminal() {
			pending = append(pending, uuid)
		}
	}

	return domain.BatchValidationResult{
		ValidStations:   append([]domain.StationUUID(nil), r.valid...),
		InvalidStations: append([]domain.StationUUID(nil), r.invalid...),
		PendingStations: pending,
		Progress:        r.progressLocked(),
		Completed:       len(pending) == 0,
	}
}
