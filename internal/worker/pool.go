package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/repository"
	"github.com/tunewave/tunewave/internal/storage"
	"github.com/tunewave/tunewave/internal/validator"
)

// ErrShutdownTimeout is returned when workers don't stop within timeout.
var ErrShutdownTimeout = errors.New("worker pool shutdown timed out")

// Pool manages background revalidation of saved stations: a scheduler
// scans for favorites whose last check has gone stale and enqueues jobs;
// workers drain the queue and refresh each station's verdict.
type Pool struct {
	workers      int
	pollInterval time.Duration
	scanInterval time.Duration
	maxRetries   int
	staleAfter   time.Duration

	jobRepo   repository.JobRepository
	states    repository.StateRepository
	favorites *storage.FavoritesStore
	validator *validator.Validator
	logger    *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker pool configuration.
type Config struct {
	Workers      int
	PollInterval time.Duration
	ScanInterval time.Duration
	MaxRetries   int

	// StaleAfter is how old a favorite's last validation may be before
	// the scheduler queues a revalidation.
	StaleAfter time.Duration
}

// NewPool creates a new worker pool.
func NewPool(
	cfg Config,
	jobRepo repository.JobRepository,
	states repository.StateRepository,
	favorites *storage.FavoritesStore,
	v *validator.Validator,
	logger *slog.Logger,
) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 15 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:      cfg.Workers,
		pollInterval: cfg.PollInterval,
		scanInterval: cfg.ScanInterval,
		maxRetries:   cfg.MaxRetries,
		staleAfter:   cfg.StaleAfter,
		jobRepo:      jobRepo,
		states:       states,
		favorites:    favorites,
		validator:    v,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the workers and the stale-favorite scheduler.
func (p *Pool) Start() {
	p.logger.Info("starting revalidation pool", "workers", p.workers, "scan_interval", p.scanInterval)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.scheduler()
}

// Stop gracefully stops all workers.
func (p *Pool) Stop(timeout time.Duration) error {
	p.logger.Info("stopping revalidation pool")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("revalidation pool stopped gracefully")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Info("worker started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			logger.Info("worker stopping")
			return
		case <-ticker.C:
			p.processNextJob(logger)
		}
	}
}

func (p *Pool) scheduler() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.scanInterval)
	defer ticker.Stop()

	// One scan right away so a restart doesn't wait a full interval.
	p.ScanOnce()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.ScanOnce()
		}
	}
}

// ScanOnce enqueues a revalidation job for every favorite whose last
// check is older than the staleness window. Returns how many were queued.
func (p *Pool) ScanOnce() int {
	cutoff := time.Now().Add(-p.staleAfter)
	stale := p.favorites.StaleBefore(cutoff)

	queued := 0
	for _, fav := range stale {
		if p.jobRepo.HasPending(p.ctx, fav.Station.UUID) {
			continue
		}
		job := domain.NewJob(
			domain.JobID("job_"+uuid.New().String()[:8]),
			fav.Station.UUID,
			fav.Station.EffectiveURL(),
			domain.JobReasonStaleFavorite,
			p.maxRetries,
		)
		if err := p.jobRepo.Enqueue(p.ctx, job); err != nil {
			p.logger.Error("failed to enqueue revalidation", "station", fav.Station.UUID, "error", err)
			continue
		}
		queued++
	}

	if queued > 0 {
		p.logger.Info("queued stale favorites for revalidation", "count", queued)
	}
	return queued
}

func (p *Pool) processNextJob(logger *slog.Logger) {
	job, err := p.jobRepo.Dequeue(p.ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNoJobs) {
			logger.Error("failed to dequeue job", "error", err)
		}
		return
	}

	logger = logger.With("job_id", job.ID, "station_uuid", job.StationUUID)
	logger.Info("revalidating station")

	job.MarkProcessing()
	if err := p.jobRepo.Update(p.ctx, job); err != nil {
		logger.Error("failed to update job status", "error", err)
		return
	}

	res := p.validator.ValidateStream(p.ctx, job.StreamURL)

	// A cancelled shutdown context invalidates the verdict; requeue
	// semantics don't matter at that point, just stop cleanly.
	if p.ctx.Err() != nil {
		return
	}

	status := domain.StatusInvalid
	if res.IsValid {
		status = domain.StatusValid
	}
	if err := p.states.Set(p.ctx, domain.StationValidationState{
		StationUUID:  job.StationUUID,
		Status:       status,
		Error:        res.Err,
		ResponseTime: res.ResponseTime,
		LastChecked:  res.LastChecked,
	}); err != nil {
		logger.Error("failed to record station state", "error", err)
	}
	if err := p.favorites.MarkValidated(job.StationUUID, res.IsValid, res.LastChecked); err != nil {
		logger.Error("failed to update favorite", "error", err)
	}

	// A retryable failure spends a retry; everything else settles the job.
	if !res.IsValid && res.Err != nil && res.Err.Retryable {
		p.handleJobFailure(logger, job, res.Err)
		return
	}

	job.MarkCompleted()
	if err := p.jobRepo.Update(p.ctx, job); err != nil {
		logger.Error("failed to mark job completed", "error", err)
	}

	logger.Info("revalidation finished", "valid", res.IsValid)
}

func (p *Pool) handleJobFailure(logger *slog.Logger, job *domain.Job, cause error) {
	job.MarkFailed(fmt.Sprintf("%v", cause))

	if job.CanRetry() {
		logger.Warn("revalidation failed, will retry",
			"error", cause,
			"attempt", job.Attempts,
			"max_retries", job.MaxRetries,
		)
	} else {
		logger.Error("revalidation failed permanently",
			"error", cause,
			"attempts", job.Attempts,
		)
	}

	if updateErr := p.jobRepo.Update(p.ctx, job); updateErr != nil {
		logger.Error("failed to update job after failure", "error", updateErr)
	}
}
