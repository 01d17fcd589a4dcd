package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tunewave/tunewave/internal/api"
	"github.com/tunewave/tunewave/internal/api/handler"
	"github.com/tunewave/tunewave/internal/config"
	"github.com/tunewave/tunewave/internal/directory"
	"github.com/tunewave/tunewave/internal/repository"
	"github.com/tunewave/tunewave/internal/service"
	"github.com/tunewave/tunewave/internal/storage"
	"github.com/tunewave/tunewave/internal/validator"
	"github.com/tunewave/tunewave/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tunewave %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tunewave",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure the data directory exists
	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		logger.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}

	// Initialize dependencies
	dirClient := directory.NewHTTPClient(directory.Config{
		Servers:   cfg.Directory.Servers,
		Timeout:   cfg.Directory.Timeout,
		UserAgent: cfg.Directory.UserAgent,
	}, logger)

	v := validator.New(validator.Config{
		Timeout:     cfg.Validator.Timeout,
		BatchSize:   cfg.Validator.BatchSize,
		EnableCache: cfg.Validator.EnableCache,
		CacheTTL:    cfg.Validator.CacheTTL,
	}, cfg.Validator.UserAgent, cfg.Validator.ProbeRate, cfg.Validator.ProbeBurst, logger)

	stateRepo := repository.NewInMemoryStateRepository()
	jobRepo := repository.NewInMemoryJobRepository()

	favorites, err := storage.NewFavoritesStore(filepath.Join(cfg.Storage.DataDir, "favorites.json"))
	if err != nil {
		logger.Error("failed to open favorites store", "error", err)
		os.Exit(1)
	}
	recents := storage.NewRecentsLog(filepath.Join(cfg.Storage.DataDir, "recents.jsonl"), cfg.Storage.RecentsMax)

	// Initialize services
	eventSvc, err := service.NewEventService(service.EventServiceConfig{
		RingBufferSize:  cfg.Events.RingBufferSize,
		PersistToSQLite: cfg.Events.PersistSQLite,
		SQLitePath:      cfg.Events.SQLitePath,
		RetentionDays:   cfg.Events.RetentionDays,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize event service", "error", err)
		os.Exit(1)
	}

	stationSvc := service.NewStationService(dirClient, v, stateRepo, eventSvc, favorites, recents, logger)

	// Initialize handlers
	stationHandler := handler.NewStationHandler(stationSvc, logger)
	validationHandler := handler.NewValidationHandler(stationSvc, logger)
	eventHandler := handler.NewEventHandler(eventSvc, logger)
	favoritesHandler := handler.NewFavoritesHandler(stationSvc, logger)
	healthHandler := handler.NewHealthHandler(jobRepo, stationSvc, eventSvc, cfg.Storage.DataDir)

	// Setup router
	router := api.NewRouter(
		stationHandler,
		validationHandler,
		eventHandler,
		favoritesHandler,
		healthHandler,
		cfg.Server.APIKey,
	)

	// Initialize background revalidation pool
	pool := worker.NewPool(
		worker.Config{
			Workers:      cfg.Worker.Count,
			PollInterval: cfg.Worker.PollInterval,
			ScanInterval: cfg.Worker.ScanInterval,
			MaxRetries:   cfg.Worker.MaxRetries,
			StaleAfter:   cfg.Worker.StaleAfter,
		},
		jobRepo,
		stateRepo,
		favorites,
		v,
		logger,
	)
	pool.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop workers (allow in-flight revalidations to complete)
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	// Flush the event stream last so shutdown events persist
	if err := eventSvc.Close(); err != nil {
		logger.Error("event service close error", "error", err)
	}

	logger.Info("shutdown complete")
}
