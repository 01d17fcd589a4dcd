package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tunewave/tunewave/internal/api/handler"
	mw "github.com/tunewave/tunewave/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	stationHandler *handler.StationHandler,
	validationHandler *handler.ValidationHandler,
	eventHandler *handler.EventHandler,
	favoritesHandler *handler.FavoritesHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(5 * time.Minute))

	// CORS for browser players
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey))

		// System stats
		r.Get("/stats", healthHandler.Stats)

		// Station browsing
		r.Get("/stations/search", stationHandler.Search)
		r.Get("/stations/top", stationHandler.Top)
		r.Get("/stations/states", stationHandler.States)
		r.Get("/stations/{stationUUID}/state", stationHandler.State)
		r.Post("/stations/{stationUUID}/play", stationHandler.Play)

		// Stream validation
		r.Post("/validate", validationHandler.ValidateURL)
		r.Post("/stations/validate", validationHandler.ValidateBatch)
		r.Post("/stations/validate/cancel", validationHandler.Cancel)
		r.Get("/validator/config", validationHandler.GetConfig)
		r.Patch("/validator/config", validationHandler.UpdateConfig)
		r.Post("/validator/cache/clear", validationHandler.ClearCache)

		// Validation events
		r.Get("/events", eventHandler.List)
		r.Get("/events/recent", eventHandler.Recent)
		r.Get("/events/stats", eventHandler.Stats)
		r.Get("/events/stream", eventHandler.Stream)

		// Favorites and listening history
		r.Get("/favorites", favoritesHandler.List)
		r.Post("/favorites", favoritesHandler.Add)
		r.Delete("/favorites/{stationUUID}", favoritesHandler.Remove)
		r.Get("/recents", stationHandler.Recents)
	})

	return r
}
