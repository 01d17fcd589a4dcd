package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/service"
	"github.com/tunewave/tunewave/internal/validator"
)

// ValidationHandler handles stream validation HTTP requests.
type ValidationHandler struct {
	stationSvc *service.StationService
	logger     *slog.Logger
}

// NewValidationHandler creates a new validation handler.
func NewValidationHandler(stationSvc *service.StationService, logger *slog.Logger) *ValidationHandler {
	return &ValidationHandler{
		stationSvc: stationSvc,
		logger:     logger,
	}
}

// ValidateURLRequest is the JSON request body for single-URL validation.
type ValidateURLRequest struct {
	URL string `json:"url"`
}

// ValidateURL handles POST /api/v1/validate
func (h *ValidationHandler) ValidateURL(w http.ResponseWriter, r *http.Request) {
	var req ValidateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.stationSvc.ValidateURL(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStreamURL) {
			h.writeError(w, http.StatusBadRequest, "invalid stream URL")
			return
		}
		h.logger.Error("validate url failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to validate stream")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ValidateBatchRequest is the JSON request body for batch validation.
// Either StationUUIDs (resolved through the directory) or Stations
// (inline records) must be provided.
type ValidateBatchRequest struct {
	StationUUIDs []string         `json:"station_uuids,omitempty"`
	Stations     []domain.Station `json:"stations,omitempty"`
}

// ValidateBatch handles POST /api/v1/stations/validate
// Blocks until the batch finishes or is cancelled; transitions stream out
// through /api/v1/events while it runs.
func (h *ValidationHandler) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req ValidateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.StationUUIDs) == 0 && len(req.Stations) == 0 {
		h.writeError(w, http.StatusBadRequest, "no stations provided")
		return
	}

	var outcome *service.BatchOutcome
	var err error
	if len(req.Stations) > 0 {
		outcome, err = h.stationSvc.ValidateStations(r.Context(), req.Stations)
	} else {
		uuids := make([]domain.StationUUID, 0, len(req.StationUUIDs))
		for _, id := range req.StationUUIDs {
			uuids = append(uuids, domain.StationUUID(id))
		}
		outcome, err = h.stationSvc.ValidateStationsByUUID(r.Context(), uuids)
	}

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidationInFlight):
			h.writeError(w, http.StatusConflict, "a batch validation is already running")
		case errors.Is(err, domain.ErrStationNotFound):
			h.writeError(w, http.StatusNotFound, "station not found")
		case errors.Is(err, domain.ErrNoDirectoryServers):
			h.writeError(w, http.StatusBadGateway, "station directory unavailable")
		default:
			h.logger.Error("batch validation failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to validate stations")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, outcome)
}

// Cancel handles POST /api/v1/stations/validate/cancel
// Idempotent: cancelling with no batch in flight succeeds.
func (h *ValidationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.stationSvc.CancelValidation()
	h.writeJSON(w, http.StatusOK, map[string]bool{
		"cancelled": true,
		"in_flight": h.stationSvc.ValidationInFlight(),
	})
}

// ConfigResponse is the JSON shape of the validator configuration.
type ConfigResponse struct {
	TimeoutMS   int64 `json:"timeout_ms"`
	BatchSize   int   `json:"batch_size"`
	EnableCache bool  `json:"enable_cache"`
	CacheTTLMS  int64 `json:"cache_ttl_ms"`
	CacheSize   int   `json:"cache_size"`
}

func (h *ValidationHandler) configResponse(cfg validator.Config) ConfigResponse {
	return ConfigResponse{
		TimeoutMS:   cfg.Timeout.Milliseconds(),
		BatchSize:   cfg.BatchSize,
		EnableCache: cfg.EnableCache,
		CacheTTLMS:  cfg.CacheTTL.Milliseconds(),
		CacheSize:   h.stationSvc.ValidationCacheSize(),
	}
}

// GetConfig handles GET /api/v1/validator/config
func (h *ValidationHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.configResponse(h.stationSvc.ValidatorConfig()))
}

// UpdateConfigRequest is the JSON request body for config updates.
// Absent fields are left unchanged.
type UpdateConfigRequest struct {
	TimeoutMS   *int64 `json:"timeout_ms,omitempty"`
	BatchSize   *int   `json:"batch_size,omitempty"`
	EnableCache *bool  `json:"enable_cache,omitempty"`
	CacheTTLMS  *int64 `json:"cache_ttl_ms,omitempty"`
}

// UpdateConfig handles PATCH /api/v1/validator/config
func (h *ValidationHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var patch validator.ConfigPatch
	if req.TimeoutMS != nil {
		d := time.Duration(*req.TimeoutMS) * time.Millisecond
		patch.Timeout = &d
	}
	if req.BatchSize != nil {
		patch.BatchSize = req.BatchSize
	}
	if req.EnableCache != nil {
		patch.EnableCache = req.EnableCache
	}
	if req.CacheTTLMS != nil {
		d := time.Duration(*req.CacheTTLMS) * time.Millisecond
		patch.CacheTTL = &d
	}

	cfg := h.stationSvc.UpdateValidatorConfig(patch)
	h.writeJSON(w, http.StatusOK, h.configResponse(cfg))
}

// ClearCache handles POST /api/v1/validator/cache/clear
func (h *ValidationHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.stationSvc.ClearValidationCache()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
}

func (h *ValidationHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *ValidationHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
