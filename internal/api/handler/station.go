package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tunewave/tunewave/internal/directory"
	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/service"
)

// StationHandler handles station browsing and playback HTTP requests.
type StationHandler struct {
	stationSvc *service.StationService
	logger     *slog.Logger
}

// NewStationHandler creates a new station handler.
func NewStationHandler(stationSvc *service.StationService, logger *slog.Logger) *StationHandler {
	return &StationHandler{
		stationSvc: stationSvc,
		logger:     logger,
	}
}

// StationListResponse contains directory search results.
type StationListResponse struct {
	Stations []service.StationWithState `json:"stations"`
	Total    int                        `json:"total"`
}

// Search handles GET /api/v1/stations/search
// Query parameters: name, tag, country, countrycode, language, limit, offset.
func (h *StationHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := directory.SearchQuery{
		Name:        r.URL.Query().Get("name"),
		Tag:         r.URL.Query().Get("tag"),
		Country:     r.URL.Query().Get("country"),
		CountryCode: r.URL.Query().Get("countrycode"),
		Language:    r.URL.Query().Get("language"),
		Limit:       50,
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			q.Limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			q.Offset = parsed
		}
	}

	if q.Name == "" && q.Tag == "" && q.Country == "" && q.CountryCode == "" && q.Language == "" {
		h.writeError(w, http.StatusBadRequest, "at least one search filter is required")
		return
	}

	stations, err := h.stationSvc.SearchStations(r.Context(), q)
	if err != nil {
		if errors.Is(err, domain.ErrNoDirectoryServers) {
			h.writeError(w, http.StatusBadGateway, "station directory unavailable")
			return
		}
		h.logger.Error("search failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to search stations")
		return
	}

	h.writeJSON(w, http.StatusOK, StationListResponse{Stations: stations, Total: len(stations)})
}

// Top handles GET /api/v1/stations/top
func (h *StationHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	stations, err := h.stationSvc.TopStations(r.Context(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrNoDirectoryServers) {
			h.writeError(w, http.StatusBadGateway, "station directory unavailable")
			return
		}
		h.logger.Error("top stations failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch top stations")
		return
	}

	h.writeJSON(w, http.StatusOK, StationListResponse{Stations: stations, Total: len(stations)})
}

// StateListResponse contains all known station validation states.
type StateListResponse struct {
	States []domain.StationValidationState `json:"states"`
	Total  int                             `json:"total"`
}

// States handles GET /api/v1/stations/states
func (h *StationHandler) States(w http.ResponseWriter, r *http.Request) {
	states, err := h.stationSvc.StationStates(r.Context())
	if err != nil {
		h.logger.Error("list states failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list station states")
		return
	}
	h.writeJSON(w, http.StatusOK, StateListResponse{States: states, Total: len(states)})
}

// State handles GET /api/v1/stations/{stationUUID}/state
func (h *StationHandler) State(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "stationUUID")
	if uuid == "" {
		h.writeError(w, http.StatusBadRequest, "missing station UUID")
		return
	}

	state, err := h.stationSvc.StationState(r.Context(), domain.StationUUID(uuid))
	if err != nil {
		h.logger.Error("get state failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get station state")
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// PlayResponse is returned after registering a play.
type PlayResponse struct {
	Station   domain.Station `json:"station"`
	StreamURL string         `json:"stream_url"`
}

// Play handles POST /api/v1/stations/{stationUUID}/play
func (h *StationHandler) Play(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "stationUUID")
	if uuid == "" {
		h.writeError(w, http.StatusBadRequest, "missing station UUID")
		return
	}

	station, err := h.stationSvc.RegisterPlay(r.Context(), domain.StationUUID(uuid))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrStationNotFound):
			h.writeError(w, http.StatusNotFound, "station not found")
		case errors.Is(err, domain.ErrStationNotPlayable):
			h.writeError(w, http.StatusConflict, "station stream is not playable")
		default:
			h.logger.Error("play failed", "station", uuid, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to register play")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, PlayResponse{
		Station:   *station,
		StreamURL: station.EffectiveURL(),
	})
}

// RecentPlaysResponse contains the listening history.
type RecentPlaysResponse struct {
	Plays []RecentPlay `json:"plays"`
}

// RecentPlay is one listening history entry.
type RecentPlay struct {
	Timestamp   string `json:"timestamp"`
	StationUUID string `json:"station_uuid"`
	StationName string `json:"station_name"`
	StreamURL   string `json:"stream_url"`
}

// Recents handles GET /api/v1/recents
func (h *StationHandler) Recents(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	plays, err := h.stationSvc.RecentPlays(limit)
	if err != nil {
		h.logger.Error("recents failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read listening history")
		return
	}

	response := RecentPlaysResponse{Plays: make([]RecentPlay, 0, len(plays))}
	for _, p := range plays {
		response.Plays = append(response.Plays, RecentPlay{
			Timestamp:   p.Timestamp.UTC().Format(time.RFC3339),
			StationUUID: string(p.StationUUID),
			StationName: p.StationName,
			StreamURL:   p.StreamURL,
		})
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *StationHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *StationHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
