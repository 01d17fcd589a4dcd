package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tunewave/tunewave/internal/domain"
	"github.com/tunewave/tunewave/internal/service"
	"github.com/tunewave/tunewave/internal/storage"
)

// FavoritesHandler handles favorite station HTTP requests.
type FavoritesHandler struct {
	stationSvc *service.StationService
	logger     *slog.Logger
}

// NewFavoritesHandler creates a new favorites handler.
func NewFavoritesHandler(stationSvc *service.StationService, logger *slog.Logger) *FavoritesHandler {
	return &FavoritesHandler{
		stationSvc: stationSvc,
		logger:     logger,
	}
}

// FavoriteListResponse contains the saved favorites.
type FavoriteListResponse struct {
	Favorites []storage.Favorite `json:"favorites"`
	Total     int                `json:"total"`
}

// List handles GET /api/v1/favorites
func (h *FavoritesHandler) List(w http.ResponseWriter, r *http.Request) {
	favorites := h.stationSvc.ListFavorites(r.Context())
	h.writeJSON(w, http.StatusOK, FavoriteListResponse{Favorites: favorites, Total: len(favorites)})
}

// AddFavoriteRequest is the JSON request body for adding a favorite.
type AddFavoriteRequest struct {
	StationUUID string `json:"station_uuid"`
}

// Add handles POST /api/v1/favorites
// The station's stream is validated before saving; unplayable stations
// are rejected with 422.
func (h *FavoritesHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StationUUID == "" {
		h.writeError(w, http.StatusBadRequest, "station_uuid is required")
		return
	}

	fav, err := h.stationSvc.AddFavorite(r.Context(), domain.StationUUID(req.StationUUID))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrStationNotFound):
			h.writeError(w, http.StatusNotFound, "station not found")
		case errors.Is(err, domain.ErrDuplicateFavorite):
			h.writeError(w, http.StatusConflict, "station is already a favorite")
		case errors.Is(err, domain.ErrStationNotPlayable):
			h.writeError(w, http.StatusUnprocessableEntity, "station stream failed validation")
		case errors.Is(err, domain.ErrNoDirectoryServers):
			h.writeError(w, http.StatusBadGateway, "station directory unavailable")
		default:
			h.logger.Error("add favorite failed", "station", req.StationUUID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to add favorite")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, fav)
}

// Remove handles DELETE /api/v1/favorites/{stationUUID}
func (h *FavoritesHandler) Remove(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "stationUUID")
	if uuid == "" {
		h.writeError(w, http.StatusBadRequest, "missing station UUID")
		return
	}

	if err := h.stationSvc.RemoveFavorite(r.Context(), domain.StationUUID(uuid)); err != nil {
		if errors.Is(err, domain.ErrFavoriteNotFound) {
			h.writeError(w, http.StatusNotFound, "favorite not found")
			return
		}
		h.logger.Error("remove favorite failed", "station", uuid, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to remove favorite")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *FavoritesHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *FavoritesHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
