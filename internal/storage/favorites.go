package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

// Favorite is a saved station plus its local bookkeeping.
type Favorite struct {
	Station       domain.Station `json:"station"`
	AddedAt       time.Time      `json:"added_at"`
	LastValidated time.Time      `json:"last_validated,omitempty"`
	LastValid     bool           `json:"last_valid"`
}

// FavoritesStore persists favorites as a single JSON file. The file is
// rewritten atomically on every mutation; the in-memory map is the source
// of truth between writes.
type FavoritesStore struct {
	path string

	mu        sync.RWMutex
	favorites map[domain.StationUUID]Favorite
}

// NewFavoritesStore loads (or initializes) the favorites file at path.
func NewFavoritesStore(path string) (*FavoritesStore, error) {
	s := &FavoritesStore{
		path:      path,
		favorites: make(map[domain.StationUUID]Favorite),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FavoritesStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read favorites file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var favorites []Favorite
	if err := json.Unmarshal(data, &favorites); err != nil {
		return fmt.Errorf("decode favorites file: %w", err)
	}
	for _, f := range favorites {
		s.favorites[f.Station.UUID] = f
	}
	return nil
}

// Add stores a new favorite. Returns domain.ErrDuplicateFavorite when the
// station is already saved.
func (s *FavoritesStore) Add(fav Favorite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.favorites[fav.Station.UUID]; exists {
		return domain.ErrDuplicateFavorite
	}
	if fav.AddedAt.IsZero() {
		fav.AddedAt = time.Now()
	}
	s.favorites[fav.Station.UUID] = fav
	return s.persistLocked()
}

// Remove deletes a favorite. Returns domain.ErrFavoriteNotFound when the
// station is not saved.
func (s *FavoritesStore) Remove(uuid domain.StationUUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.favorites[uuid]; !exists {
		return domain.ErrFavoriteNotFound
	}
	delete(s.favorites, uuid)
	return s.persistLocked()
}

// Get returns one favorite.
func (s *FavoritesStore) Get(uuid domain.StationUUID) (Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fav, ok := s.favorites[uuid]
	if !ok {
		return Favorite{}, domain.ErrFavoriteNotFound
	}
	return fav, nil
}

// List returns all favorites ordered by AddedAt, oldest first.
func (s *FavoritesStore) List() []Favorite {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Favorite, 0, len(s.favorites))
	for _, f := range s.favorites {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].Station.UUID < out[j].Station.UUID
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out
}

// MarkValidated records a validation outcome against a favorite. A missing
// favorite is not an error: it may have been removed while its validation
// was in flight.
func (s *FavoritesStore) MarkValidated(uuid domain.StationUUID, valid bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fav, ok := s.favorites[uuid]
	if !ok {
		return nil
	}
	fav.LastValidated = at
	fav.LastValid = valid
	s.favorites[uuid] = fav
	return s.persistLocked()
}

// StaleBefore returns favorites whose last validation is older than cutoff,
// including ones never validated.
func (s *FavoritesStore) StaleBefore(cutoff time.Time) []Favorite {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []Favorite
	for _, f := range s.favorites {
		if f.LastValidated.Before(cutoff) {
			stale = append(stale, f)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LastValidated.Before(stale[j].LastValidated)
	})
	return stale
}

// Count returns the number of saved favorites.
func (s *FavoritesStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.favorites)
}

func (s *FavoritesStore) persistLocked() error {
	favorites := make([]Favorite, 0, len(s.favorites))
	for _, f := range s.favorites {
		favorites = append(favorites, f)
	}
	sort.Slice(favorites, func(i, j int) bool {
		return favorites[i].Station.UUID < favorites[j].Station.UUID
	})

	data, err := json.MarshalIndent(favorites, "", "  ")
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create favorites dir: %w", err)
	}

	// Write-then-rename so a crash mid-write cannot corrupt the file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write favorites file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace favorites file: %w", err)
	}
	return nil
}
