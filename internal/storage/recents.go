package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tunewave/tunewave/internal/domain"
)

// PlayEvent is one entry in the listening history.
type PlayEvent struct {
	Timestamp   time.Time          `json:"timestamp"`
	StationUUID domain.StationUUID `json:"station_uuid"`
	StationName string             `json:"station_name"`
	StreamURL   string             `json:"stream_url"`
}

// RecentsLog manages the listening history file (JSON lines format),
// trimmed to a maximum number of entries.
type RecentsLog struct {
	path string
	mu   sync.Mutex
	max  int
}

// NewRecentsLog creates a listening history manager.
func NewRecentsLog(path string, maxEntries int) *RecentsLog {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &RecentsLog{
		path: path,
		max:  maxEntries,
	}
}

// Append adds a play event to the history.
func (l *RecentsLog) Append(event PlayEvent) error {
	if l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create recents dir: %w", err)
	}

	entries, _ := l.readEntriesLocked()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	entries = append(entries, event)

	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}

	return l.writeEntriesLocked(entries)
}

// GetRecent returns the most recent play events, newest first.
func (l *RecentsLog) GetRecent(limit int) ([]PlayEvent, error) {
	if l.path == "" {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.readEntriesLocked()
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (l *RecentsLog) readEntriesLocked() ([]PlayEvent, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []PlayEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event PlayEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, event)
	}
	return entries, scanner.Err()
}

func (l *RecentsLog) writeEntriesLocked(entries []PlayEvent) error {
	f, err := os.Create(l.path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		f.Write(data)
		f.WriteString("\n")
	}
	return nil
}
