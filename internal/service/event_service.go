package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tunewave/tunewave/internal/domain"
)

// EventServiceConfig configures the validation event service.
type EventServiceConfig struct {
	// RingBufferSize is the number of events to keep in memory.
	// Default: 1000
	RingBufferSize int

	// PersistToSQLite enables SQLite persistence for historical events.
	PersistToSQLite bool

	// SQLitePath is the path to the SQLite database file.
	SQLitePath string

	// RetentionDays is how long to keep events in SQLite (0 = forever).
	RetentionDays int
}

// DefaultEventServiceConfig returns sensible defaults.
func DefaultEventServiceConfig() EventServiceConfig {
	return EventServiceConfig{
		RingBufferSize:  1000,
		PersistToSQLite: false,
		RetentionDays:   30,
	}
}

// EventService manages validation events with an in-memory ring buffer
// and optional SQLite persistence.
type EventService struct {
	cfg    EventServiceConfig
	logger *slog.Logger

	// Ring buffer for recent events
	mu       sync.RWMutex
	events   []domain.ValidationEvent
	head     int    // Next write position
	count    int    // Number of events in buffer
	eventSeq uint64 // Monotonic sequence for event IDs

	// SQLite persistence (optional)
	db *sql.DB

	// SSE subscribers for real-time streaming
	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.ValidationEvent
	subSeq      uint64
}

// NewEventService creates a new event service.
func NewEventService(cfg EventServiceConfig, logger *slog.Logger) (*EventService, error) {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 1000
	}

	svc := &EventService{
		cfg:         cfg,
		logger:      logger,
		events:      make([]domain.ValidationEvent, cfg.RingBufferSize),
		subscribers: make(map[uint64]chan domain.ValidationEvent),
	}

	if cfg.PersistToSQLite && cfg.SQLitePath != "" {
		if err := svc.initSQLite(); err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		logger.Info("event persistence enabled", "path", cfg.SQLitePath)
	}

	return svc, nil
}

// initSQLite initializes the SQLite database.
func (s *EventService) initSQLite() error {
	db, err := sql.Open("sqlite", s.cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS validation_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			type TEXT NOT NULL,
			batch_id TEXT,
			station_uuid TEXT,
			status TEXT,
			error TEXT,
			payload TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON validation_events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_type ON validation_events(type);
		CREATE INDEX IF NOT EXISTS idx_events_batch ON validation_events(batch_id);
		CREATE INDEX IF NOT EXISTS idx_events_station ON validation_events(station_uuid);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the event service and any open resources.
func (s *EventService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Emit records a validation event and pushes it to subscribers.
func (s *EventService) Emit(event domain.ValidationEvent) {
	if event.ID == "" {
		seq := atomic.AddUint64(&s.eventSeq, 1)
		event.ID = domain.EventID(fmt.Sprintf("evt_%d_%d", time.Now().UnixNano(), seq))
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.events[s.head] = event
	s.head = (s.head + 1) % s.cfg.RingBufferSize
	if s.count < s.cfg.RingBufferSize {
		s.count++
	}
	s.mu.Unlock()

	if s.db != nil {
		go s.persistEvent(event)
	}

	s.notifySubscribers(event)

	s.logger.Debug("event emitted",
		"event_id", event.ID,
		"type", event.Type,
		"batch_id", event.BatchID,
		"station_uuid", event.StationUUID,
	)
}

// persistEvent saves an event to SQLite.
func (s *EventService) persistEvent(event domain.ValidationEvent) {
	if s.db == nil {
		return
	}

	errStr := ""
	if event.Error != nil {
		errStr = event.Error.Error()
	}

	// Full event as JSON so historical reads round-trip every field.
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode event", "event_id", event.ID, "error", err)
		return
	}

	_, err = s.db.Exec(`
		INSERT INTO validation_events (id, timestamp, type, batch_id, station_uuid, status, error, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp, event.Type, event.BatchID, event.StationUUID, event.Status, errStr, string(payload))

	if err != nil {
		s.logger.Warn("failed to persist event", "event_id", event.ID, "error", err)
	}
}

// Query returns events from the ring buffer matching the filter, newest
// first, with pagination.
func (s *EventService) Query(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	allEvents := make([]domain.ValidationEvent, 0, s.count)
	for i := 0; i < s.count; i++ {
		// Read backwards from head-1
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue // Empty slot
		}
		if matchesFilter(event, query.Filter) {
			allEvents = append(allEvents, event)
		}
	}

	total := len(allEvents)
	start := query.Offset
	if start >= total {
		return &domain.EventQueryResult{
			Events:  []domain.ValidationEvent{},
			Total:   total,
			HasMore: false,
		}, nil
	}

	end := start + query.Limit
	if end > total {
		end = total
	}

	return &domain.EventQueryResult{
		Events:  allEvents[start:end],
		Total:   total,
		HasMore: end < total,
	}, nil
}

// QueryHistorical queries events from SQLite storage.
func (s *EventService) QueryHistorical(ctx context.Context, query domain.EventQuery) (*domain.EventQueryResult, error) {
	if s.db == nil {
		return &domain.EventQueryResult{Events: []domain.ValidationEvent{}}, nil
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	var conditions []string
	var args []interface{}

	if query.Filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *query.Filter.Type)
	}
	if query.Filter.BatchID != "" {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, query.Filter.BatchID)
	}
	if query.Filter.StationUUID != nil {
		conditions = append(conditions, "station_uuid = ?")
		args = append(args, *query.Filter.StationUUID)
	}
	if query.Filter.StartTime != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *query.Filter.StartTime)
	}
	if query.Filter.EndTime != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *query.Filter.EndTime)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM validation_events %s", whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT payload
		FROM validation_events %s
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, query.Limit, query.Offset)

	rows, err := s.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.ValidationEvent, 0, query.Limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event domain.ValidationEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			s.logger.Warn("skipping undecodable event row", "error", err)
			continue
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return &domain.EventQueryResult{
		Events:  events,
		Total:   total,
		HasMore: query.Offset+len(events) < total,
	}, nil
}

// GetRecent returns the most recent N events, newest first.
func (s *EventService) GetRecent(n int) []domain.ValidationEvent {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := n
	if count > s.count {
		count = s.count
	}

	result := make([]domain.ValidationEvent, 0, count)
	for i := 0; i < count; i++ {
		idx := (s.head - 1 - i + s.cfg.RingBufferSize) % s.cfg.RingBufferSize
		event := s.events[idx]
		if event.ID == "" {
			continue
		}
		result = append(result, event)
	}

	return result
}

// matchesFilter checks if an event matches the filter criteria.
func matchesFilter(event domain.ValidationEvent, filter domain.EventFilter) bool {
	if filter.Type != nil && event.Type != *filter.Type {
		return false
	}
	if filter.BatchID != "" && event.BatchID != filter.BatchID {
		return false
	}
	if filter.StationUUID != nil && event.StationUUID != *filter.StationUUID {
		return false
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	return true
}

// Subscribe creates a new SSE subscriber and returns a channel for events.
// The caller must call Unsubscribe when done.
func (s *EventService) Subscribe() (uint64, <-chan domain.ValidationEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.ValidationEvent, 100) // Buffer to prevent blocking
	s.subscribers[id] = ch

	s.logger.Info("SSE subscriber added", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	return id, ch
}

// Unsubscribe removes an SSE subscriber.
func (s *EventService) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
		s.logger.Info("SSE subscriber removed", "subscriber_id", id, "total_subscribers", len(s.subscribers))
	}
}

// notifySubscribers sends an event to all SSE subscribers.
func (s *EventService) notifySubscribers(event domain.ValidationEvent) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this event for this subscriber
			s.logger.Warn("SSE subscriber buffer full, dropping event", "subscriber_id", id, "event_id", event.ID)
		}
	}
}

// SubscriberCount returns the number of active SSE subscribers.
func (s *EventService) SubscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subscribers)
}

// EventStats describes the event service's runtime state.
type EventStats struct {
	BufferSize     int  `json:"buffer_size"`
	BufferUsed     int  `json:"buffer_used"`
	SSESubscribers int  `json:"sse_subscribers"`
	SQLiteEnabled  bool `json:"sqlite_enabled"`
}

func (s *EventService) Stats() EventStats {
	s.mu.RLock()
	bufferUsed := s.count
	s.mu.RUnlock()

	return EventStats{
		BufferSize:     s.cfg.RingBufferSize,
		BufferUsed:     bufferUsed,
		SSESubscribers: s.SubscriberCount(),
		SQLiteEnabled:  s.db != nil,
	}
}

// CleanupOldEvents removes events older than retention period from SQLite.
func (s *EventService) CleanupOldEvents(ctx context.Context) error {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM validation_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("delete old events: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		s.logger.Info("cleaned up old events", "deleted", deleted, "cutoff", cutoff)
	}

	return nil
}
