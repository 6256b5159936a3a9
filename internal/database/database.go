package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// EventRecord is a detection event stored in the journal
type EventRecord struct {
	ID        string
	EntityID  string
	EventType string
	Timestamp time.Time
	Data      map[string]any
}

// EntityStateRecord is the last known state of an entity
type EntityStateRecord struct {
	EntityID      string
	Count         int
	Faces         int
	Plates        []string
	LastDetection string
	UpdatedAt     time.Time
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS detection_events (
			id TEXT PRIMARY KEY,
			entity_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			data TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS entity_state (
			entity_id TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0,
			faces INTEGER NOT NULL DEFAULT 0,
			plates TEXT,
			last_detection TEXT,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity_time ON detection_events(entity_id, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_time ON detection_events(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Debug("[Database] Migrations completed")
	return nil
}

// SaveEvent stores a detection event
func (d *Database) SaveEvent(event *EventRecord) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `INSERT INTO detection_events (id, entity_id, event_type, timestamp, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	_, err = d.db.Exec(query, event.ID, event.EntityID, event.EventType, event.Timestamp.UTC(), string(dataJSON))
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListEvents returns events newest first with optional filtering
func (d *Database) ListEvents(entityID string, since *time.Time, limit int) ([]*EventRecord, error) {
	query := `SELECT id, entity_id, event_type, timestamp, data FROM detection_events WHERE 1=1`
	args := []interface{}{}

	if entityID != "" {
		query += " AND entity_id = ?"
		args = append(args, entityID)
	}

	if since != nil {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY timestamp DESC, rowid DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*EventRecord, 0)
	for rows.Next() {
		var event EventRecord
		var dataJSON sql.NullString

		if err := rows.Scan(&event.ID, &event.EntityID, &event.EventType, &event.Timestamp, &dataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

// DeleteOldEvents deletes events older than the specified time
func (d *Database) DeleteOldEvents(before time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM detection_events WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return result.RowsAffected()
}

// SaveEntityState saves or updates the state of an entity
func (d *Database) SaveEntityState(state *EntityStateRecord) error {
	platesJSON, err := json.Marshal(state.Plates)
	if err != nil {
		return fmt.Errorf("failed to marshal plates: %w", err)
	}

	query := `INSERT INTO entity_state (entity_id, count, faces, plates, last_detection, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			count = excluded.count,
			faces = excluded.faces,
			plates = excluded.plates,
			last_detection = excluded.last_detection,
			updated_at = excluded.updated_at`

	_, err = d.db.Exec(query, state.EntityID, state.Count, state.Faces, string(platesJSON),
		state.LastDetection, state.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save entity state: %w", err)
	}
	return nil
}

// GetEntityState retrieves the state of an entity, or nil if none was saved
func (d *Database) GetEntityState(entityID string) (*EntityStateRecord, error) {
	query := `SELECT entity_id, count, faces, plates, last_detection, updated_at
		FROM entity_state WHERE entity_id = ?`

	var state EntityStateRecord
	var platesJSON, lastDetection sql.NullString

	err := d.db.QueryRow(query, entityID).Scan(&state.EntityID, &state.Count, &state.Faces,
		&platesJSON, &lastDetection, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity state: %w", err)
	}

	state.LastDetection = lastDetection.String
	if platesJSON.Valid && platesJSON.String != "" {
		if err := json.Unmarshal([]byte(platesJSON.String), &state.Plates); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plates: %w", err)
		}
	}
	return &state, nil
}
