// Package queue persists mutations made while the server is unreachable.
// The queue is strictly FIFO: the replay engine drains it in enqueue order
// and the store's ordering is the only ordering guarantee offline edits get.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS mutations (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    payload TEXT NOT NULL,
    enqueued_at TIMESTAMP NOT NULL
);
`

// Kind names one queued mutation type.
type Kind string

const (
	KindCreate         Kind = "CREATE"
	KindUpdateContent  Kind = "UPDATE_CONTENT"
	KindUpdatePosition Kind = "UPDATE_POSITION"
	KindReorder        Kind = "REORDER"
	KindDelete         Kind = "DELETE"
)

// Mutation is one queued offline edit.
type Mutation struct {
	LocalID    int64
	Kind       Kind
	Payload    json.RawMessage
	EnqueuedAt time.Time
}

// CreatePayload records an offline task creation. TempID is the client's
// placeholder id; the server assigns the real one during replay.
type CreatePayload struct {
	TempID      uuid.UUID `json:"temp_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
}

type UpdateContentPayload struct {
	TaskID      uuid.UUID `json:"task_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

type UpdatePositionPayload struct {
	TaskID uuid.UUID `json:"task_id"`
	Status string    `json:"status"`
}

type ReorderPayload struct {
	TaskID     uuid.UUID   `json:"task_id"`
	OrderedIDs []uuid.UUID `json:"ordered_ids"`
}

type DeletePayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// Store is a SQLite-backed mutation queue.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the queue database at path.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewInMemory opens an ephemeral queue, used in tests.
func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Enqueue appends one mutation and returns its local id.
func (s *Store) Enqueue(ctx context.Context, kind Kind, payload interface{}) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mutations (kind, payload, enqueued_at)
		VALUES (?, ?, ?)
	`, string(kind), string(data), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Drain returns every queued mutation in enqueue order without removing
// anything; the replay engine removes entries one by one as they land.
func (s *Store) Drain(ctx context.Context) ([]Mutation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, kind, payload, enqueued_at
		FROM mutations
		ORDER BY enqueued_at ASC, local_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Mutation
	for rows.Next() {
		var m Mutation
		var kind, payload string
		if err := rows.Scan(&m.LocalID, &kind, &payload, &m.EnqueuedAt); err != nil {
			return nil, err
		}
		m.Kind = Kind(kind)
		m.Payload = json.RawMessage(payload)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Remove deletes one mutation by local id.
func (s *Store) Remove(ctx context.Context, localID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mutations WHERE local_id = ?`, localID)
	return err
}

// Clear empties the queue.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mutations`)
	return err
}

// Len reports the number of queued mutations.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM mutations`).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
