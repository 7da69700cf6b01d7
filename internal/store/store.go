// Package store persists conversation turns. Each row is one question and
// answer exchanged by a user within a session; a user's history is read back
// oldest-first and can only be removed in bulk.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/pharmabot/internal/rag"
)

// Turn is one persisted question/answer exchange.
type Turn struct {
	// UserID identifies the user who asked.
	UserID string `json:"user_id"`
	// SessionID is the session the turn belongs to.
	SessionID string `json:"session_id"`
	// Question is the user's message.
	Question string `json:"user_message"`
	// Answer is the assistant's reply.
	Answer string `json:"assistant_response"`
	// CreatedAt is when the turn was persisted.
	CreatedAt time.Time `json:"timestamp"`
}

// HistoryStore persists and retrieves conversation turns keyed by user.
// Implementations must be safe for concurrent use. Errors wrap
// rag.ErrPersistence.
type HistoryStore interface {
	// Append persists a turn. A zero CreatedAt is set to the current time.
	Append(ctx context.Context, turn Turn) error
	// History returns every turn for userID, oldest first. Turns persisted
	// within the same instant keep insertion order.
	History(ctx context.Context, userID string) ([]Turn, error)
	// Clear deletes every turn for userID.
	Clear(ctx context.Context, userID string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns ~/.pharmabot/history.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pharmabot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// alive for the life of the pool.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chat_history (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id         TEXT    NOT NULL,
    user_id            TEXT    NOT NULL,
    user_message       TEXT    NOT NULL,
    assistant_response TEXT    NOT NULL,
    created_at         INTEGER NOT NULL  -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_chat_history_user_created
    ON chat_history (user_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: %w: migrate: %w", rag.ErrPersistence, err)
	}
	return nil
}

// Append persists a single turn.
func (s *SQLiteStore) Append(ctx context.Context, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	const q = `INSERT INTO chat_history (session_id, user_id, user_message, assistant_response, created_at)
VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, turn.SessionID, turn.UserID, turn.Question, turn.Answer,
		turn.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("store: %w: append: %w", rag.ErrPersistence, err)
	}
	return nil
}

// History returns every turn for userID, oldest first.
func (s *SQLiteStore) History(ctx context.Context, userID string) ([]Turn, error) {
	const q = `
SELECT session_id, user_id, user_message, assistant_response, created_at
FROM   chat_history
WHERE  user_id = ?
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("store: %w: history: %w", rag.ErrPersistence, err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var ms int64
		if err := rows.Scan(&t.SessionID, &t.UserID, &t.Question, &t.Answer, &ms); err != nil {
			return nil, fmt.Errorf("store: %w: history scan: %w", rag.ErrPersistence, err)
		}
		t.CreatedAt = time.UnixMilli(ms)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %w: history rows: %w", rag.ErrPersistence, err)
	}
	return turns, nil
}

// Clear deletes every turn for userID.
func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store: %w: clear: %w", rag.ErrPersistence, err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
