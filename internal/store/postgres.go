package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // register "postgres" driver

	"github.com/54b3r/pharmabot/internal/rag"
)

// PostgresStore is a HistoryStore backed by PostgreSQL, for deployments
// where several server replicas share one history.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn (a lib/pq connection string or URL) and runs
// the schema migration.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: %w: connect postgres: %w", rag.ErrPersistence, err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chat_history (
    id                 BIGSERIAL   PRIMARY KEY,
    session_id         TEXT        NOT NULL,
    user_id            TEXT        NOT NULL,
    user_message       TEXT        NOT NULL,
    assistant_response TEXT        NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_user_created
    ON chat_history (user_id, created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: %w: migrate postgres: %w", rag.ErrPersistence, err)
	}
	return nil
}

// Append persists a single turn.
func (s *PostgresStore) Append(ctx context.Context, turn Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	const q = `INSERT INTO chat_history (session_id, user_id, user_message, assistant_response, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, turn.SessionID, turn.UserID, turn.Question, turn.Answer,
		turn.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("store: %w: append: %w", rag.ErrPersistence, err)
	}
	return nil
}

// History returns every turn for userID, oldest first.
func (s *PostgresStore) History(ctx context.Context, userID string) ([]Turn, error) {
	const q = `
SELECT session_id, user_id, user_message, assistant_response, created_at
FROM   chat_history
WHERE  user_id = $1
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("store: %w: history: %w", rag.ErrPersistence, err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.SessionID, &t.UserID, &t.Question, &t.Answer, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: %w: history scan: %w", rag.ErrPersistence, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %w: history rows: %w", rag.ErrPersistence, err)
	}
	return turns, nil
}

// Clear deletes every turn for userID.
func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store: %w: clear: %w", rag.ErrPersistence, err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
