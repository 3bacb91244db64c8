package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dshills/retroide/internal/logging"
)

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. Parent
// directories are created. Use ":memory:" for a private in-memory store.
func OpenSQLite(path string, logger *logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("journal")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One connection serialises writers and keeps an in-memory database
	// alive for the life of the store.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("journal opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calls (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			session_id TEXT NOT NULL,
			method TEXT NOT NULL,
			tool TEXT NOT NULL DEFAULT '',
			params TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_calls_session ON calls(session_id);

		CREATE TABLE IF NOT EXISTS transitions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			instance_id TEXT NOT NULL DEFAULT '',
			pid INTEGER NOT NULL DEFAULT 0,
			restarts INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordCall stores rec. An empty ID is filled with a new UUID.
func (s *SQLiteStore) RecordCall(ctx context.Context, rec CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (id, session_id, method, tool, params, outcome, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Method, rec.Tool, rec.Params, rec.Outcome, rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting call: %w", err)
	}
	return nil
}

// RecentCalls returns up to limit calls, newest first.
func (s *SQLiteStore) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, method, tool, params, outcome, error, started_at, duration_ms
		FROM calls
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var rec CallRecord
		var startedAt string
		var durationMS int64

		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Method, &rec.Tool, &rec.Params,
			&rec.Outcome, &rec.Error, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning call row: %w", err)
		}

		rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		calls = append(calls, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calls: %w", err)
	}
	return calls, nil
}

// RecordTransition stores rec.
func (s *SQLiteStore) RecordTransition(ctx context.Context, rec TransitionRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (session_id, from_state, to_state, instance_id, pid, restarts, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.From, rec.To, rec.InstanceID, rec.PID, rec.Restarts, rec.Error,
		rec.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting transition: %w", err)
	}
	return nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (s *SQLiteStore) RecentTransitions(ctx context.Context, limit int) ([]TransitionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, from_state, to_state, instance_id, pid, restarts, error, at
		FROM transitions
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var at string

		if err := rows.Scan(&rec.SessionID, &rec.From, &rec.To, &rec.InstanceID, &rec.PID,
			&rec.Restarts, &rec.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning transition row: %w", err)
		}

		rec.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parsing at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transitions: %w", err)
	}
	return out, nil
}
