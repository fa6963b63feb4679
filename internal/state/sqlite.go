package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	// mu guards workspace, which initialize may change while render cycles
	// are writing.
	mu        sync.RWMutex
	workspace string
}

// NewSQLiteStore creates a store scoped to workspace, typically the project
// root URI reported by the editor.
func NewSQLiteStore(workspace string, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{workspace: workspace, logger: logger}
}

// Open opens the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := MigrateWithDB(context.Background(), db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	s.path = path
	s.logger.Debug("workspace state opened", "path", path, "workspace", s.Workspace())
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetWorkspace changes the workspace subsequent calls are scoped to.
func (s *SQLiteStore) SetWorkspace(workspace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspace = workspace
}

// Workspace returns the workspace calls are scoped to.
func (s *SQLiteStore) Workspace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspace
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM workspace_state WHERE workspace = ? AND key = ?`,
		s.Workspace(), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state %q: %w", key, err)
	}
	return &value, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, key string, value *string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if value == nil {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM workspace_state WHERE workspace = ? AND key = ?`,
			s.Workspace(), key,
		); err != nil {
			return fmt.Errorf("failed to clear state %q: %w", key, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_state (workspace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.Workspace(), key, *value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update state %q: %w", key, err)
	}
	return nil
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM workspace_state WHERE workspace = ? ORDER BY key`, s.Workspace())
	if err != nil {
		return nil, fmt.Errorf("failed to list state keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan state key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
