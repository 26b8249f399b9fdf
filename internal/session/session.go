package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Imported tokens left behind in the legacy single-column session table
const currentSchemaVersion = 1

// Fixed storage keys.
const (
	KeyToken         = "token"
	KeySelectedStore = "selected_store"
)

// ErrEmptyToken is returned by Login when the token is the empty string.
var ErrEmptyToken = errors.New("session: empty token")

// Session holds the auth token and its durable copy.
//
// A Session is the root of all dashboard state: everything else is fetched
// only while a token is present and discarded on Logout.
//
// Thread-safety: all methods are safe for concurrent use.
type Session struct {
	db  *sql.DB
	now func() time.Time

	mu            sync.RWMutex
	token         string
	selectedStore int
	hasSelected   bool
}

// Open creates or opens the state file at the given path and hydrates the
// session from it. Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Session, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to state file: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Session{db: db, now: time.Now}
	if err := s.hydrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the state file.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Login stores the token in memory and in durable storage.
// The token is not inspected; any non-empty string is accepted.
func (s *Session) Login(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := s.put(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Logout clears the token and every piece of state that hangs off it, both
// in memory and on disk. A subsequent Open of the same path yields no session.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key IN (?, ?)`, KeyToken, KeySelectedStore)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	s.mu.Lock()
	s.token = ""
	s.selectedStore = 0
	s.hasSelected = false
	s.mu.Unlock()
	return nil
}

// CurrentToken returns the token, or false when no session is active.
func (s *Session) CurrentToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Active reports whether a token is present.
func (s *Session) Active() bool {
	_, ok := s.CurrentToken()
	return ok
}

// SelectedStore returns the last remembered store id.
func (s *Session) SelectedStore() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedStore, s.hasSelected
}

// RememberStore persists the selected store id so the next process start
// can re-select it.
func (s *Session) RememberStore(ctx context.Context, id int) error {
	if err := s.put(ctx, KeySelectedStore, strconv.Itoa(id)); err != nil {
		return fmt.Errorf("remember store: %w", err)
	}

	s.mu.Lock()
	s.selectedStore = id
	s.hasSelected = true
	s.mu.Unlock()
	return nil
}

func (s *Session) put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.now().Unix())
	return err
}

func (s *Session) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// hydrate loads the persisted token and selection into memory.
func (s *Session) hydrate(ctx context.Context) error {
	token, _, err := s.get(ctx, KeyToken)
	if err != nil {
		return fmt.Errorf("hydrate token: %w", err)
	}

	raw, ok, err := s.get(ctx, KeySelectedStore)
	if err != nil {
		return fmt.Errorf("hydrate selected store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	if ok {
		// A corrupt value only loses the remembered selection
		if id, convErr := strconv.Atoi(raw); convErr == nil {
			s.selectedStore = id
			s.hasSelected = true
		}
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 copies a token out of the legacy session(token) table, if one
// exists, and drops that table.
func migrateToV1(db *sql.DB) error {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='session'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO client_state (key, value, updated_at)
		SELECT 'token', token, 0 FROM session WHERE token IS NOT NULL AND token != '' LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if _, err := db.Exec(`DROP TABLE session`); err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Session) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
