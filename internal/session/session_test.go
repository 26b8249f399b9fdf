package session

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestSession opens a session backed by a fresh state file.
func openTestSession(t *testing.T) (*Session, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen_CreatesNewStateFile(t *testing.T) {
	_, path := openTestSession(t)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("state file was not created")
	}
}

func TestOpen_FreshFileHasNoSession(t *testing.T) {
	s, _ := openTestSession(t)

	token, ok := s.CurrentToken()
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.False(t, s.Active())
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/state.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s, _ := openTestSession(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestLogin_StoresToken(t *testing.T) {
	s, _ := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx, "abc123"))

	token, ok := s.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)
}

func TestLogin_RejectsEmptyToken(t *testing.T) {
	s, _ := openTestSession(t)

	err := s.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyToken)
	assert.False(t, s.Active())
}

func TestLogin_AcceptsOpaqueToken(t *testing.T) {
	s, _ := openTestSession(t)

	require.NoError(t, s.Login(context.Background(), "not a jwt at all"))
	assert.True(t, s.Active())
}

func TestLogin_HydratesAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Login(ctx, "abc123"))
	require.NoError(t, s1.RememberStore(ctx, 42))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	token, ok := s2.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	id, ok := s2.SelectedStore()
	assert.True(t, ok)
	assert.Equal(t, 42, id)
}

func TestLogout_ClearsPersistedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Login(ctx, "abc123"))
	require.NoError(t, s1.RememberStore(ctx, 7))
	require.NoError(t, s1.Logout(ctx))

	assert.False(t, s1.Active())
	_, ok := s1.SelectedStore()
	assert.False(t, ok)
	require.NoError(t, s1.Close())

	// A fresh load yields no session
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	assert.False(t, s2.Active())
	_, ok = s2.SelectedStore()
	assert.False(t, ok)
}

func TestLogin_ReplacesToken(t *testing.T) {
	s, _ := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.Login(ctx, "first"))
	require.NoError(t, s.Login(ctx, "second"))

	token, _ := s.CurrentToken()
	assert.Equal(t, "second", token)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM client_state WHERE key = 'token'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestHydrate_IgnoresCorruptSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.db.Exec(`INSERT INTO client_state (key, value, updated_at) VALUES ('selected_store', 'abc', 0)`)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	_, ok := s2.SelectedStore()
	assert.False(t, ok)
}

func TestMigrateToV1_ImportsLegacyToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE session (token TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO session (token) VALUES ('legacy-token')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	token, ok := s.CurrentToken()
	assert.True(t, ok)
	assert.Equal(t, "legacy-token", token)

	var name string
	err = s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='session'`).Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestClose_NilDB(t *testing.T) {
	s := &Session{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClaims_DecodesJWTWithoutVerifying(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "russell.winfield@example.com",
		"exp":   exp.Unix(),
	}).SignedString([]byte("some-secret-the-client-never-sees"))
	require.NoError(t, err)

	s, _ := openTestSession(t)
	require.NoError(t, s.Login(context.Background(), signed))

	c, ok := s.Claims()
	require.True(t, ok)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, "russell.winfield@example.com", c.Email)
	assert.True(t, c.ExpiresAt.Equal(exp))
	assert.False(t, c.Expired(exp.Add(-time.Minute)))
	assert.True(t, c.Expired(exp.Add(time.Minute)))
}

func TestClaims_OpaqueToken(t *testing.T) {
	s, _ := openTestSession(t)
	require.NoError(t, s.Login(context.Background(), "abc123"))

	_, ok := s.Claims()
	assert.False(t, ok)
}

func TestClaims_NoSession(t *testing.T) {
	s, _ := openTestSession(t)

	_, ok := s.Claims()
	assert.False(t, ok)
}

func TestClaims_NoExpNeverExpires(t *testing.T) {
	var c Claims
	assert.False(t, c.Expired(time.Now()))
}
