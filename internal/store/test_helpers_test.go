package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/config"
)

// testConfig returns a SQLite configuration in a fresh temp dir.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.Caller = "tester"
	cfg.LockTimeout = 5 * time.Second
	return cfg
}

// openTestStore opens a store for cfg and closes it when the test ends.
func openTestStore(t *testing.T, cfg config.Config) *Store {
	t.Helper()
	s, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestStore creates a new, uninstalled store.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, testConfig(t))
}

// installedTestStore creates a store with the engine installed.
func installedTestStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	if _, err := access.New(s).Install(context.Background()); err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	return s
}

// beginTest starts a session that is rolled back when the test ends.
func beginTest(t *testing.T, s *Store, mode Mode) *Session {
	t.Helper()
	sess, err := s.Begin(context.Background(), mode)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	t.Cleanup(func() { sess.Rollback() })
	return sess
}

func tableNames(t *testing.T, s *Store) []string {
	t.Helper()
	rows, err := s.db.Query("SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, name)
	}
	return names
}
