// Package testutil provides helpers shared by package tests that need a
// real, installed fixture store.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/config"
	"github.com/roach88/fixtures/internal/store"
)

// Config returns a SQLite configuration for a database in a fresh temp dir.
func Config(t testing.TB) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DSN = filepath.Join(t.TempDir(), "fixtures.db")
	cfg.Caller = "tester"
	cfg.LockTimeout = 10 * time.Second
	return cfg
}

// OpenStore opens a store for cfg and closes it when the test ends.
func OpenStore(t testing.TB, cfg config.Config) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Install installs the engine into s.
func Install(t testing.TB, s *store.Store) {
	t.Helper()
	if _, err := access.New(s).Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
}

// InstalledStore returns a store with the engine installed, together with
// the configuration it was opened with.
func InstalledStore(t testing.TB) (*store.Store, config.Config) {
	t.Helper()
	cfg := Config(t)
	s := OpenStore(t, cfg)
	Install(t, s)
	return s, cfg
}

// Exec runs statements as the caller, failing the test on error.
func Exec(t testing.TB, s *store.Store, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := s.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

// Count returns SELECT count(*) of an application table.
func Count(t testing.TB, s *store.Store, table string) int {
	t.Helper()
	var n int
	if err := s.DB().QueryRowContext(context.Background(), "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
