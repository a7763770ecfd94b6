package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fixtures/internal/config"
	"github.com/roach88/fixtures/internal/ir"
)

// Store provides durable storage for recipes and materialized fixtures.
//
// Engine-owned tables are only reachable through elevated Sessions. The
// embedded *sql.DB runs with the caller's identity, for which those tables
// are off limits.
type Store struct {
	db      *sql.DB
	dialect dialect
	cfg     config.Config
	names   Layout
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to the store described by cfg.
//
// Open does not create any engine objects; use the access package to install
// them. It is safe to open many Stores against the same target, from one
// process or several.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Store{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		s.dialect = newSQLiteDialect(cfg)
	case config.DriverPostgres:
		s.dialect = newPostgresDialect(cfg)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	s.names = s.dialect.layout()

	db, err := s.dialect.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s.db = db

	s.logger.Debug("store opened", "driver", cfg.Driver)
	return s, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB, which acts as the caller identity.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the configured dialect.
func (s *Store) Driver() config.Driver {
	return s.cfg.Driver
}

// Layout returns the qualified names of engine-owned tables.
func (s *Store) Layout() Layout {
	return s.names
}

// Exec runs a statement as the caller. Touching engine-owned tables fails
// with a PERMISSION_DENIED error.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, s.callerError(err)
	}
	return res, nil
}

// Query runs a query as the caller.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.callerError(err)
	}
	return rows, nil
}

func (s *Store) callerError(err error) error {
	classified := s.classify(err)
	if IsPermission(classified) {
		return ir.NewPermissionDenied(ir.FixtureKey{}, err)
	}
	return classified
}
