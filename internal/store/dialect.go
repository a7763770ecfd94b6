package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/roach88/fixtures/internal/access"
)

// dialect isolates everything that differs between SQLite and PostgreSQL.
type dialect interface {
	open() (*sql.DB, error)
	layout() Layout

	// rebind converts ? placeholders to the dialect's form.
	rebind(query string) string

	// elevate starts a session acting as the owner identity.
	elevate(ctx context.Context, db *sql.DB, readOnly bool) (*Session, error)

	// classify wraps err with ErrPermission, ErrBusy or ErrNotInstalled
	// when it is one of those conditions.
	classify(err error) error

	currentIdentity(ctx context.Context, db *sql.DB) (string, error)
	probe(ctx context.Context, s *Store) (access.Probe, error)
	captureIdentity(ctx context.Context, s *Store) (string, error)
	createNamespaces(ctx context.Context, s *Store, caller string) error
	privilegedSetup(ctx context.Context, s *Store) error
	dropNamespaces(ctx context.Context, s *Store) error
	dropOwner(ctx context.Context, s *Store) error
}

// Layout holds quoted, qualified names of engine-owned tables.
type Layout struct {
	Recipe    string
	Admission string
	Fixture   string
	Install   string
}

// quote quotes a possibly qualified identifier.
func quote(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// rebindDollar rewrites ? placeholders as $1, $2, ... outside of string
// literals and quoted identifiers.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quoteChar byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quoteChar != 0:
			if c == quoteChar {
				quoteChar = 0
			}
		case c == '\'' || c == '"':
			quoteChar = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
