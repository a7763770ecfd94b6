package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Mode selects what a Session may do.
type Mode int

const (
	// ReadOnly sessions only read engine-owned tables.
	ReadOnly Mode = iota

	// ReadWrite sessions run inside one transaction that is either committed
	// or rolled back as a whole.
	ReadWrite
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is a unit of work acting as the owner identity.
//
// Elevation lasts exactly as long as the session: Commit and Rollback both
// restore the caller identity. A Session is not safe for concurrent use.
type Session struct {
	d       dialect
	names   Layout
	q       queryer
	tx      *sql.Tx
	release func() error
	done    bool
}

// Begin starts an elevated session.
//
// On SQLite the session holds the store's only connection until Commit or
// Rollback. Calling a Store-level method (Exec, ListRecipes, Stats, ...)
// while a session of the same Store is open blocks forever.
func (s *Store) Begin(ctx context.Context, mode Mode) (*Session, error) {
	sess, err := s.dialect.elevate(ctx, s.db, mode == ReadOnly)
	if err != nil {
		return nil, fmt.Errorf("begin session: %w", s.classify(err))
	}
	sess.names = s.names
	return sess, nil
}

// Commit commits the session's transaction and ends elevation.
func (sess *Session) Commit() error {
	if sess.done {
		return ErrSessionDone
	}
	sess.done = true

	var err error
	if sess.tx != nil {
		if cerr := sess.tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit: %w", sess.d.classify(cerr))
		}
	}
	if rerr := sess.release(); rerr != nil && err == nil {
		err = fmt.Errorf("restore identity: %w", rerr)
	}
	return err
}

// Rollback discards the session's work and ends elevation. Calling Rollback
// after Commit is a no-op, so it can be deferred.
func (sess *Session) Rollback() error {
	if sess.done {
		return nil
	}
	sess.done = true

	var err error
	if sess.tx != nil {
		if rerr := sess.tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = fmt.Errorf("rollback: %w", rerr)
		}
	}
	if rerr := sess.release(); rerr != nil && err == nil {
		err = fmt.Errorf("restore identity: %w", rerr)
	}
	return err
}

func (sess *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if sess.done {
		return nil, ErrSessionDone
	}
	res, err := sess.q.ExecContext(ctx, sess.d.rebind(query), args...)
	if err != nil {
		return nil, sess.d.classify(err)
	}
	return res, nil
}

func (sess *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if sess.done {
		return nil, ErrSessionDone
	}
	rows, err := sess.q.QueryContext(ctx, sess.d.rebind(query), args...)
	if err != nil {
		return nil, sess.d.classify(err)
	}
	return rows, nil
}

// queryRow runs a single-row query and scans it into dest.
// Returns sql.ErrNoRows unwrapped so callers can test for absence.
func (sess *Session) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	if sess.done {
		return ErrSessionDone
	}
	err := sess.q.QueryRowContext(ctx, sess.d.rebind(query), args...).Scan(dest...)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return sess.d.classify(err)
}
