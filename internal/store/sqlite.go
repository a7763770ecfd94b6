package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/config"
)

// SQLite has no roles or schemas. Namespaces are table-name prefixes, the
// owner identity and its grants live in catalog tables, and isolation is
// enforced by a per-connection authorizer:
//
//   - every connection starts with a restrictive authorizer that denies any
//     access to internal and cache tables and any write to catalog tables;
//   - an elevated session swaps in a permissive authorizer on its pinned
//     connection and restores the restrictive one when it ends.
type sqliteDialect struct {
	cfg   config.Config
	names Layout

	// raw, unquoted table names
	recipe, admission, fixture, install string
	identity, namespace, grant          string

	hidden   []string
	readOnly map[string]bool
}

func newSQLiteDialect(cfg config.Config) *sqliteDialect {
	ns := cfg.Namespaces
	d := &sqliteDialect{
		cfg:       cfg,
		recipe:    ns.Internal + "_recipe",
		admission: ns.Internal + "_admission",
		fixture:   ns.Cache + "_fixture",
		install:   ns.API + "_install",
		identity:  ns.API + "_identity",
		namespace: ns.API + "_namespace",
		grant:     ns.API + "_grant",
		hidden: []string{
			strings.ToLower(ns.Internal + "_"),
			strings.ToLower(ns.Cache + "_"),
		},
	}
	d.readOnly = map[string]bool{
		strings.ToLower(d.install):   true,
		strings.ToLower(d.identity):  true,
		strings.ToLower(d.namespace): true,
		strings.ToLower(d.grant):     true,
	}
	d.names = Layout{
		Recipe:    quote(d.recipe),
		Admission: quote(d.admission),
		Fixture:   quote(d.fixture),
		Install:   quote(d.install),
	}
	return d
}

func (d *sqliteDialect) layout() Layout { return d.names }

func (d *sqliteDialect) rebind(query string) string { return query }

// sqliteConnector opens connections with this dialect's connect hook, so
// every Store carries its own namespace configuration.
type sqliteConnector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func (c *sqliteConnector) Connect(ctx context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *sqliteConnector) Driver() driver.Driver {
	return c.driver
}

func (d *sqliteDialect) open() (*sql.DB, error) {
	dsn := d.cfg.DSN
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	// Write sessions take the write lock up front; a deferred transaction
	// that upgrades later fails with SQLITE_BUSY without waiting.
	dsn += sep + "_txlock=immediate"

	db := sql.OpenDB(&sqliteConnector{
		dsn:    dsn,
		driver: &sqlite3.SQLiteDriver{ConnectHook: d.connectHook},
	})

	// SQLite only supports one writer at a time, so limit connections.
	// Nested resolution reuses the session's connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// connectHook applies required pragmas and installs the restrictive
// authorizer on each new connection.
func (d *sqliteDialect) connectHook(conn *sqlite3.SQLiteConn) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", d.cfg.LockTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	conn.RegisterAuthorizer(d.restrict)
	return nil
}

// restrict is the authorizer for caller connections.
func (d *sqliteDialect) restrict(op int, arg1, arg2, _ string) int {
	for _, arg := range [2]string{arg1, arg2} {
		if arg == "" {
			continue
		}
		name := strings.ToLower(arg)
		for _, prefix := range d.hidden {
			if strings.HasPrefix(name, prefix) {
				return sqlite3.SQLITE_DENY
			}
		}
		if d.readOnly[name] && op != sqlite3.SQLITE_READ {
			return sqlite3.SQLITE_DENY
		}
	}
	return sqlite3.SQLITE_OK
}

func permit(int, string, string, string) int {
	return sqlite3.SQLITE_OK
}

func (d *sqliteDialect) setAuthorizer(conn *sql.Conn, fn func(int, string, string, string) int) error {
	return conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		sc.RegisterAuthorizer(fn)
		return nil
	})
}

func (d *sqliteDialect) elevate(ctx context.Context, db *sql.DB, readOnly bool) (*Session, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.setAuthorizer(conn, permit); err != nil {
		conn.Close()
		return nil, fmt.Errorf("elevate: %w", err)
	}

	release := func() error {
		err := d.setAuthorizer(conn, d.restrict)
		if err != nil {
			// Never hand a permissive connection back to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
		return err
	}

	sess := &Session{d: d, q: conn, release: release}
	if readOnly {
		return sess, nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		_ = release()
		return nil, err
	}
	sess.q = tx
	sess.tx = tx
	return sess, nil
}

func (d *sqliteDialect) classify(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case sqlite3.ErrAuth:
		return markError(ErrPermission, err)
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return markError(ErrBusy, err)
	case sqlite3.ErrError:
		msg := strings.ToLower(se.Error())
		if strings.Contains(msg, "no such table") {
			for _, name := range []string{d.recipe, d.admission, d.fixture, d.install} {
				if strings.Contains(msg, strings.ToLower(name)) {
					return markError(ErrNotInstalled, err)
				}
			}
		}
	}
	return err
}

func (d *sqliteDialect) currentIdentity(ctx context.Context, db *sql.DB) (string, error) {
	return d.cfg.Caller, nil
}

func (d *sqliteDialect) tableExists(ctx context.Context, sess *Session, name string) (bool, error) {
	var n int
	err := sess.queryRow(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		[]any{name}, &n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

func (d *sqliteDialect) probe(ctx context.Context, s *Store) (p access.Probe, err error) {
	sess, err := s.Begin(ctx, ReadOnly)
	if err != nil {
		return p, err
	}
	defer sess.Rollback()

	catalog, err := d.tableExists(ctx, sess, d.identity)
	if err != nil {
		return p, err
	}
	if catalog {
		if err := sess.queryRow(ctx,
			`SELECT
				EXISTS (SELECT 1 FROM `+quote(d.identity)+` WHERE kind = 'caller'),
				EXISTS (SELECT 1 FROM `+quote(d.identity)+` WHERE kind = 'owner' AND name = ?),
				(SELECT count(*) FROM `+quote(d.namespace)+` WHERE name IN (?, ?, ?))`,
			[]any{d.cfg.Owner, d.cfg.Namespaces.API, d.cfg.Namespaces.Internal, d.cfg.Namespaces.Cache},
			&p.IdentityCaptured, &p.OwnerExists, &p.Namespaces); err != nil {
			return p, fmt.Errorf("read catalog: %w", err)
		}
	}

	p.SetupComplete = true
	for _, name := range []string{d.recipe, d.admission, d.fixture, d.install} {
		ok, err := d.tableExists(ctx, sess, name)
		if err != nil {
			return p, err
		}
		p.SetupComplete = p.SetupComplete && ok
	}
	installTable, err := d.tableExists(ctx, sess, d.install)
	if err != nil {
		return p, err
	}
	if installTable {
		if err := sess.queryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+d.names.Install+`)`, nil, &p.Marker); err != nil {
			return p, fmt.Errorf("read install marker: %w", err)
		}
	}
	return p, nil
}

// runElevated executes statements in one elevated write session.
func (d *sqliteDialect) runElevated(ctx context.Context, s *Store, stmts []string, args [][]any) error {
	sess, err := s.Begin(ctx, ReadWrite)
	if err != nil {
		return err
	}
	defer sess.Rollback()

	for i, stmt := range stmts {
		var a []any
		if i < len(args) {
			a = args[i]
		}
		if _, err := sess.exec(ctx, stmt, a...); err != nil {
			return fmt.Errorf("execute %q: %w", firstLine(stmt), err)
		}
	}
	return sess.Commit()
}

func (d *sqliteDialect) captureIdentity(ctx context.Context, s *Store) (string, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + quote(d.identity) + ` (
			name       TEXT NOT NULL PRIMARY KEY,
			kind       TEXT NOT NULL CHECK (kind IN ('caller', 'owner')),
			can_login  INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + quote(d.namespace) + ` (
			name  TEXT NOT NULL PRIMARY KEY,
			owner TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + quote(d.grant) + ` (
			object    TEXT NOT NULL,
			grantee   TEXT NOT NULL,
			privilege TEXT NOT NULL,
			PRIMARY KEY (object, grantee, privilege)
		)`,
		`INSERT INTO ` + quote(d.identity) + ` (name, kind, can_login, created_at)
			VALUES (?, 'caller', 1, ?) ON CONFLICT (name) DO NOTHING`,
	}
	args := [][]any{nil, nil, nil, {d.cfg.Caller, now}}
	if err := d.runElevated(ctx, s, stmts, args); err != nil {
		return "", err
	}
	return d.cfg.Caller, nil
}

func (d *sqliteDialect) createNamespaces(ctx context.Context, s *Store, caller string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	ns := d.cfg.Namespaces
	insertNS := `INSERT INTO ` + quote(d.namespace) + ` (name, owner) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`
	stmts := []string{
		`INSERT INTO ` + quote(d.identity) + ` (name, kind, can_login, created_at)
			VALUES (?, 'owner', 0, ?) ON CONFLICT (name) DO NOTHING`,
		`INSERT INTO ` + quote(d.grant) + ` (object, grantee, privilege)
			VALUES (?, ?, 'MEMBER') ON CONFLICT DO NOTHING`,
		insertNS, insertNS, insertNS,
	}
	args := [][]any{
		{d.cfg.Owner, now},
		{d.cfg.Owner, caller},
		{ns.API, d.cfg.Owner},
		{ns.Internal, d.cfg.Owner},
		{ns.Cache, d.cfg.Owner},
	}
	return d.runElevated(ctx, s, stmts, args)
}

func (d *sqliteDialect) privilegedSetup(ctx context.Context, s *Store) error {
	ns := d.cfg.Namespaces
	insertGrant := `INSERT INTO ` + quote(d.grant) + ` (object, grantee, privilege) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + d.names.Recipe + ` (
			entity_type TEXT NOT NULL,
			set_name    TEXT NOT NULL,
			expression  TEXT NOT NULL,
			position    INTEGER NOT NULL,
			PRIMARY KEY (entity_type, set_name)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + d.names.Admission + ` (
			entity_type TEXT NOT NULL,
			set_name    TEXT NOT NULL,
			holder      TEXT NOT NULL,
			acquired_at TEXT NOT NULL,
			PRIMARY KEY (entity_type, set_name)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + d.names.Fixture + ` (
			entity_type  TEXT NOT NULL,
			set_name     TEXT NOT NULL,
			column_names TEXT NOT NULL,
			row_data     TEXT NOT NULL,
			row_count    INTEGER NOT NULL,
			digest       TEXT NOT NULL,
			created_by   TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			PRIMARY KEY (entity_type, set_name)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + d.names.Install + ` (
			id             INTEGER NOT NULL PRIMARY KEY CHECK (id = 1),
			layout_version TEXT NOT NULL,
			engine_version TEXT NOT NULL,
			installed_by   TEXT NOT NULL,
			installed_at   TEXT NOT NULL
		)`,
		insertGrant, insertGrant, insertGrant,
	}
	args := [][]any{nil, nil, nil, nil,
		{ns.API, "PUBLIC", "USAGE"},
		{ns.Internal, d.cfg.Owner, "ALL"},
		{ns.Cache, d.cfg.Owner, "ALL"},
	}
	return d.runElevated(ctx, s, stmts, args)
}

func (d *sqliteDialect) dropNamespaces(ctx context.Context, s *Store) error {
	stmts := []string{
		`DROP TABLE IF EXISTS ` + d.names.Recipe,
		`DROP TABLE IF EXISTS ` + d.names.Admission,
		`DROP TABLE IF EXISTS ` + d.names.Fixture,
		`DROP TABLE IF EXISTS ` + d.names.Install,
	}
	if err := d.runElevated(ctx, s, stmts, nil); err != nil {
		return err
	}

	ns := d.cfg.Namespaces
	return d.withCatalog(ctx, s, []string{
		`DELETE FROM ` + quote(d.grant) + ` WHERE object IN (?, ?, ?)`,
		`DELETE FROM ` + quote(d.namespace) + ` WHERE name IN (?, ?, ?)`,
	}, [][]any{
		{ns.API, ns.Internal, ns.Cache},
		{ns.API, ns.Internal, ns.Cache},
	})
}

func (d *sqliteDialect) dropOwner(ctx context.Context, s *Store) error {
	return d.runElevated(ctx, s, []string{
		`DROP TABLE IF EXISTS ` + quote(d.grant),
		`DROP TABLE IF EXISTS ` + quote(d.namespace),
		`DROP TABLE IF EXISTS ` + quote(d.identity),
	}, nil)
}

// withCatalog runs stmts only when the catalog tables exist.
func (d *sqliteDialect) withCatalog(ctx context.Context, s *Store, stmts []string, args [][]any) error {
	sess, err := s.Begin(ctx, ReadOnly)
	if err != nil {
		return err
	}
	exists, err := d.tableExists(ctx, sess, d.grant)
	sess.Rollback()
	if err != nil || !exists {
		return err
	}
	return d.runElevated(ctx, s, stmts, args)
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

