package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/config"
)

const pgxDriver = "pgx"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// minServerVersion is the first release with per-grant INHERIT options.
const minServerVersion = 160000

// PostgreSQL maps the model directly: the owner is a NOLOGIN role, the
// namespaces are schemas it owns, and elevation is SET LOCAL ROLE inside the
// session transaction, which the server reverts at commit or rollback.
//
// The installer is granted the owner WITH INHERIT FALSE, SET TRUE: it may
// become the owner inside a session but never holds the owner's privileges
// outside one. Only roles holding such a membership can Get or Register; an
// administrator admits another role with
//
//	GRANT fixtures_owner TO app_role WITH INHERIT FALSE, SET TRUE;
//
// Superusers bypass privilege checks entirely and are not isolated.
type postgresDialect struct {
	cfg   config.Config
	names Layout
	owner string
}

func newPostgresDialect(cfg config.Config) *postgresDialect {
	ns := cfg.Namespaces
	return &postgresDialect{
		cfg:   cfg,
		owner: quote(cfg.Owner),
		names: Layout{
			Recipe:    quote(ns.Internal, "recipe"),
			Admission: quote(ns.Internal, "admission"),
			Fixture:   quote(ns.Cache, "fixture"),
			Install:   quote(ns.API, "install"),
		},
	}
}

func (d *postgresDialect) layout() Layout { return d.names }

func (d *postgresDialect) rebind(query string) string { return rebindDollar(query) }

func (d *postgresDialect) open() (*sql.DB, error) {
	openMu.Lock()
	defer openMu.Unlock()
	return sqlOpen(pgxDriver, d.cfg.DSN)
}

func (d *postgresDialect) elevate(ctx context.Context, db *sql.DB, readOnly bool) (*Session, error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return nil, err
	}
	stmts := []string{
		"SET LOCAL ROLE " + d.owner,
		fmt.Sprintf("SET LOCAL lock_timeout = %d", d.cfg.LockTimeout.Milliseconds()),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("elevate: %w", err)
		}
	}
	return &Session{
		d:       d,
		q:       tx,
		tx:      tx,
		release: func() error { return nil },
	}, nil
}

func (d *postgresDialect) classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "42501": // insufficient_privilege
		return markError(ErrPermission, err)
	case "55P03", "40P01": // lock_not_available, deadlock_detected
		return markError(ErrBusy, err)
	case "42P01", "3F000", "42883": // undefined_table, invalid_schema_name, undefined_function
		if d.mentionsEngine(pgErr.Message) {
			return markError(ErrNotInstalled, err)
		}
	case "22023", "42704": // invalid_parameter_value, undefined_object
		if strings.Contains(pgErr.Message, `"`+d.cfg.Owner+`"`) {
			return markError(ErrNotInstalled, err)
		}
	}
	return err
}

func (d *postgresDialect) mentionsEngine(msg string) bool {
	ns := d.cfg.Namespaces
	for _, name := range []string{ns.API, ns.Internal, ns.Cache} {
		if strings.Contains(msg, name) {
			return true
		}
	}
	return false
}

func (d *postgresDialect) currentIdentity(ctx context.Context, db *sql.DB) (string, error) {
	var name string
	if err := db.QueryRowContext(ctx, `SELECT current_user`).Scan(&name); err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}
	return name, nil
}

func (d *postgresDialect) probe(ctx context.Context, s *Store) (p access.Probe, err error) {
	ns := d.cfg.Namespaces
	err = s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1),
			(SELECT count(*) FROM pg_namespace WHERE nspname IN ($2, $3, $4)),
			to_regclass($5) IS NOT NULL AND to_regclass($6) IS NOT NULL
				AND to_regclass($7) IS NOT NULL AND to_regclass($8) IS NOT NULL`,
		d.cfg.Owner, ns.API, ns.Internal, ns.Cache,
		d.names.Recipe, d.names.Admission, d.names.Fixture, d.names.Install,
	).Scan(&p.OwnerExists, &p.Namespaces, &p.SetupComplete)
	if err != nil {
		return p, fmt.Errorf("probe catalog: %w", d.classify(err))
	}
	p.IdentityCaptured = p.OwnerExists

	if p.SetupComplete {
		err = s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+d.names.Install+`)`).Scan(&p.Marker)
		if err != nil {
			return p, fmt.Errorf("read install marker: %w", d.classify(err))
		}
	}
	return p, nil
}

func (d *postgresDialect) captureIdentity(ctx context.Context, s *Store) (string, error) {
	return d.currentIdentity(ctx, s.db)
}

// inTx runs fn in a transaction as the installer.
func (d *postgresDialect) inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", d.classify(err))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", d.classify(err))
	}
	committed = true
	return nil
}

func (d *postgresDialect) execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute %q: %w", firstLine(stmt), d.classify(err))
		}
	}
	return nil
}

func (d *postgresDialect) createNamespaces(ctx context.Context, s *Store, caller string) error {
	ns := d.cfg.Namespaces
	return d.inTx(ctx, s.db, func(tx *sql.Tx) error {
		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT current_setting('server_version_num')::int`,
		).Scan(&version); err != nil {
			return fmt.Errorf("server version: %w", d.classify(err))
		}
		if version < minServerVersion {
			return fmt.Errorf("PostgreSQL %d or newer is required for non-inheriting role membership, server is %d",
				minServerVersion/10000, version)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, d.cfg.Owner,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check owner: %w", d.classify(err))
		}
		var stmts []string
		if !exists {
			stmts = append(stmts, "CREATE ROLE "+d.owner+" NOLOGIN")
		}
		stmts = append(stmts,
			d.membershipGrant(caller),
			"CREATE SCHEMA IF NOT EXISTS "+quote(ns.API)+" AUTHORIZATION "+d.owner,
			"CREATE SCHEMA IF NOT EXISTS "+quote(ns.Internal)+" AUTHORIZATION "+d.owner,
			"CREATE SCHEMA IF NOT EXISTS "+quote(ns.Cache)+" AUTHORIZATION "+d.owner,
		)
		return d.execAll(ctx, tx, stmts)
	})
}

// membershipGrant lets caller SET ROLE to the owner without inheriting its
// privileges.
func (d *postgresDialect) membershipGrant(caller string) string {
	return "GRANT " + d.owner + " TO " + quote(caller) + " WITH INHERIT FALSE, SET TRUE"
}

func (d *postgresDialect) privilegedSetup(ctx context.Context, s *Store) error {
	ns := d.cfg.Namespaces
	err := d.inTx(ctx, s.db, func(tx *sql.Tx) error {
		// Recipes run as the owner, so it needs the application schemas.
		var grants []string
		for _, schema := range d.cfg.DataSchemas {
			q := quote(schema)
			grants = append(grants,
				"GRANT USAGE, CREATE ON SCHEMA "+q+" TO "+d.owner,
				"GRANT ALL ON ALL TABLES IN SCHEMA "+q+" TO "+d.owner,
				"GRANT ALL ON ALL SEQUENCES IN SCHEMA "+q+" TO "+d.owner,
				"ALTER DEFAULT PRIVILEGES IN SCHEMA "+q+" GRANT ALL ON TABLES TO "+d.owner,
				"ALTER DEFAULT PRIVILEGES IN SCHEMA "+q+" GRANT ALL ON SEQUENCES TO "+d.owner,
			)
		}
		if err := d.execAll(ctx, tx, grants); err != nil {
			return err
		}

		// Everything below is created by, and owned by, the owner role.
		return d.execAll(ctx, tx, []string{
			"SET LOCAL ROLE " + d.owner,
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
				row_count    BIGINT NOT NULL,
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
			"REVOKE ALL ON SCHEMA " + quote(ns.Internal) + " FROM PUBLIC",
			"REVOKE ALL ON SCHEMA " + quote(ns.Cache) + " FROM PUBLIC",
			"GRANT USAGE ON SCHEMA " + quote(ns.API) + " TO PUBLIC",
			"GRANT SELECT ON " + d.names.Install + " TO PUBLIC",
		})
	})
	if err != nil {
		return err
	}
	return d.checkIsolation(ctx, s)
}

// checkIsolation verifies the caller cannot reach the cache schema without
// elevating. It fails when some membership of the caller in the owner still
// inherits, e.g. an implicit grant under createrole_self_grant = 'inherit'.
func (d *postgresDialect) checkIsolation(ctx context.Context, s *Store) error {
	var user string
	var super, usage bool
	err := s.db.QueryRowContext(ctx, `
		SELECT current_user, rolsuper, has_schema_privilege(current_user, $1, 'USAGE')
		FROM pg_roles WHERE rolname = current_user`,
		d.cfg.Namespaces.Cache,
	).Scan(&user, &super, &usage)
	if err != nil {
		return fmt.Errorf("check isolation: %w", d.classify(err))
	}
	switch {
	case super:
		s.logger.Warn("installer is a superuser; engine tables are not isolated from it", "role", user)
	case usage:
		return fmt.Errorf("check isolation: role %q can use schema %q without elevating; revoke its inheriting membership in %s",
			user, d.cfg.Namespaces.Cache, d.cfg.Owner)
	}
	return nil
}

func (d *postgresDialect) dropNamespaces(ctx context.Context, s *Store) error {
	ns := d.cfg.Namespaces
	return d.inTx(ctx, s.db, func(tx *sql.Tx) error {
		return d.execAll(ctx, tx, []string{
			"DROP SCHEMA IF EXISTS " + quote(ns.API) + ", " + quote(ns.Internal) + ", " + quote(ns.Cache) + " CASCADE",
		})
	})
}

func (d *postgresDialect) dropOwner(ctx context.Context, s *Store) error {
	return d.inTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, d.cfg.Owner,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check owner: %w", d.classify(err))
		}
		if !exists {
			return nil
		}
		// DROP OWNED also revokes the owner's grants and default privileges.
		return d.execAll(ctx, tx, []string{
			"DROP OWNED BY " + d.owner,
			"DROP ROLE " + d.owner,
		})
	})
}
