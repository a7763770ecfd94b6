package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/config"
	"github.com/roach88/fixtures/internal/ir"
)

const envTestPostgresDSN = "FIXTURES_TEST_POSTGRES_DSN"

func postgresTestConfig() config.Config {
	cfg := config.Default()
	cfg.Driver = config.DriverPostgres
	cfg.DSN = "postgres://localhost/fixtures"
	return cfg
}

func TestPostgresLayout(t *testing.T) {
	d := newPostgresDialect(postgresTestConfig())
	assert.Equal(t, Layout{
		Recipe:    `"fixtures_internal"."recipe"`,
		Admission: `"fixtures_internal"."admission"`,
		Fixture:   `"fixtures_cache"."fixture"`,
		Install:   `"fixtures"."install"`,
	}, d.layout())
	assert.Equal(t, "SELECT $1, $2", d.rebind("SELECT ?, ?"))
}

func TestPostgresMembershipDoesNotInherit(t *testing.T) {
	d := newPostgresDialect(postgresTestConfig())
	assert.Equal(t,
		`GRANT "fixtures_owner" TO "app ""user""" WITH INHERIT FALSE, SET TRUE`,
		d.membershipGrant(`app "user"`))
}

func TestPostgresClassify(t *testing.T) {
	d := newPostgresDialect(postgresTestConfig())

	tests := []struct {
		name         string
		err          *pgconn.PgError
		permission   bool
		busy         bool
		notInstalled bool
	}{
		{name: "insufficient privilege", err: &pgconn.PgError{Code: "42501", Message: "permission denied for schema fixtures_cache"}, permission: true},
		{name: "lock timeout", err: &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}, busy: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, busy: true},
		{name: "engine table missing", err: &pgconn.PgError{Code: "42P01", Message: `relation "fixtures_cache.fixture" does not exist`}, notInstalled: true},
		{name: "app table missing", err: &pgconn.PgError{Code: "42P01", Message: `relation "customers" does not exist`}},
		{name: "owner missing", err: &pgconn.PgError{Code: "22023", Message: `role "fixtures_owner" does not exist`}, notInstalled: true},
		{name: "other role missing", err: &pgconn.PgError{Code: "42704", Message: `role "someone" does not exist`}},
		{name: "syntax", err: &pgconn.PgError{Code: "42601", Message: "syntax error"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.classify(tt.err)
			var pgErr *pgconn.PgError
			require.True(t, errors.As(got, &pgErr), "driver error stays reachable")
			assert.Equal(t, tt.permission, IsPermission(got))
			assert.Equal(t, tt.busy, IsBusy(got))
			assert.Equal(t, tt.notInstalled, IsNotInstalled(got))
		})
	}
	assert.Equal(t, "plain", d.classify(errors.New("plain")).Error())
}

func TestPostgresOpenFailure(t *testing.T) {
	openMu.Lock()
	orig := sqlOpen
	sqlOpen = func(driverName, dsn string) (*sql.DB, error) {
		assert.Equal(t, pgxDriver, driverName)
		return nil, errors.New("dial refused")
	}
	openMu.Unlock()
	t.Cleanup(func() {
		openMu.Lock()
		sqlOpen = orig
		openMu.Unlock()
	})

	_, err := Open(context.Background(), postgresTestConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial refused")
}

// postgresTestStore opens a store against the server named by
// FIXTURES_TEST_POSTGRES_DSN, with namespaces private to the test.
func postgresTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(envTestPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set", envTestPostgresDSN)
	}
	suffix := strings.ToLower(strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	cfg := postgresTestConfig()
	cfg.DSN = dsn
	cfg.Owner = "fx_owner_" + suffix
	cfg.Namespaces = config.Namespaces{
		API:      "fx_api_" + suffix,
		Internal: "fx_internal_" + suffix,
		Cache:    "fx_cache_" + suffix,
	}
	cfg.LockTimeout = 2 * time.Second

	s := openTestStore(t, cfg)
	t.Cleanup(func() {
		_, _ = access.New(s).Uninstall(context.Background())
	})
	return s
}

func TestPostgresInstallAndUse(t *testing.T) {
	ctx := context.Background()
	s := postgresTestStore(t)
	b := access.New(s)

	state, err := b.Install(ctx)
	require.NoError(t, err)
	assert.Equal(t, access.Installed, state)

	inst, err := s.Installation(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.LayoutVersion, inst.LayoutVersion)

	sess, err := s.Begin(ctx, ReadWrite)
	require.NoError(t, err)
	_, err = sess.ReplaceRecipes(ctx, "users", []ir.Recipe{{SetName: "one", Expression: "SELECT 1 AS id"}})
	require.NoError(t, err)
	cols, rows, err := sess.ExecRecipe(ctx, "SELECT 1 AS id")
	require.NoError(t, err)
	require.NoError(t, sess.WriteFixture(ctx, &ir.Fixture{
		Key: ir.Key("users", "one"), Columns: cols, Rows: rows, CreatedBy: "test",
	}))
	require.NoError(t, sess.Commit())

	var super bool
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT rolsuper FROM pg_roles WHERE rolname = current_user`).Scan(&super))
	if !super {
		// Membership in the owner does not carry its privileges.
		_, err = s.Query(ctx, "SELECT * FROM "+s.names.Fixture)
		assert.True(t, ir.IsPermissionDenied(err), "got %v", err)
		_, err = s.Exec(ctx, "DELETE FROM "+s.names.Recipe)
		assert.True(t, ir.IsPermissionDenied(err), "got %v", err)
	}

	read, err := s.Begin(ctx, ReadOnly)
	require.NoError(t, err)
	defer read.Rollback()
	f, ok, err := read.LookupFixture(ctx, ir.Key("users", "one"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.IRInt(1), f.First()["id"])
}

func TestPostgresUninstall(t *testing.T) {
	ctx := context.Background()
	s := postgresTestStore(t)
	b := access.New(s)

	_, err := b.Install(ctx)
	require.NoError(t, err)
	state, err := b.Uninstall(ctx)
	require.NoError(t, err)
	assert.Equal(t, access.Uninstalled, state)

	p, err := s.Probe(ctx)
	require.NoError(t, err)
	assert.True(t, p.Empty())
}
