package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/fixtures/internal/config"
)

func TestRebindDollar(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"none", "SELECT 1", "SELECT 1"},
		{"sequential", "WHERE a = ? AND b = ?", "WHERE a = $1 AND b = $2"},
		{"string literal", "SELECT '?' WHERE a = ?", "SELECT '?' WHERE a = $1"},
		{"quoted identifier", `SELECT "a?b" FROM t WHERE c = ?`, `SELECT "a?b" FROM t WHERE c = $1`},
		{"escaped quote", "SELECT 'it''s ?' , ?", "SELECT 'it''s ?' , $1"},
		{"ten", "?,?,?,?,?,?,?,?,?,?", "$1,$2,$3,$4,$5,$6,$7,$8,$9,$10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rebindDollar(tt.in))
		})
	}
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `"fixtures_cache"."fixture"`, quote("fixtures_cache", "fixture"))
	assert.Equal(t, `"fixtures_owner"`, quote("fixtures_owner"))
	assert.Equal(t, `"we""ird"`, quote(`we"ird`))
}

func TestSQLiteClassify(t *testing.T) {
	d := newSQLiteDialect(config.Default())

	tests := []struct {
		name         string
		err          error
		permission   bool
		busy         bool
		notInstalled bool
	}{
		{name: "auth", err: sqlite3.Error{Code: sqlite3.ErrAuth}, permission: true},
		{name: "busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, busy: true},
		{name: "locked", err: sqlite3.Error{Code: sqlite3.ErrLocked}, busy: true},
		{name: "wrapped busy", err: fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), busy: true},
		{name: "constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}},
		{name: "plain", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.classify(tt.err)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.permission, IsPermission(got))
			assert.Equal(t, tt.busy, IsBusy(got))
			assert.Equal(t, tt.notInstalled, IsNotInstalled(got))
		})
	}
	assert.NoError(t, d.classify(nil))
}

func TestSQLiteRestrict(t *testing.T) {
	d := newSQLiteDialect(config.Default())

	tests := []struct {
		name string
		op   int
		arg1 string
		arg2 string
		deny bool
	}{
		{"read cache", sqlite3.SQLITE_READ, "fixtures_cache_fixture", "row_data", true},
		{"read internal upper", sqlite3.SQLITE_READ, "FIXTURES_INTERNAL_RECIPE", "expression", true},
		{"alter internal", sqlite3.SQLITE_ALTER_TABLE, "main", "fixtures_internal_admission", true},
		{"read install", sqlite3.SQLITE_READ, "fixtures_install", "caller", false},
		{"delete install", sqlite3.SQLITE_DELETE, "fixtures_install", "", true},
		{"insert grant", sqlite3.SQLITE_INSERT, "fixtures_grant", "", true},
		{"app table", sqlite3.SQLITE_INSERT, "customers", "", false},
		{"select", sqlite3.SQLITE_SELECT, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.restrict(tt.op, tt.arg1, tt.arg2, "main")
			if tt.deny {
				assert.Equal(t, sqlite3.SQLITE_DENY, got)
			} else {
				assert.Equal(t, sqlite3.SQLITE_OK, got)
			}
		})
	}
}
