package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixtures/internal/engine"
	"github.com/roach88/fixtures/internal/ir"
	"github.com/roach88/fixtures/internal/testutil"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	m, err := Load("testdata/billing.yaml")
	require.NoError(t, err)

	assert.Equal(t, "testdata/billing.yaml", m.Source)
	assert.Equal(t, []string{"customer", "invoice"}, m.EntityTypes())
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []ir.FixtureKey{
		ir.Key("customer", "base"),
		ir.Key("customer", "pair"),
		ir.Key("invoice", "base"),
	}, m.Keys())
	assert.Contains(t, m.Entities["invoice"][0].Expression, `{{ ref "customer" "base" "id" }}`)
}

func TestLoad_CUEMatchesYAML(t *testing.T) {
	fromYAML, err := Load("testdata/billing.yaml")
	require.NoError(t, err)
	fromCUE, err := Load("testdata/billing.cue")
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Entities, fromCUE.Entities)
}

func TestLoad_CUEPackage(t *testing.T) {
	m, err := Load("testdata/cuepkg")
	require.NoError(t, err)

	assert.Equal(t, "testdata/cuepkg", m.Source)
	require.Len(t, m.Entities["customer"], 2)
	assert.Equal(t, "alpha", m.Entities["customer"][0].SetName)
	assert.Equal(t, "INSERT INTO customers (name) VALUES ('beta') RETURNING *", m.Entities["customer"][1].Expression)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unsupported extension", "m.json", `{}`, "unsupported manifest extension"},
		{"unknown field", "m.yaml", "entities:\n  a:\n    - set: x\n      query: SELECT 1\n", "field query not found"},
		{"no entities", "m.yaml", "entities: {}\n", ErrEmpty.Error()},
		{"bad entity type", "m.yaml", "entities:\n  bad-name:\n    - set: x\n      sql: SELECT 1\n", "not a valid identifier"},
		{"duplicate set", "m.yaml", "entities:\n  a:\n    - set: x\n      sql: SELECT 1\n    - set: x\n      sql: SELECT 2\n", `duplicate set name "x"`},
		{"bad template", "m.yaml", "entities:\n  a:\n    - set: x\n      sql: SELECT {{ ref \n", "INVALID_RECIPE_LIST"},
		{"cue syntax", "m.cue", "entities: {", "compiling CUE"},
		{"cue not concrete", "m.cue", "entities: a: [{set: string, sql: \"SELECT 1\"}]\n", "must be concrete"},
		{"cue no entities", "m.cue", "other: 1\n", ErrEmpty.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files found")
}

type call struct {
	entity  string
	recipes int
}

type recordingRegistrar struct {
	calls  []call
	failOn string
}

func (r *recordingRegistrar) Register(_ context.Context, entityType string, recipes []ir.Recipe) error {
	if entityType == r.failOn {
		return ir.NewInvalidRecipeList(entityType, "rejected")
	}
	r.calls = append(r.calls, call{entityType, len(recipes)})
	return nil
}

func TestRegister_SortedOrder(t *testing.T) {
	m, err := Load("testdata/billing.yaml")
	require.NoError(t, err)

	rec := &recordingRegistrar{}
	require.NoError(t, m.Register(context.Background(), rec))
	assert.Equal(t, []call{{"customer", 2}, {"invoice", 1}}, rec.calls)
}

func TestRegister_StopsAtFirstError(t *testing.T) {
	m, err := Load("testdata/billing.yaml")
	require.NoError(t, err)

	rec := &recordingRegistrar{failOn: "customer"}
	err = m.Register(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, ir.IsInvalidRecipeList(err))
	assert.Contains(t, err.Error(), "register customer")
	assert.Empty(t, rec.calls)

	var fe *ir.FixtureError
	assert.True(t, errors.As(err, &fe))
}

func TestRegister_WithResolver(t *testing.T) {
	ctx := context.Background()
	s, _ := testutil.InstalledStore(t)
	testutil.Exec(t, s,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE invoices (id INTEGER PRIMARY KEY AUTOINCREMENT, customer_id INTEGER NOT NULL REFERENCES customers(id), total INTEGER NOT NULL)`,
	)

	m, err := Load("testdata/billing.yaml")
	require.NoError(t, err)
	r := engine.New(s)
	require.NoError(t, m.Register(ctx, r))

	invoice, err := r.Get(ctx, "invoice", "base")
	require.NoError(t, err)
	require.Equal(t, 1, invoice.RowCount())

	customer, err := r.Get(ctx, "customer", "base")
	require.NoError(t, err)
	assert.Equal(t, customer.First()["id"], invoice.First()["customer_id"])
	assert.Equal(t, 1, testutil.Count(t, s, "customers"))
}
