package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixtures/internal/ir"
)

func manifestOf(entities map[string][]ir.Recipe) *Manifest {
	return &Manifest{Entities: entities}
}

func TestDependencies(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    []ir.FixtureKey
		dynamic bool
	}{
		{"none", `SELECT 1`, []ir.FixtureKey{}, false},
		{"ref", `SELECT {{ ref "customer" "base" "id" }}`, []ir.FixtureKey{ir.Key("customer", "base")}, false},
		{"refs", `SELECT * FROM t WHERE id IN ({{ refs "customer" "pair" "id" }})`, []ir.FixtureKey{ir.Key("customer", "pair")}, false},
		{"fixture in range", `{{ range fixture "customer" "pair" }}SELECT {{ .id }};{{ end }}`, []ir.FixtureKey{ir.Key("customer", "pair")}, false},
		{"nested pipeline", `SELECT {{ lit (ref "customer" "base" "name") }}`, []ir.FixtureKey{ir.Key("customer", "base")}, false},
		{"if else branches", `{{ if true }}{{ ref "a" "x" "id" }}{{ else }}{{ ref "b" "y" "id" }}{{ end }}`, []ir.FixtureKey{ir.Key("a", "x"), ir.Key("b", "y")}, false},
		{"with and variable", `{{ with $id := ref "a" "x" "id" }}SELECT {{ $id }}{{ end }}`, []ir.FixtureKey{ir.Key("a", "x")}, false},
		{"defined template", `{{ define "c" }}{{ ref "a" "x" "id" }}{{ end }}SELECT {{ template "c" }}`, []ir.FixtureKey{ir.Key("a", "x")}, false},
		{"chained field", `SELECT {{ (index (fixture "customer" "pair") 0).id }}`, []ir.FixtureKey{ir.Key("customer", "pair")}, false},
		{"deduplicated", `SELECT {{ ref "a" "x" "id" }}, {{ ref "a" "x" "name" }}`, []ir.FixtureKey{ir.Key("a", "x")}, false},
		{"dynamic", `SELECT {{ ref .EntityType "base" "id" }}`, []ir.FixtureKey{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, dynamic, err := Dependencies(ir.Key("invoice", "base"), tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, deps)
			assert.Equal(t, tt.dynamic, dynamic)
		})
	}
}

func TestDependencies_ParseError(t *testing.T) {
	_, _, err := Dependencies(ir.Key("invoice", "base"), `SELECT {{ ref "a" `)
	require.Error(t, err)
	assert.True(t, ir.IsInvalidRecipeList(err))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	m, err := Load("testdata/billing.yaml")
	require.NoError(t, err)

	warnings, err := AnalyzeCycles(m)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	m, err := Load("testdata/cyclic.yaml")
	require.NoError(t, err)

	warnings, err := AnalyzeCycles(m)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, []ir.FixtureKey{ir.Key("a", "x"), ir.Key("b", "y"), ir.Key("a", "x")}, warnings[0].Path)
	assert.Equal(t, "potential cycle: a/x -> b/y -> a/x", warnings[0].Message)
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestAnalyzeCycles_SelfAndLongCycles(t *testing.T) {
	m := manifestOf(map[string][]ir.Recipe{
		"a": {{SetName: "x", Expression: `SELECT {{ ref "b" "y" "id" }}`}},
		"b": {{SetName: "y", Expression: `SELECT {{ ref "c" "z" "id" }}`}},
		"c": {{SetName: "z", Expression: `SELECT {{ ref "a" "x" "id" }}`}},
		"s": {{SetName: "self", Expression: `SELECT {{ ref "s" "self" "id" }}`}},
		"t": {{SetName: "ok", Expression: `SELECT {{ ref "a" "x" "id" }}`}},
	})

	warnings, err := AnalyzeCycles(m)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, []ir.FixtureKey{ir.Key("a", "x"), ir.Key("b", "y"), ir.Key("c", "z"), ir.Key("a", "x")}, warnings[0].Path)
	assert.Equal(t, []ir.FixtureKey{ir.Key("s", "self"), ir.Key("s", "self")}, warnings[1].Path)
}

func TestAnalyze_UndeclaredAndDynamic(t *testing.T) {
	m := manifestOf(map[string][]ir.Recipe{
		"invoice": {
			{SetName: "base", Expression: `SELECT {{ ref "customer" "base" "id" }}`},
			{SetName: "dyn", Expression: `SELECT {{ ref .EntityType .SetName "id" }}`},
		},
	})

	r, err := Analyze(m)
	require.NoError(t, err)
	assert.Empty(t, r.Cycles)
	require.Len(t, r.Undeclared, 1)
	assert.Equal(t, "invoice/base depends on undeclared fixture customer/base", r.Undeclared[0].Message)
	assert.Equal(t, "info", r.Undeclared[0].Level)
	assert.Equal(t, []ir.FixtureKey{ir.Key("invoice", "dyn")}, r.Dynamic)
	assert.Equal(t, []ir.FixtureKey{ir.Key("customer", "base")}, r.Graph[ir.Key("invoice", "base")])
}
