package tap

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePlan = `name: users
checks:
  - entity: users
    set: default
    label: users have two rows
    expect_rows: 2
  - entity: users
    set: default
    label: users have three rows
    expect_rows: 3
  - entity: ghost
    set: base
    label: "ghost # not real"
`

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0644))

	p, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "users", p.Name)
	require.Len(t, p.Checks, 3)
	require.NotNil(t, p.Checks[0].ExpectRows)
	assert.Equal(t, 2, *p.Checks[0].ExpectRows)
	assert.Nil(t, p.Checks[2].ExpectRows)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParsePlan_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\nchecks:\n  - entity: a\n    set: b\n    expect: 1\n", "field expect not found"},
		{"no name", "checks:\n  - entity: a\n    set: b\n", "name is required"},
		{"no checks", "name: x\n", "checks list is required"},
		{"no entity", "name: x\nchecks:\n  - set: b\n", "checks[0]: entity is required"},
		{"no set", "name: x\nchecks:\n  - entity: a\n", "checks[0]: set is required"},
		{"negative rows", "name: x\nchecks:\n  - entity: a\n    set: b\n    expect_rows: -1\n", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunPlan_Golden(t *testing.T) {
	p, err := ParsePlan([]byte(samplePlan))
	require.NoError(t, err)

	var buf bytes.Buffer
	rep := NewTAPReporter(&buf)
	sum := RunPlan(context.Background(), sampleGetter(), p, rep)
	require.NoError(t, rep.Close())

	assert.Equal(t, Summary{Total: 3, Passed: 1, Failed: 2}, sum)
	assert.False(t, sum.OK())
	assertGolden(t, "plan_run", buf.Bytes())
}
