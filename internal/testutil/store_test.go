package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixtures/internal/access"
)

func TestInstalledStore(t *testing.T) {
	s, cfg := InstalledStore(t)

	state, err := access.New(s).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, access.Installed, state)
	assert.Equal(t, "tester", cfg.Caller)

	Exec(t, s, "CREATE TABLE things (id INTEGER PRIMARY KEY)", "INSERT INTO things DEFAULT VALUES")
	assert.Equal(t, 1, Count(t, s, "things"))
}
