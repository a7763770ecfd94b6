package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fixtures/internal/ir"
)

func TestExecRecipeSelect(t *testing.T) {
	ctx := context.Background()
	s := installedTestStore(t)
	sess := beginTest(t, s, ReadWrite)

	cols, rows, err := sess.ExecRecipe(ctx,
		`SELECT 1 AS id, 'alice' AS name, NULL AS missing, 1.5 AS score, x'6869' AS raw`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "missing", "score", "raw"}, cols)
	require.Len(t, rows, 1)
	assert.Equal(t, ir.IRObject{
		"id":      ir.IRInt(1),
		"name":    ir.IRString("alice"),
		"missing": ir.IRNull{},
		"score":   ir.IRString("1.5"),
		"raw":     ir.IRBytes("hi"),
	}, rows[0])
}

func TestExecRecipeInsertReturning(t *testing.T) {
	ctx := context.Background()
	s := installedTestStore(t)
	_, err := s.Exec(ctx, `CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	sess := beginTest(t, s, ReadWrite)
	cols, rows, err := sess.ExecRecipe(ctx,
		`INSERT INTO customers (name) VALUES ('a'), ('b') RETURNING id, name`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, cols)
	require.Len(t, rows, 2)
	assert.Equal(t, ir.IRString("b"), rows[1]["name"])
}

func TestExecRecipeNoRows(t *testing.T) {
	ctx := context.Background()
	s := installedTestStore(t)
	sess := beginTest(t, s, ReadWrite)

	cols, rows, err := sess.ExecRecipe(ctx, `SELECT 1 AS id WHERE 0`)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, cols)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExecRecipeDuplicateColumns(t *testing.T) {
	ctx := context.Background()
	s := installedTestStore(t)
	sess := beginTest(t, s, ReadWrite)

	_, _, err := sess.ExecRecipe(ctx, `SELECT 1 AS id, 2 AS id`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate column name "id"`)
}

func TestExecRecipeSyntaxError(t *testing.T) {
	ctx := context.Background()
	s := installedTestStore(t)
	sess := beginTest(t, s, ReadWrite)

	_, _, err := sess.ExecRecipe(ctx, `SELEC nonsense`)
	require.Error(t, err)
	assert.False(t, IsBusy(err))
	assert.False(t, IsPermission(err))
}

func TestExecRecipeQuestionMarkIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := installedTestStore(t)
	sess := beginTest(t, s, ReadWrite)

	_, rows, err := sess.ExecRecipe(ctx, `SELECT 'why?' AS q`)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("why?"), rows[0]["q"])
}
