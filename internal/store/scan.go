package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/fixtures/internal/ir"
)

// ExecRecipe runs a rendered generation statement inside the session and
// returns every row it produces. The statement text is passed through as is.
func (sess *Session) ExecRecipe(ctx context.Context, statement string) ([]string, []ir.IRObject, error) {
	if sess.done {
		return nil, nil, ErrSessionDone
	}
	rows, err := sess.q.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, sess.d.classify(err)
	}
	defer rows.Close()

	columns, out, err := scanRows(rows)
	if err != nil {
		return nil, nil, sess.d.classify(err)
	}
	return columns, out, nil
}

// scanRows reads all rows generically, keyed by column name.
func scanRows(rows *sql.Rows) ([]string, []ir.IRObject, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return nil, nil, fmt.Errorf("duplicate column name %q", c)
		}
		seen[c] = true
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	out := []ir.IRObject{}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row %d: %w", len(out), err)
		}
		row := make(ir.IRObject, len(columns))
		for i, c := range columns {
			v, err := ir.FromDriver(values[i])
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %q: %w", len(out), c, err)
			}
			row[c] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}
