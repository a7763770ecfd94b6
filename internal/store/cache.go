package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fixtures/internal/ir"
)

// LookupFixture returns the cached fixture for key.
func (sess *Session) LookupFixture(ctx context.Context, key ir.FixtureKey) (*ir.Fixture, bool, error) {
	var rec fixtureRecord
	err := sess.queryRow(ctx, `
		SELECT column_names, row_data, row_count, digest, created_by, created_at
		FROM `+sess.names.Fixture+`
		WHERE entity_type = ? AND set_name = ?
	`, []any{key.EntityType, key.SetName},
		&rec.columns, &rec.rows, &rec.rowCount, &rec.digest, &rec.createdBy, &rec.createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup fixture %s: %w", key, err)
	}
	f, err := unmarshalFixture(key, rec)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

// WriteFixture persists a newly materialized fixture. On success *f is
// replaced by its decoded stored form, with Digest and CreatedAt filled in,
// so the caller holds exactly what every later LookupFixture returns.
// Fixtures are write-once: a second write for the same key is an error,
// since admission guarantees a single writer.
func (sess *Session) WriteFixture(ctx context.Context, f *ir.Fixture) error {
	rec, err := marshalFixture(f, time.Now())
	if err != nil {
		return err
	}
	stored, err := unmarshalFixture(f.Key, rec)
	if err != nil {
		return err
	}
	res, err := sess.exec(ctx, `
		INSERT INTO `+sess.names.Fixture+`
		(entity_type, set_name, column_names, row_data, row_count, digest, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, set_name) DO NOTHING
	`,
		f.Key.EntityType,
		f.Key.SetName,
		rec.columns,
		rec.rows,
		rec.rowCount,
		rec.digest,
		rec.createdBy,
		rec.createdAt,
	)
	if err != nil {
		return fmt.Errorf("write fixture %s: %w", f.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write fixture %s: %w", f.Key, err)
	}
	if n == 0 {
		return fmt.Errorf("write fixture %s: already cached", f.Key)
	}
	*f = *stored
	return nil
}
