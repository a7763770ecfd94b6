package store

import (
	"fmt"
	"time"

	"github.com/roach88/fixtures/internal/ir"
)

// fixtureRecord is the persisted form of a fixture.
type fixtureRecord struct {
	columns   string
	rows      string
	rowCount  int
	digest    string
	createdBy string
	createdAt string
}

// marshalFixture converts a fixture to canonical JSON TEXT for storage and
// computes its digest. The fixture's Digest and CreatedAt are filled in.
func marshalFixture(f *ir.Fixture, now time.Time) (fixtureRecord, error) {
	colsJSON, rowsJSON, err := ir.EncodeRows(f.Columns, f.Rows)
	if err != nil {
		return fixtureRecord{}, fmt.Errorf("marshal fixture %s: %w", f.Key, err)
	}
	f.Digest = ir.RowsDigest(f.Key, colsJSON, rowsJSON)
	f.CreatedAt = now.UTC()
	return fixtureRecord{
		columns:   colsJSON,
		rows:      rowsJSON,
		rowCount:  len(f.Rows),
		digest:    f.Digest,
		createdBy: f.CreatedBy,
		createdAt: f.CreatedAt.Format(time.RFC3339Nano),
	}, nil
}

// unmarshalFixture parses a stored record and verifies its digest, so a
// cache row edited outside the engine is reported rather than served.
func unmarshalFixture(key ir.FixtureKey, rec fixtureRecord) (*ir.Fixture, error) {
	if got := ir.RowsDigest(key, rec.columns, rec.rows); got != rec.digest {
		return nil, fmt.Errorf("unmarshal fixture %s: digest mismatch (stored %s, computed %s)", key, rec.digest, got)
	}
	columns, rows, err := ir.DecodeRows(rec.columns, rec.rows)
	if err != nil {
		return nil, fmt.Errorf("unmarshal fixture %s: %w", key, err)
	}
	if len(rows) != rec.rowCount {
		return nil, fmt.Errorf("unmarshal fixture %s: row count %d, stored %d", key, len(rows), rec.rowCount)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rec.createdAt)
	if err != nil {
		return nil, fmt.Errorf("unmarshal fixture %s: created_at: %w", key, err)
	}
	return &ir.Fixture{
		Key:       key,
		Columns:   columns,
		Rows:      rows,
		Digest:    rec.digest,
		CreatedBy: rec.createdBy,
		CreatedAt: createdAt,
	}, nil
}
