package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/fixtures/internal/ir"
)

// AcquireAdmission claims the right to materialize key for this session.
//
// The claim is a row in the admission table keyed by the fixture key. A
// concurrent session inserting the same key waits on the uncommitted row
// (PostgreSQL) or on the write lock (SQLite) until this session commits or
// rolls back. The wait is bounded by the configured lock timeout and
// surfaces as ErrBusy.
func (sess *Session) AcquireAdmission(ctx context.Context, key ir.FixtureKey, holder string) error {
	_, err := sess.exec(ctx, `
		INSERT INTO `+sess.names.Admission+` (entity_type, set_name, holder, acquired_at)
		VALUES (?, ?, ?, ?)
	`, key.EntityType, key.SetName, holder, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("acquire admission %s: %w", key, err)
	}
	return nil
}

// ReleaseAdmission removes the claim taken by AcquireAdmission. It must run
// before commit so no admission row ever becomes visible to other sessions.
func (sess *Session) ReleaseAdmission(ctx context.Context, key ir.FixtureKey, holder string) error {
	_, err := sess.exec(ctx, `
		DELETE FROM `+sess.names.Admission+`
		WHERE entity_type = ? AND set_name = ? AND holder = ?
	`, key.EntityType, key.SetName, holder)
	if err != nil {
		return fmt.Errorf("release admission %s: %w", key, err)
	}
	return nil
}
