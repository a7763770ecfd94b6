// Package engine resolves fixtures: it registers recipe lists and turns a
// (entity type, set name) key into a cached, immutable Fixture.
//
// RESOLUTION:
//
// Get first looks the key up in a read-only session. On a miss it opens an
// elevated write session, claims the key's admission row, re-checks the
// cache and only then renders and runs the recipe. Everything a resolution
// writes (application rows, dependency fixtures, the fixture itself) commits
// together or not at all.
//
// Expressions are text/template documents rendering one SQL statement.
// Dependencies are requested from inside the template:
//
//	INSERT INTO invoices (customer_id, total)
//	VALUES ({{ ref "customer" "base" "id" }}, 100)
//	RETURNING id, customer_id, total
//
// Dependency calls resolve inside the same session, extending the call
// chain; a key that re-enters its own chain fails with CYCLIC_DEPENDENCY.
//
// CONCURRENCY:
//
// The Resolver holds no locks. Callers racing for one key meet at the
// store's admission row: one materializes, the rest wait for its commit and
// read the cached result. Waits are bounded by the configured lock timeout
// and surface as ADMISSION_FAILED.
package engine
