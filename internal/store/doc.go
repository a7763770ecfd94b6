// Package store provides durable storage for fixture recipes and
// materialized fixtures over database/sql.
//
// Two dialects are supported: SQLite (github.com/mattn/go-sqlite3) and
// PostgreSQL (github.com/jackc/pgx/v5). Both lay out the same three
// namespaces:
//   - api: install marker
//   - internal: recipe registry and admission claims
//   - cache: materialized fixtures
//
// # Identities
//
// The *sql.DB held by a Store acts as the caller, who may not touch the
// internal or cache namespaces. Engine work happens in a Session, which is
// elevated to the owner identity for exactly its own lifetime; a Session is
// the only way in. On PostgreSQL the caller's membership in the owner is
// granted WITH INHERIT FALSE, so outside a Session the owner's privileges do
// not apply.
//
// # Critical Patterns
//
// Write-once cache:
//   - PRIMARY KEY(entity_type, set_name) on the fixture table
//   - rows are written in the same transaction that ran the recipe
//
// Admission:
//   - one admission row per key, inserted when resolution starts and deleted
//     before commit, so concurrent resolvers of a key queue behind each other
//
// Deterministic encoding:
//   - rows are stored as RFC 8785 canonical JSON with a SHA-256 digest
//     computed by internal/ir
package store
