// Package ir provides the shared data model for the fixture engine.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the data model the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Row values are NULL, string, int64, bool or bytes. Floats, decimals and
//     times are carried as their exact text form so rows round-trip
//     bit-identically.
//   - Materialized rows are persisted as canonical JSON (RFC 8785 key order,
//     strings byte for byte, bytes as {"$bytes":"<base64>"}).
//   - Every failure the engine reports is a *FixtureError with a stable Code.
package ir
