// Package tap turns fixture lookups into test assertions.
//
// Tap resolves one fixture and reports the result as an Outcome instead of
// an error, so a test suite can assert that its fixtures still materialize.
// Outcomes are written by a Reporter: TAPReporter emits a TAP version 13
// stream with YAML diagnostics, TBReporter forwards to a testing.TB.
//
// Check plans (YAML files naming fixtures and their expected row counts)
// run through RunPlan.
package tap
