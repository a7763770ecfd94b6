// Package manifest loads recipe manifests and analyzes them statically.
//
// A manifest maps entity types to their recipe lists:
//
//	entities:
//	  customer:
//	    - set: base
//	      sql: INSERT INTO customers (name) VALUES ('acme') RETURNING *
//	  invoice:
//	    - set: base
//	      sql: |
//	        INSERT INTO invoices (customer_id)
//	        VALUES ({{ ref "customer" "base" "id" }}) RETURNING *
//
// Manifests are written in YAML (.yaml, .yml) or CUE (.cue, or a directory
// holding a CUE package). CUE manifests may use CUE's own constraints and
// comprehensions as long as the result is concrete.
//
// AnalyzeCycles finds dependency cycles before any recipe runs by reading
// the fixture, ref and refs calls out of each expression's parse tree. It
// only sees calls with literal arguments; the resolver's runtime check
// remains authoritative.
package manifest
