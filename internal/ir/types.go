package ir

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// identifierPattern matches valid entity type identifiers.
// Only alphanumeric and underscore, must start with letter or underscore.
// Entity types end up in log lines, metric labels and TAP output, so they are
// held to the same rule as SQL identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s is a valid entity type identifier.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// FixtureKey uniquely identifies a recipe and its cached result.
type FixtureKey struct {
	EntityType string `json:"entity_type" yaml:"entity_type"`
	SetName    string `json:"set_name" yaml:"set_name"`
}

// Key builds a FixtureKey.
func Key(entityType, setName string) FixtureKey {
	return FixtureKey{EntityType: entityType, SetName: setName}
}

// String renders the key as "entity_type/set_name".
func (k FixtureKey) String() string {
	return k.EntityType + "/" + k.SetName
}

// Validate checks the entity type is an identifier and the set name is set.
func (k FixtureKey) Validate() error {
	if !IsIdentifier(k.EntityType) {
		return fmt.Errorf("invalid entity type %q: must match %s", k.EntityType, identifierPattern.String())
	}
	if strings.TrimSpace(k.SetName) == "" {
		return fmt.Errorf("empty set name for entity type %q", k.EntityType)
	}
	return nil
}

// Recipe is one named generation expression for an entity type.
//
// Expression is a single SQL statement written as a text/template. It runs
// once, inside the resolving transaction, and every row it returns becomes
// part of the materialized fixture.
type Recipe struct {
	SetName    string `json:"set" yaml:"set"`
	Expression string `json:"sql" yaml:"sql"`
}

// RegisteredRecipe is a Recipe as stored in the registry.
type RegisteredRecipe struct {
	Key        FixtureKey `json:"key"`
	Expression string     `json:"sql"`
	Position   int        `json:"position"`
	Cached     bool       `json:"cached"`
}

// Fixture is a materialized, cached recipe result.
//
// Columns preserves the column order reported by the database; each row is
// keyed by column name. Fixtures are written once and never mutated.
type Fixture struct {
	Key       FixtureKey `json:"key"`
	Columns   []string   `json:"columns"`
	Rows      []IRObject `json:"rows"`
	Digest    string     `json:"digest"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

// RowCount returns the number of materialized rows.
func (f *Fixture) RowCount() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// First returns the first row, or nil when the fixture is empty.
func (f *Fixture) First() IRObject {
	if f == nil || len(f.Rows) == 0 {
		return nil
	}
	return f.Rows[0]
}
