package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fixtures/internal/ir"
)

// FindRecipe returns the recipe registered for key.
func (sess *Session) FindRecipe(ctx context.Context, key ir.FixtureKey) (ir.Recipe, bool, error) {
	var expr string
	err := sess.queryRow(ctx, `
		SELECT expression FROM `+sess.names.Recipe+`
		WHERE entity_type = ? AND set_name = ?
	`, []any{key.EntityType, key.SetName}, &expr)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Recipe{}, false, nil
	}
	if err != nil {
		return ir.Recipe{}, false, fmt.Errorf("find recipe %s: %w", key, err)
	}
	return ir.Recipe{SetName: key.SetName, Expression: expr}, true, nil
}

// Recipes returns the recipe list of entityType in registration order.
func (sess *Session) Recipes(ctx context.Context, entityType string) ([]ir.Recipe, error) {
	rows, err := sess.query(ctx, `
		SELECT set_name, expression FROM `+sess.names.Recipe+`
		WHERE entity_type = ?
		ORDER BY position ASC, set_name ASC
	`, entityType)
	if err != nil {
		return nil, fmt.Errorf("read recipes %s: %w", entityType, err)
	}
	defer rows.Close()

	var recipes []ir.Recipe
	for rows.Next() {
		var r ir.Recipe
		if err := rows.Scan(&r.SetName, &r.Expression); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", sess.d.classify(err))
	}
	return recipes, nil
}

// ReplaceRecipes makes recipes the complete recipe list of entityType.
// Returns false without writing when the stored list already has the same
// set names and expressions, in any order.
func (sess *Session) ReplaceRecipes(ctx context.Context, entityType string, recipes []ir.Recipe) (bool, error) {
	current, err := sess.Recipes(ctx, entityType)
	if err != nil {
		return false, err
	}
	if len(current) == len(recipes) {
		have, err := ir.RecipeDigest(entityType, current)
		if err != nil {
			return false, err
		}
		want, err := ir.RecipeDigest(entityType, recipes)
		if err != nil {
			return false, err
		}
		if have == want {
			return false, nil
		}
	}

	if _, err := sess.exec(ctx,
		`DELETE FROM `+sess.names.Recipe+` WHERE entity_type = ?`, entityType); err != nil {
		return false, fmt.Errorf("replace recipes %s: %w", entityType, err)
	}
	for i, r := range recipes {
		if _, err := sess.exec(ctx, `
			INSERT INTO `+sess.names.Recipe+` (entity_type, set_name, expression, position)
			VALUES (?, ?, ?, ?)
		`, entityType, r.SetName, r.Expression, i); err != nil {
			return false, fmt.Errorf("replace recipes %s: insert %q: %w", entityType, r.SetName, err)
		}
	}
	return true, nil
}

// ListRecipes returns every registered recipe with its cache state, ordered
// by entity type then registration order.
func (sess *Session) ListRecipes(ctx context.Context) ([]ir.RegisteredRecipe, error) {
	rows, err := sess.query(ctx, `
		SELECT r.entity_type, r.set_name, r.expression, r.position,
			CASE WHEN f.entity_type IS NULL THEN 0 ELSE 1 END
		FROM `+sess.names.Recipe+` r
		LEFT JOIN `+sess.names.Fixture+` f
			ON f.entity_type = r.entity_type AND f.set_name = r.set_name
		ORDER BY r.entity_type ASC, r.position ASC, r.set_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var out []ir.RegisteredRecipe
	for rows.Next() {
		var rr ir.RegisteredRecipe
		var cached int
		if err := rows.Scan(&rr.Key.EntityType, &rr.Key.SetName, &rr.Expression, &rr.Position, &cached); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		rr.Cached = cached == 1
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", sess.d.classify(err))
	}
	return out, nil
}

// Stats summarizes registry and cache contents.
type Stats struct {
	EntityTypes int `json:"entity_types"`
	Recipes     int `json:"recipes"`
	Fixtures    int `json:"fixtures"`
}

// Stats counts registered entity types, recipes and cached fixtures.
func (sess *Session) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := sess.queryRow(ctx, `
		SELECT
			(SELECT count(DISTINCT entity_type) FROM `+sess.names.Recipe+`),
			(SELECT count(*) FROM `+sess.names.Recipe+`),
			(SELECT count(*) FROM `+sess.names.Fixture+`)
	`, nil, &st.EntityTypes, &st.Recipes, &st.Fixtures)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

// ListRecipes opens a read-only session and lists every recipe.
func (s *Store) ListRecipes(ctx context.Context) ([]ir.RegisteredRecipe, error) {
	sess, err := s.Begin(ctx, ReadOnly)
	if err != nil {
		return nil, err
	}
	defer sess.Rollback()
	return sess.ListRecipes(ctx)
}

// Stats opens a read-only session and summarizes the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	sess, err := s.Begin(ctx, ReadOnly)
	if err != nil {
		return Stats{}, err
	}
	defer sess.Rollback()
	return sess.Stats(ctx)
}
