package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fixtures/internal/ir"
	"github.com/roach88/fixtures/internal/store"
)

const tracerName = "github.com/roach88/fixtures/internal/engine"

// Resolver registers recipes and materializes fixtures.
//
// A Resolver holds no cache of its own: every Get goes to the store, so
// many Resolvers, in one process or several, can share a target. Admission
// is enforced by the store, never by a Go mutex.
//
// Thread-safety: a Resolver is safe for concurrent use if its Store is.
type Resolver struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	tokens  SessionTokenGenerator
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records resolver metrics to m.
func WithMetrics(m *Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for resolution spans.
// Default: the global OpenTelemetry tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithTokenGenerator sets the session token generator.
// Default: UUIDv7Generator.
func WithTokenGenerator(g SessionTokenGenerator) Option {
	return func(r *Resolver) {
		if g != nil {
			r.tokens = g
		}
	}
}

// New creates a Resolver backed by s.
func New(s *store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer(tracerName),
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the resolver's store.
func (r *Resolver) Store() *store.Store {
	return r.store
}

// Register makes recipes the complete recipe list of entityType.
//
// The list is validated before anything is written; a rejected list is an
// INVALID_RECIPE_LIST error and leaves the registry untouched. Registering
// the same set names and expressions again, in any order, writes nothing.
// Fixtures already cached stay cached.
func (r *Resolver) Register(ctx context.Context, entityType string, recipes []ir.Recipe) error {
	if err := ValidateRecipes(entityType, recipes); err != nil {
		return err
	}

	sess, err := r.store.Begin(ctx, store.ReadWrite)
	if err != nil {
		return storeError(ir.FixtureKey{EntityType: entityType}, err)
	}
	defer sess.Rollback()

	changed, err := sess.ReplaceRecipes(ctx, entityType, recipes)
	if err != nil {
		return storeError(ir.FixtureKey{EntityType: entityType}, err)
	}
	if err := sess.Commit(); err != nil {
		return storeError(ir.FixtureKey{EntityType: entityType}, err)
	}

	r.logger.Info("recipes registered",
		"entity_type", entityType,
		"recipes", len(recipes),
		"changed", changed,
	)
	return nil
}

// ValidateRecipes checks a recipe list without touching the store.
func ValidateRecipes(entityType string, recipes []ir.Recipe) error {
	if !ir.IsIdentifier(entityType) {
		return ir.NewInvalidRecipeList(entityType, "entity type %q is not a valid identifier", entityType)
	}
	if len(recipes) == 0 {
		return ir.NewInvalidRecipeList(entityType, "recipe list is empty")
	}
	// Keyed by NFC form: set names that only differ in normalization look
	// identical in manifests and TAP output.
	seen := make(map[string]string, len(recipes))
	for i, rc := range recipes {
		if strings.TrimSpace(rc.SetName) == "" {
			return ir.NewInvalidRecipeList(entityType, "recipe %d has an empty set name", i)
		}
		nfc := norm.NFC.String(rc.SetName)
		if prev, ok := seen[nfc]; ok {
			if prev == rc.SetName {
				return ir.NewInvalidRecipeList(entityType, "duplicate set name %q", rc.SetName)
			}
			return ir.NewInvalidRecipeList(entityType, "set names %q and %q differ only in Unicode normalization", prev, rc.SetName)
		}
		seen[nfc] = rc.SetName
		if strings.TrimSpace(rc.Expression) == "" {
			return ir.NewInvalidRecipeList(entityType, "set %q has an empty expression", rc.SetName)
		}
		if _, err := ParseExpression(entityType+"/"+rc.SetName, rc.Expression); err != nil {
			return ir.NewInvalidRecipeList(entityType, "set %q: %v", rc.SetName, err)
		}
	}
	return nil
}

// Get returns the fixture for (entityType, setName), materializing it on
// first use.
//
// A cached fixture is returned from a read-only session with no side
// effects. Otherwise the recipe runs exactly once across all callers
// sharing the store: concurrent callers wait for the first to commit and
// then read its result. A failed materialization is rolled back completely
// and the next call retries it from scratch.
func (r *Resolver) Get(ctx context.Context, entityType, setName string) (*ir.Fixture, error) {
	key := ir.Key(entityType, setName)
	ctx, span := r.tracer.Start(ctx, "fixtures.get",
		trace.WithAttributes(
			attribute.String("fixtures.entity_type", entityType),
			attribute.String("fixtures.set_name", setName),
		),
	)
	defer span.End()

	f, err := r.get(ctx, key)
	if err != nil {
		r.metrics.failed(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ir.CodeOf(err)))
		r.logger.Debug("fixture lookup failed", "key", key.String(), "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("fixtures.rows", f.RowCount()))
	span.SetStatus(codes.Ok, "")
	return f, nil
}

func (r *Resolver) get(ctx context.Context, key ir.FixtureKey) (*ir.Fixture, error) {
	f, registered, err := r.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if f != nil {
		r.metrics.hit(key)
		return f, nil
	}
	if !registered {
		return nil, ir.NewNotRegistered(key)
	}

	res := &resolution{r: r, token: r.tokens.Generate()}
	sess, err := r.store.Begin(ctx, store.ReadWrite)
	if err != nil {
		return nil, storeError(key, err)
	}
	defer sess.Rollback()
	res.sess = sess

	f, err = res.resolve(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	if err := sess.Commit(); err != nil {
		return nil, storeError(key, err)
	}
	return f, nil
}

// lookup checks the cache and the registry without taking any lock.
func (r *Resolver) lookup(ctx context.Context, key ir.FixtureKey) (*ir.Fixture, bool, error) {
	sess, err := r.store.Begin(ctx, store.ReadOnly)
	if err != nil {
		return nil, false, storeError(key, err)
	}
	defer sess.Rollback()

	f, ok, err := sess.LookupFixture(ctx, key)
	if err != nil {
		return nil, false, storeError(key, err)
	}
	if ok {
		return f, true, nil
	}
	_, registered, err := sess.FindRecipe(ctx, key)
	if err != nil {
		return nil, false, storeError(key, err)
	}
	return nil, registered, nil
}

// resolution is one write session materializing a key and its
// dependencies.
type resolution struct {
	r     *Resolver
	sess  *store.Session
	token string
}

func (res *resolution) resolve(ctx context.Context, key ir.FixtureKey, chain *callChain) (*ir.Fixture, error) {
	if chain.contains(key) {
		return nil, chain.cycle(key)
	}

	f, ok, err := res.sess.LookupFixture(ctx, key)
	if err != nil {
		return nil, storeError(key, err)
	}
	if ok {
		res.r.metrics.hit(key)
		return f, nil
	}

	recipe, ok, err := res.sess.FindRecipe(ctx, key)
	if err != nil {
		return nil, storeError(key, err)
	}
	if !ok {
		return nil, ir.NewNotRegistered(key)
	}

	if err := res.sess.AcquireAdmission(ctx, key, res.token); err != nil {
		return nil, storeError(key, err)
	}
	// Another session may have materialized key while we waited.
	f, ok, err = res.sess.LookupFixture(ctx, key)
	if err != nil {
		return nil, storeError(key, err)
	}
	if ok {
		if err := res.sess.ReleaseAdmission(ctx, key, res.token); err != nil {
			return nil, storeError(key, err)
		}
		res.r.metrics.hit(key)
		return f, nil
	}
	res.r.metrics.miss(key)

	ctx, span := res.r.tracer.Start(ctx, "fixtures.materialize",
		trace.WithAttributes(
			attribute.String("fixtures.key", key.String()),
			attribute.String("fixtures.session", res.token),
			attribute.Int("fixtures.depth", chain.len()),
		),
	)
	defer span.End()

	start := time.Now()
	next := chain.push(key)
	stmt, err := render(ctx, key, recipe.Expression, res.token,
		func(ctx context.Context, dep ir.FixtureKey) (*ir.Fixture, error) {
			return res.resolve(ctx, dep, next)
		})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	columns, rows, err := res.sess.ExecRecipe(ctx, stmt)
	if err != nil {
		span.RecordError(err)
		if store.IsBusy(err) {
			return nil, ir.NewAdmissionFailed(key, err)
		}
		return nil, ir.NewGenerationFailure(key, err)
	}

	f = &ir.Fixture{
		Key:       key,
		Columns:   columns,
		Rows:      rows,
		CreatedBy: res.token,
	}
	if err := res.sess.WriteFixture(ctx, f); err != nil {
		return nil, storeError(key, err)
	}
	if err := res.sess.ReleaseAdmission(ctx, key, res.token); err != nil {
		return nil, storeError(key, err)
	}

	elapsed := time.Since(start)
	res.r.metrics.executed(key, elapsed)
	res.r.logger.Info("fixture materialized",
		"key", key.String(),
		"session", res.token,
		"rows", f.RowCount(),
		"duration", elapsed,
	)
	return f, nil
}

// storeError maps a classified store error onto the fixture taxonomy.
// FixtureErrors pass through unchanged.
func storeError(key ir.FixtureKey, err error) error {
	var fe *ir.FixtureError
	switch {
	case errors.As(err, &fe):
		return err
	case store.IsBusy(err):
		return ir.NewAdmissionFailed(key, err)
	case store.IsNotInstalled(err):
		return ir.NewNotInstalled(err)
	case store.IsPermission(err):
		return ir.NewPermissionDenied(key, err)
	default:
		return fmt.Errorf("fixture %s: %w", key, err)
	}
}
