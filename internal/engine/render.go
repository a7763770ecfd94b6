package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/spaolacci/murmur3"

	"github.com/roach88/fixtures/internal/ir"
)

// Names of the functions that resolve dependencies. Static analysis of
// expressions looks for calls to these.
const (
	FuncFixture = "fixture"
	FuncRef     = "ref"
	FuncRefs    = "refs"
)

// FakeKinds lists the kinds accepted by the fake template function.
var FakeKinds = []string{"name", "email", "company", "uuid", "word", "city", "phone", "username"}

// errUnbound is returned by the placeholder functions used for parsing.
var errUnbound = errors.New("template function called outside a resolution")

// ExpressionData is the dot value of a generation expression.
type ExpressionData struct {
	EntityType string
	SetName    string
	Session    string
}

// ParseExpression parses a generation expression with every template
// function defined, without binding any of them to a resolution.
func ParseExpression(name, expr string) (*template.Template, error) {
	return template.New(name).
		Option("missingkey=error").
		Funcs(funcMap(placeholderFuncs())).
		Parse(expr)
}

// depFuncs are the functions whose behavior depends on the resolution.
type depFuncs struct {
	fixture func(entityType, setName string) ([]map[string]any, error)
	ref     func(entityType, setName, column string) (string, error)
	refs    func(entityType, setName, column string) (string, error)
	fake    func(kind string) (string, error)
}

func placeholderFuncs() depFuncs {
	return depFuncs{
		fixture: func(string, string) ([]map[string]any, error) { return nil, errUnbound },
		ref:     func(string, string, string) (string, error) { return "", errUnbound },
		refs:    func(string, string, string) (string, error) { return "", errUnbound },
		fake:    func(string) (string, error) { return "", errUnbound },
	}
}

func funcMap(d depFuncs) template.FuncMap {
	fm := sprig.TxtFuncMap()
	fm[FuncFixture] = d.fixture
	fm[FuncRef] = d.ref
	fm[FuncRefs] = d.refs
	fm["fake"] = d.fake
	fm["lit"] = Literal
	return fm
}

// dependencyResolver materializes a dependency within the current session.
type dependencyResolver func(ctx context.Context, key ir.FixtureKey) (*ir.Fixture, error)

// render executes the expression of key, resolving dependency calls with
// resolve. A FixtureError raised by a dependency is returned unchanged;
// any other failure is a GENERATION_FAILURE of key.
func render(ctx context.Context, key ir.FixtureKey, expr, session string, resolve dependencyResolver) (string, error) {
	// The first dependency failure wins over the template's wrapping of it.
	var depErr error
	dep := func(entityType, setName string) (*ir.Fixture, error) {
		f, err := resolve(ctx, ir.Key(entityType, setName))
		if err != nil && depErr == nil {
			depErr = err
		}
		return f, err
	}

	faker := newFaker(key)
	funcs := depFuncs{
		fixture: func(entityType, setName string) ([]map[string]any, error) {
			f, err := dep(entityType, setName)
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]any, len(f.Rows))
			for i, row := range f.Rows {
				rows[i] = ir.Native(row).(map[string]any)
			}
			return rows, nil
		},
		ref: func(entityType, setName, column string) (string, error) {
			f, err := dep(entityType, setName)
			if err != nil {
				return "", err
			}
			if f.RowCount() == 0 {
				return "", fmt.Errorf("ref %s/%s: fixture has no rows", entityType, setName)
			}
			v, ok := f.First()[column]
			if !ok {
				return "", fmt.Errorf("ref %s/%s: no column %q", entityType, setName, column)
			}
			return Literal(ir.Native(v))
		},
		refs: func(entityType, setName, column string) (string, error) {
			f, err := dep(entityType, setName)
			if err != nil {
				return "", err
			}
			if f.RowCount() == 0 {
				return "NULL", nil
			}
			parts := make([]string, len(f.Rows))
			for i, row := range f.Rows {
				v, ok := row[column]
				if !ok {
					return "", fmt.Errorf("refs %s/%s: no column %q", entityType, setName, column)
				}
				lit, err := Literal(ir.Native(v))
				if err != nil {
					return "", err
				}
				parts[i] = lit
			}
			return strings.Join(parts, ", "), nil
		},
		fake: faker.value,
	}

	tmpl, err := template.New(key.String()).
		Option("missingkey=error").
		Funcs(funcMap(funcs)).
		Parse(expr)
	if err != nil {
		return "", ir.NewGenerationFailure(key, err)
	}

	var b strings.Builder
	err = tmpl.Execute(&b, ExpressionData{EntityType: key.EntityType, SetName: key.SetName, Session: session})
	if depErr != nil {
		return "", depErr
	}
	if err != nil {
		return "", ir.NewGenerationFailure(key, err)
	}

	stmt := strings.TrimSpace(b.String())
	if stmt == "" {
		return "", ir.NewGenerationFailure(key, errors.New("expression rendered an empty statement"))
	}
	return stmt, nil
}

// Literal renders v as a SQL literal understood by both SQLite and
// PostgreSQL.
func Literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(val), nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("lit: non-finite number %v", val)
		}
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case time.Time:
		return quoteString(val.UTC().Format(time.RFC3339Nano)), nil
	case fmt.Stringer:
		return quoteString(val.String()), nil
	default:
		return "", fmt.Errorf("lit: unsupported value of type %T", v)
	}
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// faker produces fake values that are stable per fixture key, so a recipe
// that is re-run after a failure generates the same data.
type faker struct {
	f *gofakeit.Faker
}

func newFaker(key ir.FixtureKey) *faker {
	seed := int64(murmur3.Sum64([]byte(key.String())))
	if seed == 0 {
		// gofakeit treats 0 as a request for a random seed.
		seed = 1
	}
	return &faker{f: gofakeit.New(seed)}
}

func (fk *faker) value(kind string) (string, error) {
	switch kind {
	case "name":
		return fk.f.Name(), nil
	case "email":
		return fk.f.Email(), nil
	case "company":
		return fk.f.Company(), nil
	case "uuid":
		return fk.f.UUID(), nil
	case "word":
		return fk.f.Word(), nil
	case "city":
		return fk.f.City(), nil
	case "phone":
		return fk.f.Phone(), nil
	case "username":
		return fk.f.Username(), nil
	default:
		return "", fmt.Errorf("fake: unknown kind %q (want one of %s)", kind, strings.Join(FakeKinds, ", "))
	}
}
