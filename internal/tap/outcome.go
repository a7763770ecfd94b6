package tap

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fixtures/internal/ir"
)

// Status is the result of one assertion.
type Status int

const (
	Pass Status = iota
	Fail
	Skip
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pass":
		*s = Pass
	case "fail":
		*s = Fail
	case "skip":
		*s = Skip
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Outcome is the reported result of resolving one fixture.
type Outcome struct {
	Label  string        `json:"label"`
	Status Status        `json:"status"`
	Key    ir.FixtureKey `json:"key"`

	// Message is the full error text for failures, the reason for skips
	// and a short summary for passes.
	Message string `json:"message"`

	// Code, Detail, Cause and Path break a fixture error down for
	// diagnostics.
	Code   ir.ErrorCode    `json:"code,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Cause  string          `json:"cause,omitempty"`
	Path   []ir.FixtureKey `json:"path,omitempty"`

	// Rows and Columns describe the fixture when it resolved.
	Rows    int      `json:"rows"`
	Columns []string `json:"columns,omitempty"`
}

// Getter resolves fixtures. *engine.Resolver implements it.
type Getter interface {
	Get(ctx context.Context, entityType, setName string) (*ir.Fixture, error)
}

// Tap resolves (entityType, setName) and maps the result to an Outcome.
//
// Tap never panics and never returns an error: every failure is reported
// as a failing or skipped outcome. A context cancelled before or during
// resolution, and an engine that is not installed, are skips. An empty
// label defaults to "entity_type/set_name".
func Tap(ctx context.Context, g Getter, entityType, setName, label string) (o Outcome) {
	key := ir.Key(entityType, setName)
	if label == "" {
		label = key.String()
	}
	o = Outcome{Label: label, Key: key}

	defer func() {
		if r := recover(); r != nil {
			o.Status = Fail
			o.Message = fmt.Sprintf("panic during resolution: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		o.Status = Skip
		o.Message = err.Error()
		return o
	}

	f, err := g.Get(ctx, entityType, setName)
	if err != nil {
		return failure(ctx, o, err)
	}

	o.Status = Pass
	o.Rows = f.RowCount()
	o.Columns = []string{}
	if f != nil && f.Columns != nil {
		o.Columns = f.Columns
	}
	o.Message = fmt.Sprintf("%d rows", o.Rows)
	return o
}

func failure(ctx context.Context, o Outcome, err error) Outcome {
	o.Status = Fail
	o.Message = err.Error()

	if ctx.Err() != nil {
		o.Status = Skip
		return o
	}

	var fe *ir.FixtureError
	if !errors.As(err, &fe) {
		return o
	}
	o.Code = fe.Code
	o.Detail = fe.Message
	o.Path = fe.Path
	if fe.Cause != nil {
		o.Cause = fe.Cause.Error()
	}
	if fe.Code == ir.ErrCodeNotInstalled {
		o.Status = Skip
		o.Message = fe.Message
	}
	return o
}
