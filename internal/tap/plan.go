package tap

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan is a named list of fixture checks.
type Plan struct {
	// Name identifies the plan in reports.
	Name string `yaml:"name"`

	// Checks run in order.
	Checks []Check `yaml:"checks"`
}

// Check asserts that one fixture resolves.
type Check struct {
	Entity string `yaml:"entity"`
	Set    string `yaml:"set"`

	// Label is the test point description. Defaults to "entity/set".
	Label string `yaml:"label,omitempty"`

	// ExpectRows, when set, must equal the fixture's row count.
	ExpectRows *int `yaml:"expect_rows,omitempty"`
}

// Summary counts the outcomes of a plan run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// OK reports whether no check failed.
func (s Summary) OK() bool {
	return s.Failed == 0
}

// LoadPlan reads and validates a plan file.
// Unknown fields are rejected so typos fail loudly.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan parses and validates plan YAML.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &p, nil
}

// Validate checks that required fields are present.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Checks) == 0 {
		return fmt.Errorf("checks list is required and must be non-empty")
	}
	for i, c := range p.Checks {
		if c.Entity == "" {
			return fmt.Errorf("checks[%d]: entity is required", i)
		}
		if c.Set == "" {
			return fmt.Errorf("checks[%d]: set is required", i)
		}
		if c.ExpectRows != nil && *c.ExpectRows < 0 {
			return fmt.Errorf("checks[%d]: expect_rows must not be negative", i)
		}
	}
	return nil
}

// RunPlan taps every check in order and reports each outcome to rep.
// A fixture that resolves with a different row count than expected is a
// failure.
func RunPlan(ctx context.Context, g Getter, p *Plan, rep Reporter) Summary {
	var sum Summary
	for _, c := range p.Checks {
		o := Tap(ctx, g, c.Entity, c.Set, c.Label)
		if o.Status == Pass && c.ExpectRows != nil && *c.ExpectRows != o.Rows {
			o.Status = Fail
			o.Message = fmt.Sprintf("expected %d rows, got %d", *c.ExpectRows, o.Rows)
		}
		rep.Report(o)

		sum.Total++
		switch o.Status {
		case Pass:
			sum.Passed++
		case Skip:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	return sum
}
