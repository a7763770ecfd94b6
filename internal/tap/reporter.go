package tap

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fixtures/internal/ir"
)

// Reporter receives outcomes.
type Reporter interface {
	Report(o Outcome)
}

// TAPReporter writes a TAP version 13 stream.
//
// The version line is written with the first outcome; Close writes the
// plan line. Failing and passing outcomes carry a YAML diagnostic block.
//
// Thread-safety: TAPReporter is safe for concurrent use; test points are
// numbered in the order Report is called.
type TAPReporter struct {
	mu      sync.Mutex
	w       io.Writer
	n       int
	failed  int
	skipped int
	started bool
	err     error
}

// NewTAPReporter creates a reporter writing to w.
func NewTAPReporter(w io.Writer) *TAPReporter {
	return &TAPReporter{w: w}
}

// Report writes one test point.
func (r *TAPReporter) Report(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.header()
	r.n++

	var b strings.Builder
	switch o.Status {
	case Pass:
		fmt.Fprintf(&b, "ok %d - %s\n", r.n, escapeDescription(o.Label))
	case Skip:
		r.skipped++
		fmt.Fprintf(&b, "ok %d - %s # SKIP %s\n", r.n, escapeDescription(o.Label), oneLine(o.Message))
	default:
		r.failed++
		fmt.Fprintf(&b, "not ok %d - %s\n", r.n, escapeDescription(o.Label))
	}
	if o.Status != Skip {
		diag, err := diagnostics(o)
		if err != nil {
			r.setErr(fmt.Errorf("encode diagnostics: %w", err))
		} else {
			b.WriteString(diag)
		}
	}
	r.write(b.String())
}

// Close writes the plan line and returns the first write error.
func (r *TAPReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.header()
	r.write(fmt.Sprintf("1..%d\n", r.n))
	return r.err
}

// Count returns the number of outcomes reported.
func (r *TAPReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Failed returns the number of failing outcomes reported.
func (r *TAPReporter) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}

func (r *TAPReporter) header() {
	if !r.started {
		r.started = true
		r.write("TAP version 13\n")
	}
}

func (r *TAPReporter) write(s string) {
	if r.err != nil {
		return
	}
	if _, err := io.WriteString(r.w, s); err != nil {
		r.err = err
	}
}

func (r *TAPReporter) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

// escapeDescription keeps a label from being read as a directive.
func escapeDescription(s string) string {
	return strings.ReplaceAll(oneLine(s), "#", `\#`)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// diagnostics renders the YAML block of an outcome, indented two spaces
// and framed by --- and ... lines.
func diagnostics(o Outcome) (string, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		m.Content = append(m.Content, plain(key), value)
	}

	if o.Status == Fail {
		msg := o.Detail
		if msg == "" {
			msg = o.Message
		}
		add("message", quoted(msg))
		add("severity", plain("fail"))
		if o.Code != "" {
			add("code", plain(string(o.Code)))
		}
		add("key", plain(o.Key.String()))
		if len(o.Path) > 0 {
			parts := make([]string, len(o.Path))
			for i, k := range o.Path {
				parts[i] = k.String()
			}
			add("path", quoted(strings.Join(parts, " -> ")))
		}
		if o.Cause != "" {
			add("cause", quoted(o.Cause))
		}
		if o.Columns == nil {
			return frame(m)
		}
	}
	add("rows", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(o.Rows)})
	cols := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, c := range o.Columns {
		cols.Content = append(cols.Content, quotedIfNeeded(c))
	}
	add("columns", cols)
	return frame(m)
}

func frame(m *yaml.Node) (string, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("  ---\n")
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		b.WriteString("  ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("  ...\n")
	return b.String(), nil
}

func plain(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func quoted(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Style: yaml.DoubleQuotedStyle}
}

func quotedIfNeeded(v string) *yaml.Node {
	if ir.IsIdentifier(v) {
		return plain(v)
	}
	return quoted(v)
}

// TBReporter reports outcomes to a testing.TB: failures with Errorf,
// everything else with Logf.
type TBReporter struct {
	tb testing.TB
}

// NewTBReporter creates a reporter for tb.
func NewTBReporter(tb testing.TB) *TBReporter {
	return &TBReporter{tb: tb}
}

// Report implements Reporter.
func (r *TBReporter) Report(o Outcome) {
	r.tb.Helper()
	switch o.Status {
	case Fail:
		r.tb.Errorf("not ok - %s: %s", o.Label, o.Message)
	case Skip:
		r.tb.Logf("skip - %s: %s", o.Label, o.Message)
	default:
		r.tb.Logf("ok - %s: %s", o.Label, o.Message)
	}
}
