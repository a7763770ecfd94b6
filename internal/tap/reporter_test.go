package tap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}

func TestTAPReporter_Golden(t *testing.T) {
	var buf bytes.Buffer
	rep := NewTAPReporter(&buf)
	g := sampleGetter()
	ctx := context.Background()

	for _, k := range [][2]string{
		{"users", "default"},
		{"ghost", "base"},
		{"a", "x"},
		{"broken", "base"},
		{"setup", "base"},
	} {
		rep.Report(Tap(ctx, g, k[0], k[1], ""))
	}
	require.NoError(t, rep.Close())

	assert.Equal(t, 5, rep.Count())
	assert.Equal(t, 3, rep.Failed())
	assertGolden(t, "tap_outcomes", buf.Bytes())
}

func TestTAPReporter_EmptyStream(t *testing.T) {
	var buf bytes.Buffer
	rep := NewTAPReporter(&buf)
	require.NoError(t, rep.Close())
	assert.Equal(t, "TAP version 13\n1..0\n", buf.String())
}

func TestTAPReporter_SkipAndEscaping(t *testing.T) {
	var buf bytes.Buffer
	rep := NewTAPReporter(&buf)
	rep.Report(Outcome{Label: "multi\nline # label", Status: Skip, Message: "not\ninstalled"})
	require.NoError(t, rep.Close())

	assert.Equal(t, "TAP version 13\nok 1 - multi line \\# label # SKIP not installed\n1..1\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestTAPReporter_WriteError(t *testing.T) {
	rep := NewTAPReporter(failingWriter{})
	rep.Report(Outcome{Label: "x", Status: Pass})
	err := rep.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

// recordingTB captures what TBReporter sends to a testing.TB.
type recordingTB struct {
	testing.TB
	errors []string
	logs   []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func (r *recordingTB) Logf(format string, args ...any) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

func TestTBReporter(t *testing.T) {
	tb := &recordingTB{}
	rep := NewTBReporter(tb)

	rep.Report(Outcome{Label: "good", Status: Pass, Message: "1 rows"})
	rep.Report(Outcome{Label: "bad", Status: Fail, Message: "NOT_REGISTERED: no recipe registered"})
	rep.Report(Outcome{Label: "later", Status: Skip, Message: "context canceled"})

	assert.Equal(t, []string{"not ok - bad: NOT_REGISTERED: no recipe registered"}, tb.errors)
	assert.Equal(t, []string{"ok - good: 1 rows", "skip - later: context canceled"}, tb.logs)
}
