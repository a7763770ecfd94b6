package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/fixtures/internal/tap"
)

// TapOptions holds flags for the tap command.
type TapOptions struct {
	*RootOptions
	Plan string
}

// TapResult is the JSON output of the tap command.
type TapResult struct {
	Plan     string        `json:"plan,omitempty"`
	Outcomes []tap.Outcome `json:"outcomes"`
	Summary  tap.Summary   `json:"summary"`
}

// collector keeps outcomes for JSON output.
type collector struct {
	mu       sync.Mutex
	outcomes []tap.Outcome
}

func (c *collector) Report(o tap.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

// NewTapCommand creates the tap command.
func NewTapCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TapOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tap [<entity> <set> [label]]",
		Short: "Assert that fixtures resolve, as a TAP stream",
		Long: `Resolve fixtures and report each as a TAP version 13 test point.

A fixture that resolves passes, one that fails to resolve fails with its
error code and cause, and an uninstalled engine skips. With --plan, every
check of a YAML plan file is run in order.

Exit codes:
  0 - No check failed
  1 - One or more checks failed
  2 - Command error

Examples:
  fixtures tap customer base
  fixtures tap invoice base "invoices have a customer"
  fixtures tap --plan fixtures.plan.yaml
  fixtures tap --plan fixtures.plan.yaml --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.Plan != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.RangeArgs(2, 3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTap(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Plan, "plan", "", "YAML plan file of checks to run")
	return cmd
}

func runTap(opts *TapOptions, args []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	plan := &tap.Plan{Name: "adhoc"}
	if opts.Plan != "" {
		p, err := tap.LoadPlan(opts.Plan)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeManifest, err)
		}
		plan = p
	} else {
		c := tap.Check{Entity: args[0], Set: args[1]}
		if len(args) == 3 {
			c.Label = args[2]
		}
		plan.Checks = []tap.Check{c}
	}

	e, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	r, flush, err := e.resolver()
	if err != nil {
		return err
	}
	defer flush()

	var sum tap.Summary
	if out.JSON() {
		col := &collector{}
		sum = tap.RunPlan(cmd.Context(), r, plan, col)
		res := TapResult{Plan: opts.Plan, Outcomes: col.outcomes, Summary: sum}
		if err := out.Success(res, ""); err != nil {
			return err
		}
	} else {
		rep := tap.NewTAPReporter(cmd.OutOrStdout())
		sum = tap.RunPlan(cmd.Context(), r, plan, rep)
		if err := rep.Close(); err != nil {
			return WrapExitError(ExitCommandError, "write TAP output", err)
		}
	}

	e.logger.Debug("tap finished",
		"total", sum.Total, "passed", sum.Passed, "failed", sum.Failed, "skipped", sum.Skipped)
	if !sum.OK() {
		return &ExitError{
			Code:     ExitFailure,
			Message:  fmt.Sprintf("%d of %d checks failed", sum.Failed, sum.Total),
			Reported: true,
		}
	}
	return nil
}
