package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fixtures/internal/manifest"
)

// CheckResult is the output of check and register.
type CheckResult struct {
	Source      string             `json:"source"`
	EntityTypes int                `json:"entity_types"`
	Recipes     int                `json:"recipes"`
	Registered  bool               `json:"registered"`
	Cycles      []manifest.Warning `json:"cycles"`
	Undeclared  []manifest.Warning `json:"undeclared"`
	Dynamic     []string           `json:"dynamic"`
}

// loadManifest loads and analyzes path, reporting failures as command
// errors.
func loadManifest(out *OutputFormatter, path string) (*manifest.Manifest, *CheckResult, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, nil, out.Fail(ExitCommandError, ErrCodeManifest, err)
	}
	report, err := manifest.Analyze(m)
	if err != nil {
		return nil, nil, out.Fail(ExitCommandError, ErrCodeManifest, err)
	}

	res := &CheckResult{
		Source:      path,
		EntityTypes: len(m.Entities),
		Recipes:     m.Len(),
		Cycles:      report.Cycles,
		Undeclared:  report.Undeclared,
		Dynamic:     []string{},
	}
	for _, key := range report.Dynamic {
		res.Dynamic = append(res.Dynamic, key.String())
	}
	for _, w := range report.Cycles {
		out.Warn("%s", w.Message)
	}
	for _, w := range report.Undeclared {
		out.Warn("%s", w.Message)
	}
	return m, res, nil
}

func (r *CheckResult) text() string {
	var b strings.Builder
	verb := "checked"
	if r.Registered {
		verb = "registered"
	}
	fmt.Fprintf(&b, "%s %d recipes for %d entity types from %s\n", verb, r.Recipes, r.EntityTypes, r.Source)
	if len(r.Dynamic) > 0 {
		fmt.Fprintf(&b, "not analyzed (computed dependency arguments): %s\n", strings.Join(r.Dynamic, ", "))
	}
	return b.String()
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Strict bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <manifest>",
		Short: "Validate a recipe manifest without touching the store",
		Long: `Validate a YAML or CUE recipe manifest.

Every recipe list is validated the way register would, and the static
dependency graph is searched for cycles. Cycles are warnings unless
--strict is set.

Exit codes:
  0 - Manifest is valid
  1 - Cycles found with --strict
  2 - Manifest could not be loaded or is invalid`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)
			_, res, err := loadManifest(out, args[0])
			if err != nil {
				return err
			}
			if opts.Strict && len(res.Cycles) > 0 {
				return out.Fail(ExitFailure, ErrCodeCycles,
					fmt.Errorf("%d dependency cycle(s) in %s", len(res.Cycles), args[0]))
			}
			return out.Success(res, res.text())
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat dependency cycles as failures")
	return cmd
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <manifest>",
		Short: "Register every recipe list in a manifest",
		Long: `Register the recipe lists of a YAML or CUE manifest.

Each entity type's list replaces the one registered before. Registering
an unchanged manifest writes nothing, and fixtures already cached stay
cached.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			m, res, err := loadManifest(out, args[0])
			if err != nil {
				return err
			}

			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			r, _, err := e.resolver()
			if err != nil {
				return err
			}
			if err := m.Register(cmd.Context(), r); err != nil {
				return e.out.Fail(ExitCommandError, ErrCodeManifest, err)
			}
			res.Registered = true
			return e.out.Success(res, res.text())
		},
	}
}
