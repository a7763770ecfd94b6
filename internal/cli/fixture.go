package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fixtures/internal/ir"
	"github.com/roach88/fixtures/internal/store"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered recipes and whether they are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			recipes, err := e.store.ListRecipes(cmd.Context())
			if err != nil {
				return e.out.Fail(ExitCommandError, ErrCodeStore, storeError(err))
			}
			if recipes == nil {
				recipes = []ir.RegisteredRecipe{}
			}

			var b strings.Builder
			tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENTITY\tSET\tCACHED")
			for _, rr := range recipes {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", rr.Key.EntityType, rr.Key.SetName, rr.Cached)
			}
			tw.Flush()
			return e.out.Success(recipes, b.String())
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <entity> <set>",
		Short: "Materialize a fixture and print its rows",
		Long: `Resolve a fixture, running its recipe and its dependencies' recipes
the first time, and print the cached rows.

Exit codes:
  0 - Fixture resolved
  1 - Resolution failed
  2 - Command error`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			r, flush, err := e.resolver()
			if err != nil {
				return err
			}
			defer flush()

			f, err := r.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return e.out.Fail(ExitFailure, ErrCodeFailed, err)
			}

			var b strings.Builder
			writeTable(&b, f)
			return e.out.Success(f, b.String())
		},
	}
}

// writeTable renders a fixture's rows in column order.
func writeTable(w io.Writer, f *ir.Fixture) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(f.Columns, "\t"))
	for _, row := range f.Rows {
		cells := make([]string, len(f.Columns))
		for i, col := range f.Columns {
			cells[i] = cell(row[col])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
	fmt.Fprintf(w, "(%d rows)\n", f.RowCount())
}

func cell(v ir.IRValue) string {
	n := ir.Native(v)
	switch n := n.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("\\x%x", n)
	default:
		return fmt.Sprint(n)
	}
}

// storeError gives classified store errors their fixture error code.
func storeError(err error) error {
	switch {
	case store.IsNotInstalled(err):
		return ir.NewNotInstalled(err)
	case store.IsPermission(err):
		return ir.NewPermissionDenied(ir.FixtureKey{}, err)
	default:
		return err
	}
}
