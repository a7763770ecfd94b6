package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/store"
)

// StatusResult is the output of install, uninstall and status.
type StatusResult struct {
	Driver       string              `json:"driver"`
	State        access.State        `json:"state"`
	Installation *store.Installation `json:"installation,omitempty"`
	Stats        *store.Stats        `json:"stats,omitempty"`
}

func (r StatusResult) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", r.State)
	fmt.Fprintf(&b, "driver: %s\n", r.Driver)
	if r.Installation != nil {
		fmt.Fprintf(&b, "installed by: %s at %s (engine %s, layout %s)\n",
			r.Installation.InstalledBy, r.Installation.InstalledAt,
			r.Installation.EngineVersion, r.Installation.LayoutVersion)
	}
	if r.Stats != nil {
		fmt.Fprintf(&b, "entity types: %d\nrecipes: %d\nfixtures: %d\n",
			r.Stats.EntityTypes, r.Stats.Recipes, r.Stats.Fixtures)
	}
	return b.String()
}

// NewInstallCommand creates the install command.
func NewInstallCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create the engine's namespaces, tables and owner identity",
		Long: `Install the fixture engine into the configured store.

Install is idempotent: running it again on an installed store changes
nothing, and running it after an interrupted install completes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			state, err := e.bootstrapper().Install(cmd.Context())
			if err != nil {
				return e.out.Fail(ExitCommandError, ErrCodeStore, fmt.Errorf("install stopped at %s: %w", state, err))
			}
			return e.report(cmd, state)
		},
	}
}

// NewUninstallCommand creates the uninstall command.
func NewUninstallCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove every engine object, including cached fixtures",
		Long: `Uninstall the fixture engine from the configured store.

All registered recipes and cached fixtures are dropped. Rows that recipes
inserted into application tables are left alone. Uninstalling an
uninstalled store is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			state, err := e.bootstrapper().Uninstall(cmd.Context())
			if err != nil {
				return e.out.Fail(ExitCommandError, ErrCodeStore, fmt.Errorf("uninstall stopped at %s: %w", state, err))
			}
			return e.report(cmd, state)
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the install state and registry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			state, err := e.bootstrapper().Status(cmd.Context())
			if err != nil {
				return e.out.Fail(ExitCommandError, ErrCodeStore, err)
			}
			return e.report(cmd, state)
		},
	}
}

// report prints state, adding the install marker and counts when the
// engine is installed.
func (e *env) report(cmd *cobra.Command, state access.State) error {
	res := StatusResult{
		Driver: string(e.cfg.Driver),
		State:  state,
	}
	if state == access.Installed {
		ctx := cmd.Context()
		in, err := e.store.Installation(ctx)
		if err != nil {
			return e.out.Fail(ExitCommandError, ErrCodeStore, err)
		}
		st, err := e.store.Stats(ctx)
		if err != nil {
			return e.out.Fail(ExitCommandError, ErrCodeStore, err)
		}
		res.Installation = &in
		res.Stats = &st
	}
	return e.out.Success(res, res.text())
}
