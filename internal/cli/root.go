package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/fixtures/internal/access"
	"github.com/roach88/fixtures/internal/config"
	"github.com/roach88/fixtures/internal/engine"
	"github.com/roach88/fixtures/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	Driver      string
	DSN         string
	MetricsFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fixtures CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Durable, cached test fixtures",
		Long: `Register named fixture recipes and materialize them once.

A recipe is a SQL statement, written as a Go template, that creates test
data. The first request for a fixture runs its recipe inside a transaction
and caches the returned rows; every later request returns the cached rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", "", "store driver (sqlite|postgres), overrides config")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "data source name, overrides config")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write resolver metrics in Prometheus text format to this file")

	cmd.AddCommand(NewInstallCommand(opts))
	cmd.AddCommand(NewUninstallCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewTapCommand(opts))

	return cmd
}

// Run executes the CLI with args and returns the process exit code.
// Errors already reported by a command are not printed again.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if !exitErr.Reported {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitErr.Code
	}
	// Flag and argument errors from cobra.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitCommandError
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
	}
}

// logger writes text logs to stderr: debug and up when verbose, warnings
// otherwise.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// config resolves the configuration: defaults, file, environment, flags.
func (o *RootOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Driver != "" {
		cfg.Driver = config.Driver(o.Driver)
	}
	if o.DSN != "" {
		cfg.DSN = o.DSN
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// env is what a command needs to talk to the store.
type env struct {
	opts   *RootOptions
	out    *OutputFormatter
	logger *slog.Logger
	cfg    config.Config
	store  *store.Store
}

// open resolves the configuration and opens the store. Failures are
// reported and returned as command errors.
func (o *RootOptions) open(cmd *cobra.Command) (*env, error) {
	e := &env{
		opts:   o,
		out:    o.formatter(cmd),
		logger: o.logger(cmd),
	}

	cfg, err := o.config()
	if err != nil {
		return nil, e.out.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	e.cfg = cfg

	e.logger.Debug("opening store", "driver", cfg.Driver, "dsn", cfg.DSN)
	s, err := store.Open(cmd.Context(), cfg, store.WithLogger(e.logger))
	if err != nil {
		return nil, e.out.Fail(ExitCommandError, ErrCodeStore, err)
	}
	e.store = s
	return e, nil
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "error", err)
	}
}

func (e *env) bootstrapper() *access.Bootstrapper {
	return access.New(e.store, access.WithLogger(e.logger))
}

// resolver builds a Resolver. When a metrics file is configured, the
// returned flush writes the collected metrics to it.
func (e *env) resolver() (*engine.Resolver, func(), error) {
	opts := []engine.Option{engine.WithLogger(e.logger)}
	flush := func() {}

	if e.opts.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		m, err := engine.NewMetrics(reg)
		if err != nil {
			return nil, nil, e.out.Fail(ExitCommandError, ErrCodeConfig, err)
		}
		opts = append(opts, engine.WithMetrics(m))
		path := e.opts.MetricsFile
		flush = func() {
			if err := prometheus.WriteToTextfile(path, reg); err != nil {
				e.logger.Error("error writing metrics", "path", path, "error", err)
			}
		}
	}
	return engine.New(e.store, opts...), flush, nil
}
