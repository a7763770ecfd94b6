package access

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Host performs the dialect-specific bootstrap steps. Every method must be
// idempotent.
type Host interface {
	// Probe reports which bootstrap artifacts exist.
	Probe(ctx context.Context) (Probe, error)

	// CurrentIdentity returns the identity the host is acting as right now.
	CurrentIdentity(ctx context.Context) (string, error)

	// CaptureIdentity records the invoking identity and returns it.
	CaptureIdentity(ctx context.Context) (string, error)

	// CreateNamespaces creates the owner identity and the api, internal and
	// cache namespaces owned by it, and lets caller elevate to the owner.
	CreateNamespaces(ctx context.Context, caller string) error

	// RunPrivilegedSetup creates engine tables and grants while
	// elevated to the owner. Elevation must end on every exit path.
	RunPrivilegedSetup(ctx context.Context) error

	// RecordInstall writes the install marker.
	RecordInstall(ctx context.Context, caller string) error

	// RemoveInstall deletes the install marker.
	RemoveInstall(ctx context.Context) error

	// DropNamespaces drops the namespaces and everything in them.
	DropNamespaces(ctx context.Context) error

	// DropOwner revokes the owner's grants and memberships and drops it.
	DropOwner(ctx context.Context) error
}

// Bootstrapper sequences Host steps.
type Bootstrapper struct {
	host   Host
	logger *slog.Logger
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bootstrapper) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Bootstrapper for host.
func New(host Host, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		host:   host,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Status returns the current bootstrap state.
func (b *Bootstrapper) Status(ctx context.Context) (State, error) {
	p, err := b.host.Probe(ctx)
	if err != nil {
		return Uninstalled, fmt.Errorf("probe: %w", err)
	}
	return p.State(), nil
}

// Install drives the target to Installed. Steps that already completed are
// re-run; each is idempotent, which completes partial installs.
func (b *Bootstrapper) Install(ctx context.Context) (State, error) {
	start, err := b.Status(ctx)
	if err != nil {
		return Uninstalled, err
	}
	if start == Installed {
		b.logger.Debug("already installed")
		return Installed, nil
	}
	b.logger.Info("installing", "from", start)

	current := start
	caller, err := b.host.CaptureIdentity(ctx)
	if err != nil {
		return current, fmt.Errorf("capture identity: %w", err)
	}
	current = b.advance(current, CapturingIdentity, "caller", caller)

	if err := b.host.CreateNamespaces(ctx, caller); err != nil {
		return current, fmt.Errorf("create namespaces: %w", err)
	}
	current = b.advance(current, NamespacesCreated)

	if err := b.host.RunPrivilegedSetup(ctx); err != nil {
		return current, fmt.Errorf("privileged setup: %w", err)
	}
	current = b.advance(current, PrivilegedSetupRun)

	active, err := b.host.CurrentIdentity(ctx)
	if err != nil {
		return current, fmt.Errorf("verify identity: %w", err)
	}
	if active != caller {
		return current, fmt.Errorf("verify identity: active identity %q differs from installer %q", active, caller)
	}
	if err := b.host.RecordInstall(ctx, caller); err != nil {
		return current, fmt.Errorf("record install: %w", err)
	}
	current = b.advance(current, Installed)
	return current, nil
}

// Uninstall removes every bootstrap artifact. It is a no-op on an
// uninstalled target and cleans up partial installs.
func (b *Bootstrapper) Uninstall(ctx context.Context) (State, error) {
	p, err := b.host.Probe(ctx)
	if err != nil {
		return Uninstalled, fmt.Errorf("probe: %w", err)
	}
	if p.Empty() {
		b.logger.Debug("already uninstalled")
		return Uninstalled, nil
	}
	current := p.State()
	b.logger.Info("uninstalling", "from", current)

	if err := b.host.RemoveInstall(ctx); err != nil {
		return current, fmt.Errorf("remove install marker: %w", err)
	}
	if current == Installed {
		current = b.advance(current, PrivilegedSetupRun)
	}

	if err := b.host.DropNamespaces(ctx); err != nil {
		return current, fmt.Errorf("drop namespaces: %w", err)
	}
	if current > CapturingIdentity {
		current = b.advance(current, CapturingIdentity)
	}

	if err := b.host.DropOwner(ctx); err != nil {
		return current, fmt.Errorf("drop owner: %w", err)
	}
	current = b.advance(current, Uninstalled)
	return current, nil
}

func (b *Bootstrapper) advance(from, to State, attrs ...any) State {
	if from != to {
		b.logger.Info("bootstrap transition", append([]any{"from", from, "to", to}, attrs...)...)
	}
	return to
}
