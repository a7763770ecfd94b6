package access

import "fmt"

// State is a bootstrap state of one installation target.
type State int

const (
	Uninstalled State = iota
	CapturingIdentity
	NamespacesCreated
	PrivilegedSetupRun
	Installed
)

var stateNames = [...]string{
	Uninstalled:        "uninstalled",
	CapturingIdentity:  "capturing_identity",
	NamespacesCreated:  "namespaces_created",
	PrivilegedSetupRun: "privileged_setup_run",
	Installed:          "installed",
}

// String returns the snake_case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler so states render by name in
// JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Probe is a snapshot of which bootstrap artifacts exist on a target.
type Probe struct {
	// IdentityCaptured is true once the installing identity was recorded.
	IdentityCaptured bool

	// OwnerExists is true when the owner identity exists.
	OwnerExists bool

	// Namespaces is the number of engine namespaces present (0 to 3).
	Namespaces int

	// SetupComplete is true when every engine table exists.
	SetupComplete bool

	// Marker is true when the install marker is recorded.
	Marker bool
}

// Empty reports whether no artifact of any step is present.
func (p Probe) Empty() bool {
	return !p.IdentityCaptured && !p.OwnerExists && p.Namespaces == 0 && !p.SetupComplete && !p.Marker
}

// State derives the furthest completed state from a probe.
func (p Probe) State() State {
	switch {
	case p.Marker && p.SetupComplete:
		return Installed
	case p.SetupComplete:
		return PrivilegedSetupRun
	case p.OwnerExists && p.Namespaces == 3:
		return NamespacesCreated
	case p.Empty():
		return Uninstalled
	default:
		return CapturingIdentity
	}
}
