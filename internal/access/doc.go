// Package access installs and removes the fixture engine's privilege
// isolation.
//
// Installation is a linear state machine:
//
//	Uninstalled -> CapturingIdentity -> NamespacesCreated -> PrivilegedSetupRun -> Installed
//
// Every step is idempotent, so Install completes a partially installed target
// and is a no-op on an installed one. Uninstall walks the same steps in
// reverse and tolerates any intermediate state.
//
// The dialect-specific work is done by a Host; this package only sequences
// it, checks the identity is restored, and logs each transition.
package access
