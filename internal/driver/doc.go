// Package driver is the vmux facade: one logical API for inspecting and
// controlling domains, served by whichever backend adapter owns each call.
//
// # Lifecycle
//
// A Driver is the factory. It is created once per process with the
// configuration and the privileged flag, and opens connections:
//
//	drv := driver.New(cfg, os.Geteuid() == 0)
//	conn, err := drv.Open(ctx, "vmux:///")
//	if err != nil { ... }
//	defer conn.Close()
//
// Open activates the adapters in a fixed order: hypervisor, daemon, file
// store (only for daemons at or below backend.ConfigVersionLegacyMax), watch,
// then takes a node topology snapshot and creates the managed-save
// directory. Every successful activation is pushed on an acquisition stack;
// if a later mandatory step fails the stack is released in reverse and Open
// returns a single error wrapping backend.ErrOpenFailed. A Conn is therefore
// either fully open or fully torn down.
//
// # Routing
//
// Operations are routed in one of three ways:
//
//   - Version gated: exactly one adapter is correct, chosen from the domain's
//     activity and the daemon's config version. If that adapter is not
//     active the call fails with backend.ErrUnsupported; it never falls
//     through to another adapter.
//   - Fallback chain: every active adapter with the capability is tried in
//     backend ID order (reverse order for scheduler writes). Declines move on,
//     the first success wins, and when nothing succeeds the last adapter
//     failure is returned unchanged, or backend.ErrUnsupported if every
//     adapter declined.
//   - Single owner: lifecycle, save and restore calls go to the daemon.
//
// # Locking
//
// Conn.mu is the only lock in the package and it is not reentrant. It guards
// the event hub and is taken briefly to read fields written during Open.
// Adapter calls are always made without it.
package driver
