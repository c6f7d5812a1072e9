// Package daemon is the backend adapter for the management daemon.
//
// It wraps github.com/digitalocean/go-libvirt and connects over the
// daemon's local UNIX socket:
//
//	d := daemon.New(daemon.Options{Socket: "/var/run/libvirt/libvirt-sock"})
//	if err := d.Open(ctx, backend.OpenParams{}); err != nil {
//	    return err
//	}
//	defer d.Close()
//
// Open learns the config version from the daemon's library version unless
// Options.ConfigVersion pins it. The facade reads it through
// backend.VersionReporter to decide whether the file store is needed.
//
// Calls that take part in fallback chains decline when the daemon reports
// that it cannot perform them (no support, invalid operation, unsupported
// argument) and when a lookup finds no domain. Every other daemon error is a
// failure.
//
// Consumer-Side Interface:
//
// The adapter talks to the daemon through libvirtClient, which lists only
// the calls it makes. *libvirt.Libvirt satisfies it; tests use the mock in
// mocks_test.go.
package daemon
