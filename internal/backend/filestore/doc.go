// Package filestore implements the adapter for the legacy configuration
// directory used by daemons that do not manage inactive domains
// themselves.
//
// Each domain is one {name}.xml file holding a libvirt domain description.
// Autostart is a symlink in the autostart directory pointing at that file.
// Every change is a read-modify-write of the whole file, replaced
// atomically with a rename.
package filestore
