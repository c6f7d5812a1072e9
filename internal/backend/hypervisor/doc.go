// Package hypervisor is the backend adapter for running guests.
//
// It needs no daemon: running guests are found in the process table
// (github.com/shirou/gopsutil/v3), identified by the -name and -uuid
// arguments of their emulator process, and queried over a QMP monitor
// socket at {QMPDir}/{name}.monitor. The domain ID of a running guest is
// the PID of its emulator.
//
// Vcpu affinity and scheduling priority are applied to the vcpu threads
// reported by query-cpus-fast with sched_setaffinity and setpriority.
// Host topology and memory come from gopsutil.
//
// Inactive domains are unknown here. Calls taking part in fallback chains
// decline for them so the daemon or the file store can answer.
package hypervisor
