// Package backend defines the contract between the vmux facade and the
// adapters that actually talk to a virtualization stack.
//
// # Overview
//
// An adapter is any value implementing Backend (identity plus Open and
// Close). Everything else an adapter can do is expressed as a small optional
// capability interface, for example DomainPinner or SchedulerSetter. The
// facade discovers capabilities with a type assertion, so "this adapter has no
// such operation" is decided when the adapter is compiled, not at runtime.
//
// # Results
//
// Operations that take part in a fallback chain return a Result. A Result is
// one of three things:
//
//   - Success: the adapter performed the operation, Value holds the answer.
//   - Declined: the adapter recognises the operation but it does not apply
//     here (wrong domain state, domain unknown to this adapter). The facade
//     moves on to the next adapter.
//   - Failed: the adapter tried and failed. Err carries the adapter's own
//     diagnosis and is forwarded unchanged.
//
// Operations that are routed to exactly one adapter return plain (T, error)
// pairs instead.
//
// # Identity
//
// Domains are identified by Domain values: a numeric ID (-1 when the domain
// is not running), a UUID and a name. Adapters never keep Domain values past
// the call that received them.
package backend
