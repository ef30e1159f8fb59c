// Package resolve is the client side of the address rewrite and resolve
// protocols.
//
// Rewrite canonicalizes an address through a named ruleset; Resolve maps a
// recipient to a transport, nexthop, and final recipient. Both share one
// ipcsession.Session so a process holds at most one connection to the
// rewrite service, and each keeps a single-slot cache of its last answer.
//
// Failures are retried with exponential backoff after recovering the
// session. With no attempt bound the client waits for the service to come
// back; cancel the context to give up.
package resolve
