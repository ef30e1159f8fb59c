// Package ipcsession keeps a lazily opened client connection to one local
// service.
//
// A Session starts closed and connects on the first Access. Each
// connection is bounded by two timers: an idle timer that Access re-arms
// on every call, and a time-to-live timer armed once when the session
// opens, so a busy client still rotates its connection periodically.
// Before handing out an open connection Access checks whether the socket
// is readable; with no request in flight that means the server hung up,
// and the session reconnects without restarting the time-to-live.
//
// Callers that see a read or write failure call Recover so the next
// Access reconnects.
package ipcsession
