// Package clock abstracts wall-clock time so that spool file naming, IPC
// session expiry, and client backoff can be driven deterministically in
// tests. Real wraps the time package; Manual only moves when told to.
package clock
