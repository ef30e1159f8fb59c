// Package dict provides key/value lookup backends and the process-wide
// registry that shares open backends between callers.
//
// Backends are named "type:name". The set of types is fixed when the
// Registry is built: inline, static, texthash, regexp, sqlite, and fail.
// Opening the same backend with the same mode and flags twice returns the
// same instance; the registry counts references and closes a backend when
// its last user releases it.
package dict
