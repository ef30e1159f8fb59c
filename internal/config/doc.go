// Package config loads, normalizes, and validates spool configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the SPOOL_QUEUE_DIR environment
// fallback. The Config type centralizes the queue layout (root directory,
// hashed queue names, forest depth), IPC session timing, lookup table lists,
// and the policy of the bundled rewrite service.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, lowercased queue lists, and clear validation errors.
package config
