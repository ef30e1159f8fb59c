package mailqueue

import "errors"

var (
	// ErrNotFound reports that no file exists for the requested queue entry.
	ErrNotFound = errors.New("queue file not found")
	// ErrTooManyCollisions reports that Enter could not find a free queue id
	// within the configured collision bound. This indicates spool corruption
	// rather than ordinary contention.
	ErrTooManyCollisions = errors.New("too many queue id collisions")
)
