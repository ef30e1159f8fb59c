package testsupport

import (
	"testing"

	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/mailqueue"
)

// MustStore builds a mailqueue.Store for cfg and creates the named queue
// directories.
func MustStore(t testing.TB, cfg *config.Config, queues []string, opts ...mailqueue.Option) *mailqueue.Store {
	t.Helper()

	store := mailqueue.NewFromConfig(cfg, logging.NewNop(), opts...)
	for _, queue := range queues {
		if err := store.EnsureQueue(queue); err != nil {
			t.Fatalf("EnsureQueue(%s): %v", queue, err)
		}
	}
	return store
}
