package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"spool/internal/config"
	"spool/internal/dict"
	"spool/internal/logging"
	"spool/internal/trivial"
)

// ServeUnix starts the rewrite service for cfg on its configured socket
// and stops it when the test ends.
func ServeUnix(t testing.TB, cfg *config.Config) *trivial.Server {
	t.Helper()

	reg := dict.NewRegistry(logging.NewNop())
	policy, err := trivial.NewPolicy(cfg, reg, logging.NewNop())
	if err != nil {
		t.Fatalf("trivial.NewPolicy: %v", err)
	}
	class, name := cfg.RewriteServiceName()
	srv, err := trivial.NewServer(context.Background(), filepath.Join(cfg.Paths.SocketDir, class, name), policy, logging.NewNop())
	if err != nil {
		policy.Close()
		t.Fatalf("trivial.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
		policy.Close()
		_ = reg.Close()
	})
	return srv
}
