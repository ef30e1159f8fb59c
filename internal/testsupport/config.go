package testsupport

import (
	"path/filepath"
	"testing"

	"spool/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.QueueDir = filepath.Join(base, "queue")
	cfgVal.Paths.SocketDir = filepath.Join(base, "queue")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Queue.CreateRetryDelaySeconds = 1
	cfgVal.IPC.RetryBaseDelayMS = 1
	cfgVal.IPC.RetryMaxDelayMS = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithHashedQueues overrides the hashed queue list and forest depth.
func WithHashedQueues(depth int, names ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.HashQueueNames = names
		b.cfg.Queue.HashQueueDepth = depth
	}
}

// WithRetryAttempts bounds the rewrite client retry loop.
func WithRetryAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.IPC.RetryAttempts = n
	}
}

// WithMaps sets the lookup table lists used by the rewrite service.
func WithMaps(transport, relocated, canonical string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Maps.TransportMaps = transport
		b.cfg.Maps.RelocatedMaps = relocated
		b.cfg.Maps.CanonicalMaps = canonical
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.QueueDir)
}
