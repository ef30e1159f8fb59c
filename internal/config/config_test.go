package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"spool/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantQueue := filepath.Join(tempHome, ".local", "share", "spool", "queue")
	if cfg.Paths.QueueDir != wantQueue {
		t.Fatalf("unexpected queue dir: got %q want %q", cfg.Paths.QueueDir, wantQueue)
	}
	if cfg.Paths.SocketDir != wantQueue {
		t.Fatalf("expected socket dir to default to queue dir, got %q", cfg.Paths.SocketDir)
	}
	if cfg.Queue.HashQueueDepth != 1 {
		t.Fatalf("unexpected hash depth: %d", cfg.Queue.HashQueueDepth)
	}
	if len(cfg.Queue.HashQueueNames) != 2 || cfg.Queue.HashQueueNames[0] != "deferred" {
		t.Fatalf("unexpected hash queue names: %v", cfg.Queue.HashQueueNames)
	}
	if cfg.IPC.RetryAttempts != 0 {
		t.Fatalf("expected unbounded retries by default, got %d", cfg.IPC.RetryAttempts)
	}
	if cfg.IPC.LegacyRewriteCacheKey {
		t.Fatal("expected legacy rewrite cache key disabled by default")
	}
	class, name := cfg.RewriteServiceName()
	if class != "private" || name != "rewrite" {
		t.Fatalf("unexpected rewrite service %s/%s", class, name)
	}
	if cfg.Rewrite.RelayTransport != "smtp" {
		t.Fatalf("expected relay transport to fall back to default transport, got %q", cfg.Rewrite.RelayTransport)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.QueueDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "spool.toml")

	type payload struct {
		Paths struct {
			QueueDir string `toml:"queue_dir"`
		} `toml:"paths"`
		Queue struct {
			HashQueueNames []string `toml:"hash_queue_names"`
			HashQueueDepth int      `toml:"hash_queue_depth"`
		} `toml:"queue"`
		IPC struct {
			TTLSeconds int `toml:"ttl_seconds"`
		} `toml:"ipc"`
	}
	custom := payload{}
	custom.Paths.QueueDir = filepath.Join(tempDir, "spool")
	custom.Queue.HashQueueNames = []string{" Incoming ", "deferred", "incoming"}
	custom.Queue.HashQueueDepth = 2
	custom.IPC.TTLSeconds = 30

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.QueueDir != filepath.Join(tempDir, "spool") {
		t.Fatalf("unexpected queue dir %q", cfg.Paths.QueueDir)
	}
	if got := strings.Join(cfg.Queue.HashQueueNames, ","); got != "incoming,deferred" {
		t.Fatalf("expected normalized hash queue names, got %q", got)
	}
	if cfg.Queue.HashQueueDepth != 2 {
		t.Fatalf("unexpected depth %d", cfg.Queue.HashQueueDepth)
	}
	if cfg.TTL().Seconds() != 30 {
		t.Fatalf("unexpected ttl %v", cfg.TTL())
	}
}

func TestLoadHonoursQueueDirEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(tempHome)
	override := filepath.Join(tempHome, "override")
	t.Setenv("SPOOL_QUEUE_DIR", override)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.QueueDir != override {
		t.Fatalf("expected env override %q, got %q", override, cfg.Paths.QueueDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"depth zero", func(c *config.Config) { c.Queue.HashQueueDepth = 0 }, "queue.hash_queue_depth"},
		{"depth too deep", func(c *config.Config) { c.Queue.HashQueueDepth = 17 }, "queue.hash_queue_depth"},
		{"bad queue name", func(c *config.Config) { c.Queue.HashQueueNames = []string{"in/coming"} }, "queue.hash_queue_names"},
		{"idle zero", func(c *config.Config) { c.IPC.IdleTimeoutSeconds = 0 }, "ipc.idle_timeout_seconds"},
		{"negative attempts", func(c *config.Config) { c.IPC.RetryAttempts = -1 }, "ipc.retry_attempts"},
		{"max below base", func(c *config.Config) { c.IPC.RetryMaxDelayMS = 10 }, "ipc.retry_max_delay_ms"},
		{"bad service", func(c *config.Config) { c.IPC.RewriteService = "private/a/b" }, "ipc.rewrite_service"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.QueueDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	path := filepath.Join(tempHome, "conf", "spool.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Queue.MaxCollisions != 1000 {
		t.Fatalf("unexpected max collisions %d", cfg.Queue.MaxCollisions)
	}
}
