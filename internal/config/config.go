package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	QueueDir  string `toml:"queue_dir"`
	SocketDir string `toml:"socket_dir"`
	LogDir    string `toml:"log_dir"`
}

// Queue contains the spool layout and queue file creation settings.
type Queue struct {
	// HashQueueNames lists the queues whose files live below a hashed
	// directory forest.
	HashQueueNames []string `toml:"hash_queue_names"`
	// HashQueueDepth is the number of forest levels for hashed queues.
	HashQueueDepth          int `toml:"hash_queue_depth"`
	CreateRetryDelaySeconds int `toml:"create_retry_delay_seconds"`
	MaxCollisions           int `toml:"max_collisions"`
}

// IPC contains client session timing for local service connections.
type IPC struct {
	IdleTimeoutSeconds int    `toml:"idle_timeout_seconds"`
	TTLSeconds         int    `toml:"ttl_seconds"`
	RewriteService     string `toml:"rewrite_service"`
	// RetryAttempts bounds the rewrite/resolve retry loop. Zero retries
	// until the context is cancelled.
	RetryAttempts    int `toml:"retry_attempts"`
	RetryBaseDelayMS int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `toml:"retry_max_delay_ms"`
	// LegacyRewriteCacheKey keys the rewrite cache on the address only,
	// ignoring the ruleset name.
	LegacyRewriteCacheKey bool `toml:"legacy_rewrite_cache_key"`
}

// Maps contains lookup table lists in "type:name" form.
type Maps struct {
	TransportMaps string `toml:"transport_maps"`
	RelocatedMaps string `toml:"relocated_maps"`
	CanonicalMaps string `toml:"canonical_maps"`
}

// Rewrite contains the address policy of the bundled rewrite service.
type Rewrite struct {
	MyOrigin         string   `toml:"myorigin"`
	MyDestination    []string `toml:"mydestination"`
	DefaultTransport string   `toml:"default_transport"`
	LocalTransport   string   `toml:"local_transport"`
	RelayTransport   string   `toml:"relay_transport"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format      string `toml:"format"`
	Level       string `toml:"level"`
	MetricsBind string `toml:"metrics_bind"`
}

// Config encapsulates all configuration values for spool.
//
// Configuration sections by subsystem:
//   - Paths: spool root, service socket directory, log directory
//   - Queue: hashed queue names, forest depth, creation retry policy
//   - IPC: session idle/ttl timeouts and rewrite client retry policy
//   - Maps: lookup table lists used for routing decisions
//   - Rewrite: address policy of the rewrite service
//   - Logging: log format, level, and metrics endpoint
type Config struct {
	Paths   Paths   `toml:"paths"`
	Queue   Queue   `toml:"queue"`
	IPC     IPC     `toml:"ipc"`
	Maps    Maps    `toml:"maps"`
	Rewrite Rewrite `toml:"rewrite"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spool/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spool.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the spool root, socket directory, and log directory.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.QueueDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.QueueDir, err)
	}
	for _, dir := range []string{c.Paths.SocketDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// IdleTimeout returns the IPC idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IPC.IdleTimeoutSeconds) * time.Second
}

// TTL returns the IPC connection time-to-live as a duration.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.IPC.TTLSeconds) * time.Second
}

// CreateRetryDelay returns the backoff between failed queue file creations.
func (c *Config) CreateRetryDelay() time.Duration {
	return time.Duration(c.Queue.CreateRetryDelaySeconds) * time.Second
}

// RewriteServiceName splits ipc.rewrite_service into its class and name.
func (c *Config) RewriteServiceName() (class, name string) {
	class, name, ok := strings.Cut(c.IPC.RewriteService, "/")
	if !ok {
		return "private", c.IPC.RewriteService
	}
	return class, name
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
