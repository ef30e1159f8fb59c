package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeIPC()
	c.normalizeMaps()
	c.normalizeRewrite()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("SPOOL_QUEUE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.QueueDir = value
	}
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		c.Paths.QueueDir = defaultQueueDir
	}
	var err error
	if c.Paths.QueueDir, err = expandPath(strings.TrimSpace(c.Paths.QueueDir)); err != nil {
		return fmt.Errorf("paths.queue_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketDir) == "" {
		c.Paths.SocketDir = c.Paths.QueueDir
	}
	if c.Paths.SocketDir, err = expandPath(strings.TrimSpace(c.Paths.SocketDir)); err != nil {
		return fmt.Errorf("paths.socket_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.HashQueueNames = normalizeList(c.Queue.HashQueueNames)
	if c.Queue.CreateRetryDelaySeconds == 0 {
		c.Queue.CreateRetryDelaySeconds = defaultCreateRetryDelaySeconds
	}
	if c.Queue.MaxCollisions == 0 {
		c.Queue.MaxCollisions = defaultMaxCollisions
	}
}

func (c *Config) normalizeIPC() {
	c.IPC.RewriteService = strings.Trim(strings.TrimSpace(c.IPC.RewriteService), "/")
	if c.IPC.RewriteService == "" {
		c.IPC.RewriteService = defaultRewriteService
	}
	if c.IPC.RetryBaseDelayMS == 0 {
		c.IPC.RetryBaseDelayMS = defaultRetryBaseDelayMillis
	}
	if c.IPC.RetryMaxDelayMS == 0 {
		c.IPC.RetryMaxDelayMS = defaultRetryMaxDelayMillis
	}
}

func (c *Config) normalizeMaps() {
	c.Maps.TransportMaps = strings.TrimSpace(c.Maps.TransportMaps)
	c.Maps.RelocatedMaps = strings.TrimSpace(c.Maps.RelocatedMaps)
	c.Maps.CanonicalMaps = strings.TrimSpace(c.Maps.CanonicalMaps)
}

func (c *Config) normalizeRewrite() {
	c.Rewrite.MyOrigin = strings.ToLower(strings.TrimSpace(c.Rewrite.MyOrigin))
	if c.Rewrite.MyOrigin == "" {
		c.Rewrite.MyOrigin = defaultMyOrigin
	}
	c.Rewrite.MyDestination = normalizeList(c.Rewrite.MyDestination)
	c.Rewrite.DefaultTransport = strings.TrimSpace(c.Rewrite.DefaultTransport)
	if c.Rewrite.DefaultTransport == "" {
		c.Rewrite.DefaultTransport = defaultTransport
	}
	c.Rewrite.LocalTransport = strings.TrimSpace(c.Rewrite.LocalTransport)
	if c.Rewrite.LocalTransport == "" {
		c.Rewrite.LocalTransport = defaultLocalTransport
	}
	c.Rewrite.RelayTransport = strings.TrimSpace(c.Rewrite.RelayTransport)
	if c.Rewrite.RelayTransport == "" {
		c.Rewrite.RelayTransport = c.Rewrite.DefaultTransport
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.MetricsBind = strings.TrimSpace(c.Logging.MetricsBind)
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
