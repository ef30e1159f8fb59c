package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateIPC(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.QueueDir) == "" {
		return errors.New("paths.queue_dir must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.HashQueueDepth < 1 || c.Queue.HashQueueDepth > maxHashQueueDepth {
		return fmt.Errorf("queue.hash_queue_depth must be between 1 and %d", maxHashQueueDepth)
	}
	for _, name := range c.Queue.HashQueueNames {
		if !isAlnum(name) {
			return fmt.Errorf("queue.hash_queue_names: %q is not a valid queue name", name)
		}
	}
	return ensurePositiveMap(map[string]int{
		"queue.create_retry_delay_seconds": c.Queue.CreateRetryDelaySeconds,
		"queue.max_collisions":             c.Queue.MaxCollisions,
	})
}

func (c *Config) validateIPC() error {
	if err := ensurePositiveMap(map[string]int{
		"ipc.idle_timeout_seconds": c.IPC.IdleTimeoutSeconds,
		"ipc.ttl_seconds":          c.IPC.TTLSeconds,
		"ipc.retry_base_delay_ms":  c.IPC.RetryBaseDelayMS,
		"ipc.retry_max_delay_ms":   c.IPC.RetryMaxDelayMS,
	}); err != nil {
		return err
	}
	if c.IPC.RetryAttempts < 0 {
		return errors.New("ipc.retry_attempts must be >= 0")
	}
	if c.IPC.RetryMaxDelayMS < c.IPC.RetryBaseDelayMS {
		return errors.New("ipc.retry_max_delay_ms must be >= ipc.retry_base_delay_ms")
	}
	class, name := c.RewriteServiceName()
	if !isAlnum(class) || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("ipc.rewrite_service must look like class/name, got %q", c.IPC.RewriteService)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func isAlnum(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
