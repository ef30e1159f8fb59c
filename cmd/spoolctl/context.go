package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"spool/internal/config"
	"spool/internal/dict"
	"spool/internal/logging"
	"spool/internal/mailqueue"
	"spool/internal/resolve"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logger   *slog.Logger
	registry *dict.Registry
	client   *resolve.Client
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg, "spoolctl")
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) store() (*mailqueue.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return mailqueue.NewFromConfig(cfg, c.logger), nil
}

func (c *commandContext) dictRegistry() *dict.Registry {
	if c.registry == nil {
		c.registry = dict.NewRegistry(c.logger)
	}
	return c.registry
}

func (c *commandContext) rewriteClient() (*resolve.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.client == nil {
		c.client = resolve.NewFromConfig(cfg, c.logger)
	}
	return c.client, nil
}

func (c *commandContext) close() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	if c.registry != nil {
		_ = c.registry.Close()
		c.registry = nil
	}
}

func wrapServiceError(err error, service string, timeout time.Duration) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("contact %s: no answer within %s; verify rewrited is running", service, timeout)
	default:
		return fmt.Errorf("contact %s: %w", service, err)
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
