package main

import (
	"path/filepath"
	"strings"
	"testing"

	"spool/internal/config"
	"spool/internal/testsupport"
)

func TestConfigInitWritesLoadableSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "spool", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", nil)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	testsupport.AssertExists(t, target)

	if _, _, exists, err := config.Load(target); err != nil || !exists {
		t.Fatalf("Load(sample) exists=%v err=%v", exists, err)
	}

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", nil)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("second init err = %v, want already exists", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", nil); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHashedQueues(1, "deferred", "defer"))

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath, nil)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "hashed_queues\tdeferred,defer")
	requireContains(t, out, "rewrite_socket\t"+filepath.Join(env.cfg.Paths.SocketDir, "private", "rewrite"))
	requireContains(t, out, "Configuration valid")
}
