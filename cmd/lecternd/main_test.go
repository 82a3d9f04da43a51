package main

import (
	"context"
	"testing"

	"lectern/internal/logging"
	"lectern/internal/testsupport"
)

func TestBootstrapBuildsIdleDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	d, err := bootstrap(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer d.Close()

	status := d.Status(context.Background())
	if status.Running {
		t.Fatal("daemon should not run before Start")
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %q, want %q", status.LockFilePath, cfg.LockPath())
	}
	if status.Health.Total != 0 {
		t.Fatalf("expected empty catalog, got %+v", status.Health)
	}
}

func TestBootstrapRequiresAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.OpenAI.APIKey = ""
	if _, err := bootstrap(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected bootstrap to fail without an OpenAI key")
	}
}
