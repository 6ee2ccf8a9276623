package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8100" {
		t.Errorf("server.address = %s", cfg.Server.Address)
	}
	if cfg.Transport.Mode != "stdio" {
		t.Errorf("transport.mode = %s", cfg.Transport.Mode)
	}
	if cfg.Transport.Timeout != 30*time.Second {
		t.Errorf("transport.timeout = %v", cfg.Transport.Timeout)
	}
	if cfg.Store.AllowWrite {
		t.Error("store.allow_write should default to false")
	}
	if cfg.Store.RowLimit != 1000 {
		t.Errorf("store.row_limit = %d", cfg.Store.RowLimit)
	}
	if cfg.Classifier.Threshold != 0.1 {
		t.Errorf("classifier.threshold = %v", cfg.Classifier.Threshold)
	}
	if cfg.Workflow.MaxWorkers != 4 {
		t.Errorf("workflow.max_workers = %d", cfg.Workflow.MaxWorkers)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	content := []byte(`
server:
  address: ":9000"
transport:
  mode: tcp
  host: 10.0.0.5
  port: 9200
store:
  allow_write: true
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("server.address = %s", cfg.Server.Address)
	}
	if cfg.Transport.Mode != "tcp" {
		t.Errorf("transport.mode = %s", cfg.Transport.Mode)
	}
	if got := cfg.Transport.Addr(); got != "10.0.0.5:9200" {
		t.Errorf("transport addr = %s", got)
	}
	if !cfg.Store.AllowWrite {
		t.Error("store.allow_write not applied")
	}
	// Untouched keys keep their defaults.
	if cfg.Store.RowLimit != 1000 {
		t.Errorf("store.row_limit = %d", cfg.Store.RowLimit)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Transport.Mode = "smoke-signals"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for bad transport mode")
	}

	cfg = base()
	cfg.Classifier.Threshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range threshold")
	}

	cfg = base()
	cfg.Store.RowLimit = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero row limit")
	}

	cfg = base()
	cfg.Workflow.MaxWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}
}
