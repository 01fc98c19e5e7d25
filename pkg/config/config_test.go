package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "services: [nginx]\n"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SocketPath != "/run/devopin-agent.sock" {
		t.Errorf("socket_path = %q", cfg.SocketPath)
	}
	if cfg.SocketMode != "0666" {
		t.Errorf("socket_mode = %q", cfg.SocketMode)
	}
	if cfg.Interval != 60 {
		t.Errorf("monitoring_interval = %d", cfg.Interval)
	}
	if cfg.CheckpointFile != "/var/lib/devopin-agent/checkpoints.json" {
		t.Errorf("checkpoint_file = %q", cfg.CheckpointFile)
	}
	if cfg.FallbackDir != ".local_results" {
		t.Errorf("fallback_dir = %q", cfg.FallbackDir)
	}
	if len(cfg.Services) != 1 || cfg.Services[0] != "nginx" {
		t.Errorf("services = %v", cfg.Services)
	}
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
socket_path: /tmp/agent.sock
socket_mode: "0600"
backend_url: http://localhost:8000
monitoring_interval: 30
checkpoint_file: /tmp/cp.json
fallback_dir: /tmp/results
services:
  - nginx
  - postgresql
projects:
  - name: shop
    framework_type: laravel
    log_path: /var/www/shop/storage/logs
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.SocketPath != "/tmp/agent.sock" || cfg.BackendURL != "http://localhost:8000" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.PollInterval(); got != 30*time.Second {
		t.Errorf("PollInterval() = %v", got)
	}
	if got := cfg.FileMode(); got != 0o600 {
		t.Errorf("FileMode() = %o", got)
	}
	if len(cfg.Projects) != 1 {
		t.Fatalf("projects = %v", cfg.Projects)
	}
	p := cfg.Projects[0]
	if p.Name != "shop" || p.Framework != "laravel" || p.LogPath != "/var/www/shop/storage/logs" {
		t.Errorf("project = %+v", p)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate: %v", errs)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "socket_path: [unterminated\n")); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestValidateErrors(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
socket_mode: "banana"
projects:
  - name: ""
    framework_type: ""
    log_path: ""
`))
	if err != nil {
		t.Fatal(err)
	}

	errs := Validate(cfg)
	if len(errs) != 4 {
		t.Fatalf("got %d errors: %v", len(errs), errs)
	}
}

func TestResolveExplicit(t *testing.T) {
	if got := Resolve("/etc/custom.yaml"); got != "/etc/custom.yaml" {
		t.Errorf("Resolve = %q", got)
	}
}
