package config

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devopin/agent/pkg/record"
)

// DefaultPath is the system-wide configuration location; a config.yaml in the
// working directory takes precedence during development.
const DefaultPath = "/etc/devopin-agent/config.yaml"

// Config is the devopin-agent configuration file.
type Config struct {
	SocketPath     string           `yaml:"socket_path"`
	SocketMode     string           `yaml:"socket_mode"`
	BackendURL     string           `yaml:"backend_url"`
	Interval       int              `yaml:"monitoring_interval"`
	CheckpointFile string           `yaml:"checkpoint_file"`
	FallbackDir    string           `yaml:"fallback_dir"`
	Services       []string         `yaml:"services"`
	Projects       []record.Project `yaml:"projects"`
}

// Resolve returns the config path to load: the explicit path if given, else a
// local config.yaml, else the system-wide file.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	return DefaultPath
}

// Load reads and decodes a config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = "/run/devopin-agent.sock"
	}
	if cfg.SocketMode == "" {
		cfg.SocketMode = "0666"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60
	}
	if cfg.CheckpointFile == "" {
		cfg.CheckpointFile = "/var/lib/devopin-agent/checkpoints.json"
	}
	if cfg.FallbackDir == "" {
		cfg.FallbackDir = ".local_results"
	}

	return cfg, nil
}

// Validate checks the configuration for structural correctness.
func Validate(cfg *Config) []error {
	var errs []error

	if _, err := strconv.ParseUint(cfg.SocketMode, 8, 32); err != nil {
		errs = append(errs, fmt.Errorf("socket_mode %q is not an octal mode", cfg.SocketMode))
	}
	for i, p := range cfg.Projects {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("project %d: name is required", i))
		}
		if p.Framework == "" {
			errs = append(errs, fmt.Errorf("project %q: framework is required", p.Name))
		}
		if p.LogPath == "" {
			errs = append(errs, fmt.Errorf("project %q: log_path is required", p.Name))
		}
	}

	return errs
}

// FileMode returns the socket permission bits. Validate guarantees the field
// parses; a zero mode is returned otherwise.
func (c *Config) FileMode() fs.FileMode {
	mode, err := strconv.ParseUint(c.SocketMode, 8, 32)
	if err != nil {
		return 0
	}
	return fs.FileMode(mode)
}

// PollInterval returns the monitoring interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
