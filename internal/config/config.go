// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads ollamaprovider configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	perrors "github.com/tombee/ollamaprovider/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Registry backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the complete ollamaprovider configuration.
type Config struct {
	Registry  RegistryConfig  `yaml:"registry"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// ProcessTimeout bounds every external process call (probe, spawn, kill).
	// Default: 5s
	ProcessTimeout time.Duration `yaml:"process_timeout"`

	// OperationTimeout bounds a whole lifecycle entry point so that host
	// shutdown never hangs.
	// Default: 15s
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	Journal JournalConfig `yaml:"journal"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Log     LogConfig     `yaml:"log"`
}

// RegistryConfig configures where client registrations are kept.
type RegistryConfig struct {
	// Backend selects the store: file, sqlite or memory.
	// Environment: OLLAMAPROVIDER_REGISTRY_BACKEND
	// Default: file
	Backend string `yaml:"backend"`

	// Path is the registry file (file backend) or database (sqlite backend).
	// Environment: OLLAMAPROVIDER_REGISTRY_PATH
	// Default: <tempdir>/ollamaprovider.lock, or <tempdir>/ollamaprovider.db for sqlite
	Path string `yaml:"path"`

	// Lock enables the advisory lock around read-modify-write cycles.
	// Default: true
	Lock bool `yaml:"lock"`

	// LockTimeout is how long a cycle waits for the advisory lock before
	// proceeding without it.
	// Default: 2s
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// DaemonConfig configures the managed daemon.
type DaemonConfig struct {
	// Command is the argv used to start the daemon.
	// Environment: OLLAMAPROVIDER_DAEMON_COMMAND (split on whitespace)
	// Default: [ollama, serve]
	Command []string `yaml:"command"`

	// Executables are the process names terminated on teardown. The first
	// entry is the one probed to decide whether the daemon is running.
	// Default: [ollama, ollama_llama_server]
	Executables []string `yaml:"executables"`

	// LogFile receives the daemon's stdout and stderr. Empty discards them.
	LogFile string `yaml:"log_file,omitempty"`
}

// ReconcileConfig configures the periodic reconciliation.
type ReconcileConfig struct {
	// Interval between periodic reconciliations.
	// Environment: OLLAMAPROVIDER_RECONCILE_INTERVAL
	// Default: 30s
	Interval time.Duration `yaml:"interval"`

	// Watch triggers an early reconciliation when the registry changes on disk.
	// Default: false
	Watch bool `yaml:"watch"`

	// Reassert re-registers this client on each tick when its entry was lost.
	// Default: true
	Reassert bool `yaml:"reassert"`
}

// JournalConfig configures the JSON-lines lifecycle journal.
type JournalConfig struct {
	// Enabled turns the journal on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path of the journal file.
	// Default: <tempdir>/ollamaprovider-journal.jsonl
	Path string `yaml:"path,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint of the run command.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled installs a tracer provider with the stdout exporter.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Output is a file path or "stderr".
	// Default: stderr
	Output string `yaml:"output,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is json or text.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			Backend:     BackendFile,
			Lock:        true,
			LockTimeout: 2 * time.Second,
		},
		Daemon: DaemonConfig{
			Command:     []string{"ollama", "serve"},
			Executables: []string{"ollama", "ollama_llama_server"},
		},
		Reconcile: ReconcileConfig{
			Interval: 30 * time.Second,
			Reassert: true,
		},
		ProcessTimeout:   5 * time.Second,
		OperationTimeout: 15 * time.Second,
		Journal: JournalConfig{
			Path: DefaultJournalPath(),
		},
		Tracing: TracingConfig{
			Output: "stderr",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables take precedence over file-based configuration.
// If configPath is empty the XDG config file is used when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			configPath = p
		}
	}

	if configPath != "" {
		err := cfg.loadFromFile(configPath)
		switch {
		case err == nil:
		case !explicit && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, &perrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.loadFromEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("OLLAMAPROVIDER_REGISTRY_BACKEND"); val != "" {
		c.Registry.Backend = strings.ToLower(val)
	}
	if val := os.Getenv("OLLAMAPROVIDER_REGISTRY_PATH"); val != "" {
		c.Registry.Path = val
	}
	if val := os.Getenv("OLLAMAPROVIDER_RECONCILE_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Reconcile.Interval = d
		}
	}
	if val := os.Getenv("OLLAMAPROVIDER_DAEMON_COMMAND"); val != "" {
		c.Daemon.Command = strings.Fields(val)
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// applyDefaults fills values that depend on other settings.
func (c *Config) applyDefaults() {
	if c.Registry.Path == "" {
		switch c.Registry.Backend {
		case BackendSQLite:
			c.Registry.Path = DefaultSQLitePath()
		default:
			c.Registry.Path = DefaultRegistryPath()
		}
	}
	if c.Journal.Path == "" {
		c.Journal.Path = DefaultJournalPath()
	}
	if c.Tracing.Output == "" {
		c.Tracing.Output = "stderr"
	}
}

// Validate checks that the configuration is valid. The first problem found
// is returned as a *errors.ConfigError.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return &perrors.ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
	}

	switch c.Registry.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return invalid("registry.backend", "must be one of [file, sqlite, memory], got %q", c.Registry.Backend)
	}
	if c.Registry.Backend != BackendMemory && c.Registry.Path == "" {
		return invalid("registry.path", "must not be empty")
	}
	if c.Registry.Lock && c.Registry.LockTimeout <= 0 {
		return invalid("registry.lock_timeout", "must be positive, got %v", c.Registry.LockTimeout)
	}
	if len(c.Daemon.Command) == 0 || c.Daemon.Command[0] == "" {
		return invalid("daemon.command", "must name an executable")
	}
	if len(c.Daemon.Executables) == 0 {
		return invalid("daemon.executables", "must list at least one process name")
	}
	for _, name := range c.Daemon.Executables {
		if strings.TrimSpace(name) == "" {
			return invalid("daemon.executables", "must not contain empty names")
		}
	}
	if c.Reconcile.Interval <= 0 {
		return invalid("reconcile.interval", "must be positive, got %v", c.Reconcile.Interval)
	}
	if c.ProcessTimeout <= 0 {
		return invalid("process_timeout", "must be positive, got %v", c.ProcessTimeout)
	}
	if c.OperationTimeout <= 0 {
		return invalid("operation_timeout", "must be positive, got %v", c.OperationTimeout)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		return invalid("log.level", "must be one of [trace, debug, info, warn, error], got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be one of [json, text], got %q", c.Log.Format)
	}
	return nil
}
