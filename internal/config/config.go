// Package config loads the monitor configuration from YAML with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// APIKey authenticates against the provider API. Not required in
	// mock mode.
	APIKey string `yaml:"api_key" env:"VAST_API_KEY"`

	// MachineIDs is the fixed set of machines to track. Machines the
	// provider reports outside this list are ignored entirely.
	MachineIDs []int `yaml:"machine_ids"`

	// StateDir holds the rental snapshot file and defaults next to the
	// config file.
	StateDir string `yaml:"state_dir"`

	// LogFile duplicates log output to a file when set.
	LogFile string `yaml:"log_file"`

	Monitor MonitorConfig `yaml:"monitor"`
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	Notify  NotifyConfig  `yaml:"notify"`
	Apprise AppriseConfig `yaml:"apprise"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// ErrorPingInterval throttles repeat error notifications while a
	// machine condition persists.
	ErrorPingInterval     time.Duration `yaml:"error_ping_interval"`
	FetchFailureThreshold int           `yaml:"fetch_failure_threshold"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port" env:"VAST_MONITOR_PORT"`
}

type HistoryConfig struct {
	// Path to the SQLite rental history database. Empty disables
	// history recording.
	Path string `yaml:"path"`
}

type NotifyConfig struct {
	// Enabled is the master toggle for system-level events.
	Enabled    bool `yaml:"enabled"`
	OnStart    bool `yaml:"on_start"`
	OnShutdown bool `yaml:"on_shutdown"`
	// OnStartupExisting emits the startup summary of sessions that
	// predate this process.
	OnStartupExisting bool `yaml:"on_startup_existing"`
}

type AppriseConfig struct {
	// ErrorMention is the fallback mention appended to error events on
	// discord targets without their own.
	ErrorMention string         `yaml:"error_mention"`
	Targets      []TargetConfig `yaml:"targets"`
}

type TargetConfig struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
	Service string `yaml:"service"`
	Mention string `yaml:"mention"`
	// Enabled defaults to true; nil means unset.
	Enabled *bool    `yaml:"enabled"`
	Events  []string `yaml:"events"`
}

// IsEnabled treats an unset enabled flag as true.
func (t TargetConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Load reads the YAML config, fills defaults, applies env overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		StateDir: filepath.Dir(path),
		Monitor: MonitorConfig{
			PollInterval:          60 * time.Second,
			ErrorPingInterval:     time.Hour,
			FetchFailureThreshold: 3,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Notify: NotifyConfig{
			Enabled:    true,
			OnStart:    true,
			OnShutdown: true,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.MachineIDs) == 0 {
		return fmt.Errorf("machine_ids must list at least one machine")
	}
	if c.Monitor.PollInterval < time.Second {
		return fmt.Errorf("monitor.poll_interval must be at least 1s")
	}
	return nil
}

// StatePath is the location of the persisted rental snapshot file.
func (c *Config) StatePath() string {
	return filepath.Join(c.StateDir, "rental_snapshot.json")
}

// Tracks reports whether a machine ID belongs to the monitor set.
func (c *Config) Tracks(machineID int) bool {
	for _, id := range c.MachineIDs {
		if id == machineID {
			return true
		}
	}
	return false
}
