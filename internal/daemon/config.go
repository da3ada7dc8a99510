// Package daemon manages the wake boost daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/infra/cpufreq"
)

// Config holds all daemon configuration.
type Config struct {
	Boost     BoostConfig     `toml:"boost"`
	CPUFreq   CPUFreqConfig   `toml:"cpufreq"`
	Display   DisplayConfig   `toml:"display"`
	API       APIConfig       `toml:"api"`
	Journal   JournalConfig   `toml:"journal"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// BoostConfig controls the boost controller and its work queue.
type BoostConfig struct {
	DefaultMS      uint32 `toml:"default_ms"`
	HighPriority   bool   `toml:"high_priority"`
	StrictPriority bool   `toml:"strict_priority"`
}

// CPUFreqConfig locates the cpufreq sysfs tree.
type CPUFreqConfig struct {
	SysfsRoot      string `toml:"sysfs_root"`
	ResyncInterval string `toml:"resync_interval"`
}

// DisplayConfig selects where display transitions come from.
type DisplayConfig struct {
	Source       string `toml:"source"` // "sysfs" or "none"
	Path         string `toml:"path"`
	Mode         string `toml:"mode"` // "bl_power" or "brightness"
	PollInterval string `toml:"poll_interval"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// JournalConfig controls the boost cycle journal.
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
	Retain  int  `toml:"retain"`
}

// TelemetryConfig controls metrics and health checks.
type TelemetryConfig struct {
	Prometheus     bool   `toml:"prometheus"`
	HealthInterval string `toml:"health_interval"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level     string `toml:"level"`
	File      string `toml:"file"`
	MaxSizeMB int    `toml:"max_size_mb"`
	MaxFiles  int    `toml:"max_files"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Boost: BoostConfig{
			DefaultMS:    uint32(domain.DefaultBoostDuration.Milliseconds()),
			HighPriority: true,
		},
		CPUFreq: CPUFreqConfig{
			SysfsRoot:      cpufreq.DefaultSysfsRoot,
			ResyncInterval: "0s",
		},
		Display: DisplayConfig{
			Source:       "sysfs",
			Mode:         "bl_power",
			PollInterval: "100ms",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9743,
		},
		Journal: JournalConfig{
			Enabled: true,
			Retain:  1000,
		},
		Telemetry: TelemetryConfig{
			HealthInterval: "30s",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// Validate rejects values the daemon cannot run with.
func (c Config) Validate() error {
	switch c.Display.Source {
	case "sysfs", "none":
	default:
		return fmt.Errorf("%w: display.source %q (want sysfs or none)", domain.ErrInvalidInput, c.Display.Source)
	}
	switch c.Display.Mode {
	case "", "bl_power", "brightness":
	default:
		return fmt.Errorf("%w: display.mode %q (want bl_power or brightness)", domain.ErrInvalidInput, c.Display.Mode)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d", domain.ErrInvalidInput, c.API.Port)
	}
	for name, v := range map[string]string{
		"cpufreq.resync_interval":   c.CPUFreq.ResyncInterval,
		"display.poll_interval":     c.Display.PollInterval,
		"telemetry.health_interval": c.Telemetry.HealthInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, name, v)
		}
	}
	return nil
}

// ConfigPath returns the location of config.toml.
func ConfigPath() string {
	return filepath.Join(wakeboostHome(), "config.toml")
}

// LoadConfig reads config from ~/.wakeboost/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(ConfigPath())
}

// LoadConfigFile reads config from path, falling back to defaults when
// the file does not exist.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.wakeboost/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// wakeboostHome returns the wake boost data directory.
func wakeboostHome() string {
	if env := os.Getenv("WAKEBOOST_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wakeboost")
}

// WakeboostHome is exported for use by other packages.
func WakeboostHome() string {
	return wakeboostHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
