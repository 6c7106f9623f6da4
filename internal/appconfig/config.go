// Package appconfig loads the user-level daemon policy settings: whether
// automatic update checks are enabled, how often they run, and whether the
// desktop "run in background" portal permission has already been requested
// (spec.md §4.8). The load/decode shape -- TOML via BurntSushi/toml, a
// Duration wrapper implementing encoding.TextUnmarshaler, defaults filled in
// before decode -- mirrors the
// teacher's pkg/config/load.go and pkg/config/duration.go.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration with TOML-friendly text (de)serialization.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("negative duration %q not allowed", s)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultPollInterval is the fallback tick period for the background daemon
// (spec.md §4.8: "sleeping a fixed short interval (default 3600 seconds)").
const DefaultPollInterval = 3600 * time.Second

// Config is the persisted user settings document.
type Config struct {
	// AutoCheckEnabled is the policy gate the background daemon consults
	// (spec.md §4.8: "if auto-check is disabled, exit immediately").
	AutoCheckEnabled bool `toml:"auto_check_enabled"`

	// CheckInterval is how often the daemon probes for updates once it has
	// decided a check is due.
	CheckInterval Duration `toml:"check_interval"`

	// LastCheck is the last time update_all() ran to completion, used by the
	// daemon to decide whether a tick is due.
	LastCheck time.Time `toml:"last_check"`

	// BackgroundPermissionAsked records whether the desktop portal
	// "background" permission request has already been made once for this
	// installation (spec.md §4.8).
	BackgroundPermissionAsked bool `toml:"background_permission_asked"`

	// LogLevel is "info" or "debug".
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns sensible defaults: auto-check on, hourly interval.
func DefaultConfig() *Config {
	return &Config{
		AutoCheckEnabled: true,
		CheckInterval:    Duration{DefaultPollInterval},
		LogLevel:         "info",
	}
}

// Load reads the settings document at path. A missing file is not an error:
// DefaultConfig() is returned instead, matching the teacher's
// config.LoadFromFile fallback-on-ENOENT behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path atomically (temp file in the same directory, then
// rename), matching the write discipline used throughout the teacher's
// pkg/daemon and pkg/cache packages.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".app-manager-config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config file: %w", err)
	}
	return nil
}
