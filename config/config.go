package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds process settings. Rule flags are not part of it: they always
// start fully blocking and never touch disk.
type Config struct {
	Hook    HookConfig    `toml:"hook"`
	Control ControlConfig `toml:"control"`
	Tray    TrayConfig    `toml:"tray"`
	Journal JournalConfig `toml:"journal"`
	Log     LogConfig     `toml:"log"`
}

type HookConfig struct {
	StartupTimeoutMs  int  `toml:"startup_timeout_ms"`
	ShutdownTimeoutMs int  `toml:"shutdown_timeout_ms"`
	LockOnStart       bool `toml:"lock_on_start"`
}

type ControlConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

type TrayConfig struct {
	Enabled bool `toml:"enabled"`
}

type JournalConfig struct {
	Enabled       bool `toml:"enabled"`
	RetentionDays int  `toml:"retention_days"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultPort is the loopback port of the control API
const DefaultPort = 47380

// Default configuration
func defaultConfig() *Config {
	return &Config{
		Hook: HookConfig{
			StartupTimeoutMs:  2000,
			ShutdownTimeoutMs: 1000,
			LockOnStart:       false,
		},
		Control: ControlConfig{
			Enabled: true,
			Port:    DefaultPort,
		},
		Tray: TrayConfig{
			Enabled: false,
		},
		Journal: JournalConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

// ConfigDir returns the keyguard configuration directory, creating it if
// needed. KEYGUARD_CONFIG_DIR overrides the platform default.
func ConfigDir() (string, error) {
	dir := os.Getenv("KEYGUARD_CONFIG_DIR")
	if dir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate user config directory: %w", err)
		}
		dir = filepath.Join(base, "keyguard")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// ConfigPath returns the path to the configuration file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the configuration from the default path
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom loads the configuration from a TOML file.
// If the file doesn't exist, it creates it with default values.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := defaultConfig()
		if err := save(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	cfg := defaultConfig()
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// save writes the configuration to the TOML file
func save(path string, cfg *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Hook.StartupTimeoutMs <= 0 {
		return fmt.Errorf("hook.startup_timeout_ms must be positive")
	}
	if c.Hook.ShutdownTimeoutMs <= 0 {
		return fmt.Errorf("hook.shutdown_timeout_ms must be positive")
	}
	if c.Control.Port <= 0 || c.Control.Port > 65535 {
		return fmt.Errorf("control.port out of range: %d", c.Control.Port)
	}
	if c.Journal.RetentionDays < 0 {
		return fmt.Errorf("journal.retention_days must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	return nil
}

// StartupTimeout bounds the wait for the hook thread to install
func (h HookConfig) StartupTimeout() time.Duration {
	return time.Duration(h.StartupTimeoutMs) * time.Millisecond
}

// ShutdownTimeout bounds the wait for the hook thread to exit
func (h HookConfig) ShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeoutMs) * time.Millisecond
}

// ParseLevel maps a level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}
