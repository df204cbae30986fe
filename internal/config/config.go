package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuffmon/cuffmon/internal/session"
)

// Config holds all application configuration.
type Config struct {
	Measurement MeasurementConfig `yaml:"measurement"`
	Connect     ConnectConfig     `yaml:"connect"`
	Store       StoreConfig       `yaml:"store"`
	Server      ServerConfig      `yaml:"server"`
	LogLevel    string            `yaml:"log_level"`
}

// MeasurementConfig holds session defaults.
type MeasurementConfig struct {
	Mode         string `yaml:"mode"`          // "single" or "average3"
	DelaySeconds int    `yaml:"delay_seconds"` // delay between averaged runs
}

// ConnectConfig holds connection settings.
type ConnectConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// StoreConfig holds reading-log settings.
type StoreConfig struct {
	Dir string `yaml:"dir"` // empty means the default XDG state path
}

// ServerConfig holds the optional WebSocket observer endpoint.
type ServerConfig struct {
	Listen string `yaml:"listen"` // empty disables the server
}

// validDelays are the selectable inter-run delays.
var validDelays = map[int]bool{15: true, 30: true, 45: true, 60: true}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cuffmon")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Measurement: MeasurementConfig{
			Mode:         "single",
			DelaySeconds: 15,
		},
		Connect: ConnectConfig{
			TimeoutSeconds: 30,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults. Tilde (~) in the store dir is expanded to the user's home
// directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Store.Dir = expandTilde(cfg.Store.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if _, ok := session.ParseMode(c.Measurement.Mode); !ok {
		return fmt.Errorf("measurement.mode must be \"single\" or \"average3\", got %q", c.Measurement.Mode)
	}

	if !validDelays[c.Measurement.DelaySeconds] {
		return fmt.Errorf("measurement.delay_seconds must be 15, 30, 45 or 60, got %d", c.Measurement.DelaySeconds)
	}

	if c.Connect.TimeoutSeconds <= 0 {
		return fmt.Errorf("connect.timeout_seconds must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Mode returns the configured measurement mode.
func (c *Config) Mode() session.Mode {
	m, _ := session.ParseMode(c.Measurement.Mode)
	return m
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
