// Package config loads the daemon's YAML configuration: BLE timeouts,
// the auto-connect loop's cadence, hub send deadlines, and the
// recording data root.
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// BLEConfig holds connection and scan timeouts.
type BLEConfig struct {
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"8s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"15s"`
	ScanCacheTTL   time.Duration `yaml:"scan_cache_ttl" default:"30s"`
}

// SupervisorConfig holds the auto-connect loop's cadence.
type SupervisorConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval" default:"15s"`
	ScanCacheRefresh  time.Duration `yaml:"scan_cache_refresh" default:"30s"`
	CooldownFailures  int           `yaml:"cooldown_failures" default:"3"`
	CooldownDuration  time.Duration `yaml:"cooldown_duration" default:"60s"`
}

// HubConfig holds the broadcaster's send deadlines.
type HubConfig struct {
	SendTimeout         time.Duration `yaml:"send_timeout" default:"1s"`
	PrioritySendTimeout time.Duration `yaml:"priority_send_timeout" default:"5s"`
}

// RecorderConfig holds session-recording defaults.
type RecorderConfig struct {
	DataRoot string `yaml:"data_root"`
	Format   string `yaml:"format" default:"json"` // "json" | "csv"
}

// Config is the daemon's full configuration.
type Config struct {
	AppName    string           `yaml:"app_name" default:"lxb"`
	LogLevel   string           `yaml:"log_level" default:"info"`
	BLE        BLEConfig        `yaml:"ble"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Hub        HubConfig        `yaml:"hub"`
	Recorder   RecorderConfig   `yaml:"recorder"`
}

// DefaultConfig returns the built-in defaults. Scalar and duration
// fields are populated from their `default` struct tags; DataRoot is
// platform-dependent so it's filled in after defaults.SetDefaults runs.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Recorder.DataRoot = DefaultDataRoot(cfg.AppName)
	return cfg
}

// Load reads a YAML file at path, applying DefaultConfig for any field
// the file leaves unset by unmarshaling on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if cfg.Recorder.DataRoot == "" {
		cfg.Recorder.DataRoot = DefaultDataRoot(cfg.AppName)
	}
	return cfg, nil
}

// NewLogger builds a *logrus.Logger from the configured level, exactly
// as pkg/config.Config.NewLogger does.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}

// DefaultDataRoot resolves the platform-dependent persistence path:
// macOS uses Application Support, Windows uses %APPDATA%,
// Linux uses a dotfile under $HOME, and any platform lacking a home
// directory falls back to a dev-mode relative path.
func DefaultDataRoot(appName string) string {
	switch runtime.GOOS {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return home + "/Library/Application Support/" + appName + "/temp_exports"
		}
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return appData + "/" + appName + "/temp_exports"
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return home + "/." + appName + "/temp_exports"
		}
	}
	return "./temp_exports"
}
