// Package config loads notesync settings from notesync.toml, NOTESYNC_*
// environment variables and built-in defaults, in increasing precedence
// defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/notesync/notesync/internal/engine"
	"github.com/notesync/notesync/internal/logging"
)

const (
	// Name is the config file base name and the XDG directory name.
	Name = "notesync"

	// FileName is the config file searched for in "." and the XDG config home.
	FileName = Name + ".toml"

	// EnvPrefix prefixes environment overrides, e.g. NOTESYNC_SYNC_DEBOUNCE.
	EnvPrefix = "NOTESYNC"
)

// Config is the complete notesync configuration.
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Server    ServerConfig    `mapstructure:"server"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`

	// File is the config file that was read, empty when none was found
	File string `mapstructure:"-"`
}

// RemoteConfig locates the note API used by the client commands.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Debounce        time.Duration `mapstructure:"debounce"`
	SwitchOnFailure string        `mapstructure:"switch_on_failure"`
}

// ServerConfig configures `notesync serve`.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	DB   string `mapstructure:"db"`
}

// DashboardConfig configures the sync dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// WorkspaceConfig locates the note files an edit session watches.
type WorkspaceConfig struct {
	Dir string `mapstructure:"dir"`
}

var defaults = map[string]interface{}{
	"remote.url":             "http://localhost:8080",
	"remote.timeout":         "20s",
	"sync.debounce":          "1s",
	"sync.switch_on_failure": string(engine.SwitchProceed),
	"server.addr":            ":8080",
	"server.db":              "notesync.db",
	"dashboard.port":         8090,
	"log.file":               "",
	"log.level":              "info",
	"log.json":               false,
	"nats.url":               "",
	"workspace.dir":          "notes",
}

// Load reads configuration. When path is empty the config file is searched
// for in the working directory and then the XDG config home; a missing file
// is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, Name))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later and far away.
func (c *Config) Validate() error {
	if c.Sync.Debounce <= 0 {
		return fmt.Errorf("sync.debounce must be positive (got %s)", c.Sync.Debounce)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive (got %s)", c.Remote.Timeout)
	}
	if _, err := engine.ParseSwitchPolicy(c.Sync.SwitchOnFailure); err != nil {
		return fmt.Errorf("sync.switch_on_failure: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	return nil
}

// EngineConfig returns the sync engine settings.
func (c *Config) EngineConfig() *engine.Config {
	policy, _ := engine.ParseSwitchPolicy(c.Sync.SwitchOnFailure)
	return &engine.Config{
		Debounce:        c.Sync.Debounce,
		SwitchOnFailure: policy,
	}
}

// LoggingConfig returns the logger settings.
func (c *Config) LoggingConfig() *logging.Config {
	return &logging.Config{
		Level: c.Log.Level,
		JSON:  c.Log.JSON,
		File:  c.Log.File,
	}
}

// fileLayout is the on-disk shape written by WriteDefault. Durations are
// strings so the file reads "1s" rather than nanoseconds.
type fileLayout struct {
	Remote struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"remote"`
	Sync struct {
		Debounce        string `toml:"debounce"`
		SwitchOnFailure string `toml:"switch_on_failure"`
	} `toml:"sync"`
	Server struct {
		Addr string `toml:"addr"`
		DB   string `toml:"db"`
	} `toml:"server"`
	Dashboard struct {
		Port int `toml:"port"`
	} `toml:"dashboard"`
	Log struct {
		File  string `toml:"file"`
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
	NATS struct {
		URL string `toml:"url"`
	} `toml:"nats"`
	Workspace struct {
		Dir string `toml:"dir"`
	} `toml:"workspace"`
}

func defaultLayout() fileLayout {
	var f fileLayout
	f.Remote.URL = defaults["remote.url"].(string)
	f.Remote.Timeout = defaults["remote.timeout"].(string)
	f.Sync.Debounce = defaults["sync.debounce"].(string)
	f.Sync.SwitchOnFailure = defaults["sync.switch_on_failure"].(string)
	f.Server.Addr = defaults["server.addr"].(string)
	f.Server.DB = defaults["server.db"].(string)
	f.Dashboard.Port = defaults["dashboard.port"].(int)
	f.Log.Level = defaults["log.level"].(string)
	f.Workspace.Dir = defaults["workspace.dir"].(string)
	return f
}

// DefaultPath is where `config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, Name, FileName)
}

// WriteDefault writes a config file holding the defaults. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# notesync configuration\n# Environment variables %s_<SECTION>_<KEY> override these values.\n\n", EnvPrefix); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(defaultLayout()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return f.Close()
}
