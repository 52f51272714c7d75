package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/labelhub/pkg/database"
	"github.com/JaimeStill/labelhub/pkg/events"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvLabelhubEnv             = "LABELHUB_ENV"
	EnvLabelhubShutdownTimeout = "LABELHUB_SHUTDOWN_TIMEOUT"
	EnvLabelhubVersion         = "LABELHUB_VERSION"
	EnvLabelhubLogLevel        = "LABELHUB_LOG_LEVEL"
)

var databaseEnv = &database.Env{
	Host:            "LABELHUB_DB_HOST",
	Port:            "LABELHUB_DB_PORT",
	Name:            "LABELHUB_DB_NAME",
	User:            "LABELHUB_DB_USER",
	Password:        "LABELHUB_DB_PASSWORD",
	SSLMode:         "LABELHUB_DB_SSL_MODE",
	ApplicationName: "LABELHUB_DB_APPLICATION_NAME",
	MaxOpenConns:    "LABELHUB_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "LABELHUB_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "LABELHUB_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "LABELHUB_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "LABELHUB_STORAGE_CONTAINER_NAME",
	ConnectionString: "LABELHUB_STORAGE_CONNECTION_STRING",
	AccountURL:       "LABELHUB_STORAGE_ACCOUNT_URL",
}

var messagingEnv = &events.Env{
	URL:  "LABELHUB_NATS_URL",
	Name: "LABELHUB_NATS_NAME",
}

// Config is the root configuration for the labelhub service.
type Config struct {
	Server          ServerConfig       `toml:"server"`
	Database        database.Config    `toml:"database"`
	Storage         storage.Config     `toml:"storage"`
	API             APIConfig          `toml:"api"`
	Auth            AuthConfig         `toml:"auth"`
	Messaging       events.Config      `toml:"messaging"`
	Scheduler       SchedulerConfig    `toml:"scheduler"`
	Selection       SelectionConfig    `toml:"selection"`
	Requirements    RequirementsConfig `toml:"requirements"`
	LogLevel        string             `toml:"log_level"`
	ShutdownTimeout string             `toml:"shutdown_timeout"`
	Version         string             `toml:"version"`
}

// Env returns the LABELHUB_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvLabelhubEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Auth.Merge(&overlay.Auth)
	c.Messaging.Merge(&overlay.Messaging)
	c.Scheduler.Merge(&overlay.Scheduler)
	c.Selection.Merge(&overlay.Selection)
	c.Requirements.Merge(&overlay.Requirements)
}

// Finalize applies defaults, environment overrides, and validation to the
// root config and every section.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Auth.Finalize(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Messaging.Finalize(messagingEnv); err != nil {
		return fmt.Errorf("messaging: %w", err)
	}
	if err := c.Scheduler.Finalize(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.Selection.Finalize(); err != nil {
		return fmt.Errorf("selection: %w", err)
	}
	if err := c.Requirements.Finalize(); err != nil {
		return fmt.Errorf("requirements: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvLabelhubLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLabelhubShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvLabelhubVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvLabelhubEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
