// Package config loads tasksync server configuration.
//
// Sources are applied in priority order:
//  1. Defaults
//  2. TOML config file (-config flag, TASKSYNC_CONFIG, or ./tasksync.toml)
//  3. TASKSYNC_* environment variables
//  4. CLI flags that were set explicitly
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Default values.
const (
	DefaultAddr            = ":3000"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBackend         = BackendMemory
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "tasksync:"
	DefaultBufferSize      = 64
	DefaultHeartbeat       = 25 * time.Second
	DefaultConfigFile      = "tasksync.toml"
)

// Config is the server configuration.
type Config struct {
	Addr            string        `toml:"addr"`
	AllowedOrigins  []string      `toml:"allowed_origins"`
	LogLevel        string        `toml:"log_level"`
	LogFormat       string        `toml:"log_format"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	StrictNotFound  bool          `toml:"strict_not_found"`

	Store     StoreConfig     `toml:"store"`
	Broadcast BroadcastConfig `toml:"broadcast"`

	// File is the config file that was loaded, if any.
	File string `toml:"-"`
}

// StoreConfig selects and configures the task store.
type StoreConfig struct {
	Backend  string         `toml:"backend"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN             string        `toml:"dsn"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	Migrate         bool          `toml:"migrate"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// BroadcastConfig configures delivery to observers.
type BroadcastConfig struct {
	BufferSize int           `toml:"buffer_size"`
	Heartbeat  time.Duration `toml:"heartbeat"`
}

// Load builds the configuration from defaults, the config file, the
// environment and args. fs may be nil.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if fs == nil {
		fs = flag.NewFlagSet("tasksync", flag.ContinueOnError)
	}
	fl := defineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	path, explicit := configFilePath(fl.configFile)
	if path != "" {
		if err := loadConfigFile(cfg, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else {
			cfg.File = path
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	fl.apply(cfg, fs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Addr = DefaultAddr
	cfg.AllowedOrigins = []string{"*"}
	cfg.LogLevel = DefaultLogLevel
	cfg.LogFormat = DefaultLogFormat
	cfg.ShutdownTimeout = DefaultShutdownTimeout
	cfg.Store.Backend = DefaultBackend
	cfg.Store.Postgres.MaxOpenConns = 10
	cfg.Store.Postgres.MaxIdleConns = 5
	cfg.Store.Postgres.ConnMaxLifetime = 5 * time.Minute
	cfg.Store.Redis.Addr = DefaultRedisAddr
	cfg.Store.Redis.Prefix = DefaultRedisPrefix
	cfg.Broadcast.BufferSize = DefaultBufferSize
	cfg.Broadcast.Heartbeat = DefaultHeartbeat
}

// configFilePath resolves the config file. explicit reports whether the
// file was named by the user and so must exist.
func configFilePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if v := os.Getenv("TASKSYNC_CONFIG"); v != "" {
		return v, true
	}
	return DefaultConfigFile, false
}

func loadConfigFile(cfg *Config, path string) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.Broadcast.BufferSize <= 0 {
		return fmt.Errorf("broadcast.buffer_size must be positive, got %d", c.Broadcast.BufferSize)
	}
	if c.Broadcast.Heartbeat <= 0 {
		return fmt.Errorf("broadcast.heartbeat must be positive, got %s", c.Broadcast.Heartbeat)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
