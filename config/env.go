package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// loadFromEnv overrides config from TASKSYNC_* environment variables.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("TASKSYNC_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("TASKSYNC_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("TASKSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TASKSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if err := envDuration("TASKSYNC_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := envBool("TASKSYNC_STRICT_NOT_FOUND", &cfg.StrictNotFound); err != nil {
		return err
	}

	if v := os.Getenv("TASKSYNC_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}

	if v := os.Getenv("TASKSYNC_POSTGRES_DSN"); v != "" {
		cfg.Store.Postgres.DSN = v
	}
	if err := envInt("TASKSYNC_POSTGRES_MAX_OPEN_CONNS", &cfg.Store.Postgres.MaxOpenConns); err != nil {
		return err
	}
	if err := envInt("TASKSYNC_POSTGRES_MAX_IDLE_CONNS", &cfg.Store.Postgres.MaxIdleConns); err != nil {
		return err
	}
	if err := envDuration("TASKSYNC_POSTGRES_CONN_MAX_LIFETIME", &cfg.Store.Postgres.ConnMaxLifetime); err != nil {
		return err
	}
	if err := envBool("TASKSYNC_POSTGRES_MIGRATE", &cfg.Store.Postgres.Migrate); err != nil {
		return err
	}

	if v := os.Getenv("TASKSYNC_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("TASKSYNC_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
	if err := envInt("TASKSYNC_REDIS_DB", &cfg.Store.Redis.DB); err != nil {
		return err
	}
	if v := os.Getenv("TASKSYNC_REDIS_PREFIX"); v != "" {
		cfg.Store.Redis.Prefix = v
	}

	if err := envInt("TASKSYNC_BROADCAST_BUFFER_SIZE", &cfg.Broadcast.BufferSize); err != nil {
		return err
	}
	if err := envDuration("TASKSYNC_BROADCAST_HEARTBEAT", &cfg.Broadcast.Heartbeat); err != nil {
		return err
	}

	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = i
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
