package config

import (
	"flag"
	"time"
)

// flagValues holds parsed CLI flags until the lower layers are loaded.
type flagValues struct {
	configFile      string
	addr            string
	allowedOrigins  string
	logLevel        string
	logFormat       string
	shutdownTimeout time.Duration
	strictNotFound  bool
	backend         string
	postgresDSN     string
	migrate         bool
	redisAddr       string
	heartbeat       time.Duration
}

func defineFlags(fs *flag.FlagSet) *flagValues {
	fl := &flagValues{}

	fs.StringVar(&fl.configFile, "config", "", "Path to TOML config file")
	fs.StringVar(&fl.addr, "addr", DefaultAddr, "HTTP listen address")
	fs.StringVar(&fl.allowedOrigins, "allowed-origins", "*", "Comma-separated origins allowed to call the API")
	fs.StringVar(&fl.logLevel, "log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&fl.logFormat, "log-format", DefaultLogFormat, "Log format (text, json)")
	fs.DurationVar(&fl.shutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "Graceful shutdown timeout")
	fs.BoolVar(&fl.strictNotFound, "strict-not-found", false, "Answer updates of unknown tasks with 404")
	fs.StringVar(&fl.backend, "store", DefaultBackend, "Store backend (memory, postgres, redis)")
	fs.StringVar(&fl.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	fs.BoolVar(&fl.migrate, "migrate", false, "Apply SQL migrations on startup")
	fs.StringVar(&fl.redisAddr, "redis-addr", DefaultRedisAddr, "Redis address")
	fs.DurationVar(&fl.heartbeat, "heartbeat", DefaultHeartbeat, "Event stream keep-alive interval")

	return fl
}

// apply copies the flags the user set explicitly into cfg.
func (fl *flagValues) apply(cfg *Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = fl.addr
		case "allowed-origins":
			cfg.AllowedOrigins = splitList(fl.allowedOrigins)
		case "log-level":
			cfg.LogLevel = fl.logLevel
		case "log-format":
			cfg.LogFormat = fl.logFormat
		case "shutdown-timeout":
			cfg.ShutdownTimeout = fl.shutdownTimeout
		case "strict-not-found":
			cfg.StrictNotFound = fl.strictNotFound
		case "store":
			cfg.Store.Backend = fl.backend
		case "postgres-dsn":
			cfg.Store.Postgres.DSN = fl.postgresDSN
		case "migrate":
			cfg.Store.Postgres.Migrate = fl.migrate
		case "redis-addr":
			cfg.Store.Redis.Addr = fl.redisAddr
		case "heartbeat":
			cfg.Broadcast.Heartbeat = fl.heartbeat
		}
	})
}
