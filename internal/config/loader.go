package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "eventcast.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	NatsURL    *string
}

// ParseFlags parses command-line arguments into CLIFlags.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("eventcast", flag.ContinueOnError)

	var (
		configPath, port, logLevel, natsURL string
	)
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var flags CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			flags.ConfigPath = &configPath
		case "port", "p":
			flags.Port = &port
		case "log-level":
			flags.LogLevel = &logLevel
		case "nats-url":
			flags.NatsURL = &natsURL
		}
	})
	return flags, nil
}

// LoadWithCLI loads configuration with CLI flags applied last. It returns the
// config and the YAML path that was used.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "EVENTCAST_PORT")
	setString(&cfg.Server.CORSOrigin, "EVENTCAST_CORS_ORIGIN")
	setString(&cfg.Server.StreamPath, "EVENTCAST_STREAM_PATH")
	setString(&cfg.Server.CookieName, "EVENTCAST_COOKIE_NAME")
	setDuration(&cfg.Server.WriteTimeout, "EVENTCAST_WRITE_TIMEOUT")
	setFloat(&cfg.Server.ConnectRate, "EVENTCAST_CONNECT_RATE")
	setInt(&cfg.Server.ConnectBurst, "EVENTCAST_CONNECT_BURST")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "EVENTCAST_NATS_STREAM")
	setStrings(&cfg.NATS.Subjects, "EVENTCAST_NATS_SUBJECTS")
	setString(&cfg.NATS.KVBucket, "EVENTCAST_NATS_KV_BUCKET")

	setDuration(&cfg.Broadcaster.HeartbeatInterval, "EVENTCAST_HEARTBEAT_INTERVAL")
	setInt(&cfg.Broadcaster.SendBuffer, "EVENTCAST_SEND_BUFFER")

	setString(&cfg.Auth.Mode, "EVENTCAST_AUTH_MODE")
	setString(&cfg.Auth.JWTSecret, "EVENTCAST_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "EVENTCAST_JWT_ISSUER")
	setString(&cfg.Auth.Audience, "EVENTCAST_JWT_AUDIENCE")
	setInt64(&cfg.Auth.CacheSize, "EVENTCAST_AUTH_CACHE_SIZE")
	setDuration(&cfg.Auth.CacheTTL, "EVENTCAST_AUTH_CACHE_TTL")
	setDuration(&cfg.Auth.SessionTTL, "EVENTCAST_SESSION_TTL")

	setString(&cfg.Logging.Level, "EVENTCAST_LOG_LEVEL")
	setString(&cfg.Logging.Service, "EVENTCAST_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "EVENTCAST_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "EVENTCAST_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "EVENTCAST_BREAKER_TIMEOUT")

	setBool(&cfg.OTel.Enabled, "EVENTCAST_OTEL_ENABLED")
	setString(&cfg.OTel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTel.Insecure, "EVENTCAST_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if !strings.HasPrefix(cfg.Server.StreamPath, "/") {
		return errors.New("server.stream_path must start with /")
	}
	if cfg.Server.ConnectRate < 0 {
		return errors.New("server.connect_rate must be >= 0")
	}
	if cfg.Server.ConnectRate > 0 && cfg.Server.ConnectBurst < 1 {
		return errors.New("server.connect_burst must be >= 1 when connect_rate is set")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.NATS.Stream == "" {
		return errors.New("nats.stream is required")
	}
	if cfg.Broadcaster.HeartbeatInterval <= 0 {
		return errors.New("broadcaster.heartbeat_interval must be > 0")
	}
	if cfg.Broadcaster.SendBuffer < 1 {
		return errors.New("broadcaster.send_buffer must be >= 1")
	}
	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required in jwt mode")
		}
	case AuthModeKV:
		if cfg.NATS.KVBucket == "" {
			return errors.New("nats.kv_bucket is required in kv mode")
		}
	default:
		return fmt.Errorf("auth.mode %q is not one of jwt, kv", cfg.Auth.Mode)
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated env value.
func setStrings(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
