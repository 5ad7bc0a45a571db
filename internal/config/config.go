// Package config provides hierarchical configuration loading for eventcast.
// Precedence: defaults < YAML file < environment variables < CLI flags.
package config

import "time"

// Config holds all runtime configuration for the eventcast service.
type Config struct {
	Server      Server      `yaml:"server"`
	NATS        NATS        `yaml:"nats"`
	Broadcaster Broadcaster `yaml:"broadcaster"`
	Auth        Auth        `yaml:"auth"`
	Logging     Logging     `yaml:"logging"`
	Breaker     Breaker     `yaml:"breaker"`
	OTel        OTel        `yaml:"otel"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port         string        `yaml:"port"`
	CORSOrigin   string        `yaml:"cors_origin"`
	StreamPath   string        `yaml:"stream_path"`
	CookieName   string        `yaml:"cookie_name"`
	WriteTimeout time.Duration `yaml:"write_timeout"` // non-streaming routes only
	ConnectRate  float64       `yaml:"connect_rate"`  // stream connects per second per IP, 0 disables
	ConnectBurst int           `yaml:"connect_burst"`
}

// NATS holds NATS JetStream configuration for the event log.
type NATS struct {
	URL      string   `yaml:"url"`
	Stream   string   `yaml:"stream"`
	Subjects []string `yaml:"subjects"`
	KVBucket string   `yaml:"kv_bucket"` // credential bucket for auth mode "kv"
}

// Broadcaster holds fan-out and liveness configuration.
type Broadcaster struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SendBuffer        int           `yaml:"send_buffer"` // frames buffered per session before drop-and-close
}

// Auth modes.
const (
	AuthModeJWT = "jwt"
	AuthModeKV  = "kv"
)

// Auth holds credential resolution configuration.
type Auth struct {
	Mode       string        `yaml:"mode"` // "jwt" | "kv"
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	CacheSize  int64         `yaml:"cache_size_bytes"` // 0 disables the principal cache
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	SessionTTL time.Duration `yaml:"session_ttl"` // used when a credential carries no expiry
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for remote credential lookups.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// OTel holds OpenTelemetry export configuration.
type OTel struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:         "8080",
			CORSOrigin:   "*",
			StreamPath:   "/stream",
			CookieName:   "eventcast_token",
			WriteTimeout: 30 * time.Second,
			ConnectRate:  2,
			ConnectBurst: 10,
		},
		NATS: NATS{
			URL:      "nats://localhost:4222",
			Stream:   "EVENTS",
			Subjects: []string{"events.>"},
			KVBucket: "eventcast_credentials",
		},
		Broadcaster: Broadcaster{
			HeartbeatInterval: 20 * time.Second,
			SendBuffer:        256,
		},
		Auth: Auth{
			Mode:       AuthModeJWT,
			JWTSecret:  "eventcast-dev-secret-change-me",
			CacheSize:  8 << 20,
			CacheTTL:   time.Minute,
			SessionTTL: 12 * time.Hour,
		},
		Logging: Logging{
			Level:   "info",
			Service: "eventcast",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		OTel: OTel{
			Endpoint: "localhost:4317",
			Insecure: true,
		},
	}
}
