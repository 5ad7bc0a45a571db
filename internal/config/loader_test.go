package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.StreamPath != "/stream" {
		t.Errorf("expected stream path /stream, got %s", cfg.Server.StreamPath)
	}
	if cfg.Broadcaster.HeartbeatInterval != 20*time.Second {
		t.Errorf("expected heartbeat 20s, got %v", cfg.Broadcaster.HeartbeatInterval)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
broadcaster:
  heartbeat_interval: 5s
  send_buffer: 16
nats:
  subjects: ["opencti.>", "audit.>"]
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Broadcaster.HeartbeatInterval != 5*time.Second {
		t.Errorf("expected heartbeat 5s, got %v", cfg.Broadcaster.HeartbeatInterval)
	}
	if cfg.Broadcaster.SendBuffer != 16 {
		t.Errorf("expected send buffer 16, got %d", cfg.Broadcaster.SendBuffer)
	}
	if len(cfg.NATS.Subjects) != 2 || cfg.NATS.Subjects[1] != "audit.>" {
		t.Errorf("unexpected subjects: %v", cfg.NATS.Subjects)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Error("expected parse error for malformed YAML")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("EVENTCAST_PORT", "7070")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("EVENTCAST_NATS_SUBJECTS", "a.>, b.>")
	t.Setenv("EVENTCAST_SEND_BUFFER", "64")
	t.Setenv("EVENTCAST_LOG_LEVEL", "warn")
	t.Setenv("EVENTCAST_HEARTBEAT_INTERVAL", "1m")
	t.Setenv("EVENTCAST_AUTH_MODE", "kv")
	t.Setenv("EVENTCAST_LOG_ASYNC", "true")
	t.Setenv("EVENTCAST_CONNECT_RATE", "0.5")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("expected env NATS URL, got %s", cfg.NATS.URL)
	}
	if len(cfg.NATS.Subjects) != 2 || cfg.NATS.Subjects[0] != "a.>" || cfg.NATS.Subjects[1] != "b.>" {
		t.Errorf("unexpected subjects: %v", cfg.NATS.Subjects)
	}
	if cfg.Broadcaster.SendBuffer != 64 {
		t.Errorf("expected send buffer 64, got %d", cfg.Broadcaster.SendBuffer)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Broadcaster.HeartbeatInterval != time.Minute {
		t.Errorf("expected heartbeat 1m, got %v", cfg.Broadcaster.HeartbeatInterval)
	}
	if cfg.Auth.Mode != AuthModeKV {
		t.Errorf("expected auth mode kv, got %s", cfg.Auth.Mode)
	}
	if !cfg.Logging.Async {
		t.Error("expected async logging")
	}
	if cfg.Server.ConnectRate != 0.5 {
		t.Errorf("expected connect rate 0.5, got %v", cfg.Server.ConnectRate)
	}
}

func TestEnvOverrideIgnoresMalformed(t *testing.T) {
	cfg := Defaults()

	t.Setenv("EVENTCAST_SEND_BUFFER", "lots")
	t.Setenv("EVENTCAST_HEARTBEAT_INTERVAL", "soon")

	loadEnv(&cfg)

	if cfg.Broadcaster.SendBuffer != 256 {
		t.Errorf("malformed int should keep default, got %d", cfg.Broadcaster.SendBuffer)
	}
	if cfg.Broadcaster.HeartbeatInterval != 20*time.Second {
		t.Errorf("malformed duration should keep default, got %v", cfg.Broadcaster.HeartbeatInterval)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "relative stream path",
			modify: func(c *Config) { c.Server.StreamPath = "stream" },
			errMsg: "server.stream_path must start with /",
		},
		{
			name:   "negative connect rate",
			modify: func(c *Config) { c.Server.ConnectRate = -1 },
			errMsg: "server.connect_rate must be >= 0",
		},
		{
			name:   "connect rate without burst",
			modify: func(c *Config) { c.Server.ConnectBurst = 0 },
			errMsg: "server.connect_burst must be >= 1 when connect_rate is set",
		},
		{
			name:   "empty NATS URL",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url is required",
		},
		{
			name:   "empty stream",
			modify: func(c *Config) { c.NATS.Stream = "" },
			errMsg: "nats.stream is required",
		},
		{
			name:   "zero heartbeat",
			modify: func(c *Config) { c.Broadcaster.HeartbeatInterval = 0 },
			errMsg: "broadcaster.heartbeat_interval must be > 0",
		},
		{
			name:   "zero send buffer",
			modify: func(c *Config) { c.Broadcaster.SendBuffer = 0 },
			errMsg: "broadcaster.send_buffer must be >= 1",
		},
		{
			name:   "jwt without secret",
			modify: func(c *Config) { c.Auth.JWTSecret = "" },
			errMsg: "auth.jwt_secret is required in jwt mode",
		},
		{
			name: "kv without bucket",
			modify: func(c *Config) {
				c.Auth.Mode = AuthModeKV
				c.NATS.KVBucket = ""
			},
			errMsg: "nats.kv_bucket is required in kv mode",
		},
		{
			name:   "unknown auth mode",
			modify: func(c *Config) { c.Auth.Mode = "ldap" },
			errMsg: `auth.mode "ldap" is not one of jwt, kv`,
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	flags, err := ParseFlags([]string{"--port", "9090", "--log-level", "debug"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "9090" {
		t.Errorf("expected port 9090, got %v", flags.Port)
	}
	if flags.LogLevel == nil || *flags.LogLevel != "debug" {
		t.Errorf("expected log-level debug, got %v", flags.LogLevel)
	}
	// Unset flags remain nil
	if flags.NatsURL != nil {
		t.Errorf("expected nil NatsURL, got %v", *flags.NatsURL)
	}
	if flags.ConfigPath != nil {
		t.Errorf("expected nil ConfigPath, got %v", *flags.ConfigPath)
	}
}

func TestParseFlagsShorthand(t *testing.T) {
	flags, err := ParseFlags([]string{"-p", "7070", "-c", "custom.yaml"})
	if err != nil {
		t.Fatal(err)
	}

	if flags.Port == nil || *flags.Port != "7070" {
		t.Errorf("expected port 7070, got %v", flags.Port)
	}
	if flags.ConfigPath == nil || *flags.ConfigPath != "custom.yaml" {
		t.Errorf("expected config custom.yaml, got %v", flags.ConfigPath)
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	_, err := ParseFlags([]string{"--unknown-flag"})
	if err == nil {
		t.Error("expected error for unknown flag, got nil")
	}
}

func TestApplyCLINilFlags(t *testing.T) {
	cfg := Defaults()
	original := cfg

	// All-nil flags should change nothing.
	applyCLI(&cfg, CLIFlags{})

	if cfg.Server.Port != original.Server.Port {
		t.Errorf("port changed from %s to %s", original.Server.Port, cfg.Server.Port)
	}
	if cfg.Logging.Level != original.Logging.Level {
		t.Errorf("log level changed from %s to %s", original.Logging.Level, cfg.Logging.Level)
	}
}

func TestCLIOverridesEnv(t *testing.T) {
	// CLI flags must win over ENV.
	t.Setenv("EVENTCAST_PORT", "7070")
	t.Setenv("NATS_URL", "nats://env:4222")

	flags, err := ParseFlags([]string{"--port", "3333", "--nats-url", "nats://cli:4222", "-c", "/nonexistent/eventcast.yaml"})
	if err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadWithCLI(flags)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "3333" {
		t.Errorf("expected CLI port 3333 to override ENV 7070, got %s", cfg.Server.Port)
	}
	if cfg.NATS.URL != "nats://cli:4222" {
		t.Errorf("expected CLI NATS URL to override ENV, got %s", cfg.NATS.URL)
	}
}
