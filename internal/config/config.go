package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Relay  RelayConfig  `yaml:"relay"`
	Demo   DemoConfig   `yaml:"demo"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Host            string        `yaml:"host"`
	AuthToken       string        `yaml:"auth_token"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StreamConfig controls per-connection behaviour of notification streams.
type StreamConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SubscriberBuffer  int           `yaml:"subscriber_buffer"`
	// RetryHint is sent to SSE clients as the "retry:" directive.
	RetryHint time.Duration `yaml:"retry_hint"`
}

// RelayConfig enables the NATS bridge. An empty URL disables it.
type RelayConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Name    string `yaml:"name"`
}

type DemoConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "127.0.0.1",
			ShutdownTimeout: 10 * time.Second,
		},
		Stream: StreamConfig{
			HeartbeatInterval: 30 * time.Second,
			SubscriberBuffer:  64,
			RetryHint:         5 * time.Second,
		},
		Relay: RelayConfig{
			Subject: "notifications.events",
		},
		Demo: DemoConfig{
			Interval: 3 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML file on top of the defaults. ${VAR} references are
// expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Stream.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: stream.heartbeat_interval must be positive")
	}
	if c.Stream.SubscriberBuffer < 1 {
		return fmt.Errorf("config: stream.subscriber_buffer must be at least 1")
	}
	if c.Stream.RetryHint < 0 {
		return fmt.Errorf("config: stream.retry_hint must not be negative")
	}
	if c.Relay.NATSURL != "" && c.Relay.Subject == "" {
		return fmt.Errorf("config: relay.subject is required when relay.nats_url is set")
	}
	if c.Demo.Enabled && c.Demo.Interval <= 0 {
		return fmt.Errorf("config: demo.interval must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log.level %q", s)
	}
}
