// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

// Package config loads layered configuration: built-in defaults, an optional
// YAML file, then environment variables. Precedence is ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search paths.
const ConfigPathEnvVar = "CHILLTER_CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"/etc/chillter/config.yaml",
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Chat     ChatConfig     `koanf:"chat"`
	Push     PushConfig     `koanf:"push"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// RequestsPerMinute caps non-websocket requests per client IP.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"gt=0"`
}

// DatabaseConfig configures the shared relational store.
type DatabaseConfig struct {
	DSN string `koanf:"dsn" validate:"required"`

	// PublicBaseURL prefixes stored media references (avatar file names) so
	// clients receive absolute URLs.
	PublicBaseURL string `koanf:"public_base_url" validate:"required,url"`
}

// ChatConfig configures the websocket chat.
type ChatConfig struct {
	// MessagesPerSecond and MessageBurst bound inbound messages per
	// connection.
	MessagesPerSecond float64 `koanf:"messages_per_second" validate:"gt=0"`
	MessageBurst      int     `koanf:"message_burst" validate:"gt=0"`

	// AllowedOrigins restricts browser connections. Empty allows any origin.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// PushConfig configures the push notification provider.
type PushConfig struct {
	// Enabled toggles outbound push. When false, events are consumed and
	// logged but nothing is sent; useful in development.
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url" validate:"required_if=Enabled true,omitempty,url"`
	AppID   string `koanf:"app_id" validate:"required_if=Enabled true"`
	RESTKey string `koanf:"rest_key" validate:"required_if=Enabled true"`

	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns the built-in defaults, valid for local development
// except for the required database DSN.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			ReadTimeout: 15 * time.Second,
			// WriteTimeout stays zero: websocket connections are long-lived
			// and must not be cut by the server's write deadline.
			WriteTimeout:      0,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RequestsPerMinute: 120,
		},
		Database: DatabaseConfig{
			PublicBaseURL: "https://app.chillter.fr",
		},
		Chat: ChatConfig{
			MessagesPerSecond: 5,
			MessageBurst:      10,
		},
		Push: PushConfig{
			Enabled: true,
			BaseURL: "https://onesignal.com",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional config file and
// CHILLTER_* environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// CHILLTER_SERVER_ADDR -> server.addr, CHILLTER_PUSH_REST_KEY ->
	// push.rest_key. The first underscore separates the section.
	envProvider := env.Provider("CHILLTER_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if origins := k.Get("chat.allowed_origins"); origins != nil {
		if s, ok := origins.(string); ok {
			k.Set("chat.allowed_origins", splitAndTrim(s))
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "CHILLTER_"))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
