// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

// Package config holds all application configuration loaded from defaults,
// an optional YAML config file, and environment variables, in that order of
// precedence (env highest).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/veilwatch/veilwatch/internal/notify"
)

// Config holds all application configuration.
type Config struct {
	Engine  EngineConfig         `koanf:"engine"`
	Monitor MonitorConfig        `koanf:"monitor"`
	Server  ServerConfig         `koanf:"server"`
	Webhook notify.WebhookConfig `koanf:"webhook"`
	Logging LoggingConfig        `koanf:"logging"`
}

// EngineConfig selects and configures the detection signal source.
type EngineConfig struct {
	// Mode selects the signal source: "native" loads the detection engine
	// shared library, "static" uses an in-process source for development.
	Mode string `koanf:"mode" validate:"oneof=native static"`

	// LibraryPath is the path to the native detection engine shared
	// library. Required in native mode.
	LibraryPath string `koanf:"library_path"`
}

// MonitorConfig configures the polling monitor.
type MonitorConfig struct {
	// Interval is the minimum time between poll cycle starts.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// StartOnBoot starts monitoring as soon as the service comes up.
	StartOnBoot bool `koanf:"start_on_boot"`

	// StopTimeout bounds how long Stop waits for the poll loop to exit.
	StopTimeout time.Duration `koanf:"stop_timeout" validate:"gt=0"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs is the per-IP request budget per RateLimitWindow.
	// Zero disables rate limiting.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Mode:        "native",
			LibraryPath: "",
		},
		Monitor: MonitorConfig{
			Interval:    10 * time.Second,
			StartOnBoot: true,
			StopTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8417,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: 1 * time.Minute,
		},
		Webhook: notify.DefaultWebhookConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

var validate = validator.New()

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Engine.Mode == "native" && c.Engine.LibraryPath == "" {
		return fmt.Errorf("ENGINE_LIBRARY_PATH is required when ENGINE_MODE=native")
	}

	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_ENABLED=true")
	}

	return nil
}

// ListenAddr returns the host:port pair the HTTP server binds to.
func (c *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
