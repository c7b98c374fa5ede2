// Veilwatch - Overlay Monitoring Detection Service
// Copyright 2026 Veilwatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/veilwatch/veilwatch

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENGINE_MODE", "static")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Monitor.Interval != 10*time.Second {
		t.Errorf("monitor interval = %v, want 10s", cfg.Monitor.Interval)
	}
	if !cfg.Monitor.StartOnBoot {
		t.Error("expected start_on_boot default true")
	}
	if cfg.Server.Port != 8417 {
		t.Errorf("server port = %d, want 8417", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Webhook.Enabled {
		t.Error("expected webhook disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_MODE", "static")
	t.Setenv("MONITOR_INTERVAL", "250ms")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Monitor.Interval != 250*time.Millisecond {
		t.Errorf("monitor interval = %v, want 250ms", cfg.Monitor.Interval)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("server port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != len(want) {
		t.Fatalf("cors origins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	for i, origin := range want {
		if cfg.Server.CORSOrigins[i] != origin {
			t.Errorf("cors origin[%d] = %q, want %q", i, cfg.Server.CORSOrigins[i], origin)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("engine:\n  mode: static\nmonitor:\n  interval: 2s\nserver:\n  port: 7171\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Engine.Mode != "static" {
		t.Errorf("engine mode = %q, want static", cfg.Engine.Mode)
	}
	if cfg.Monitor.Interval != 2*time.Second {
		t.Errorf("monitor interval = %v, want 2s", cfg.Monitor.Interval)
	}
	if cfg.Server.Port != 7171 {
		t.Errorf("server port = %d, want 7171", cfg.Server.Port)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("engine:\n  mode: static\nserver:\n  port: 7171\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7272")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7272 {
		t.Errorf("server port = %d, want env override 7272", cfg.Server.Port)
	}
}

func TestValidateNativeModeRequiresLibraryPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Engine.Mode = "native"
	cfg.Engine.LibraryPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for native mode without library path")
	}

	cfg.Engine.LibraryPath = "/usr/local/lib/libveilwatch.dylib"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad engine mode", func(c *Config) { c.Engine.Mode = "simulated" }},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"webhook enabled without url", func(c *Config) { c.Webhook.Enabled = true }},
		{"webhook bad url", func(c *Config) {
			c.Webhook.Enabled = true
			c.Webhook.URL = "not-a-url"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Engine.Mode = "static"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestListenAddr(t *testing.T) {
	sc := ServerConfig{Host: "0.0.0.0", Port: 8417}
	if got := sc.ListenAddr(); got != "0.0.0.0:8417" {
		t.Errorf("ListenAddr() = %q, want 0.0.0.0:8417", got)
	}
}

func TestEnvTransformIgnoresUnknownVars(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("MONITOR_INTERVAL"); got != "monitor.interval" {
		t.Errorf("envTransformFunc(MONITOR_INTERVAL) = %q, want monitor.interval", got)
	}
}
