// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Upstream.URL = "https://api.learning.example.com"
	cfg.Security.JWTSecret = strings.Repeat("s", 32)
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()

	if cfg.Server.Port != 8360 {
		t.Errorf("default port = %d, want 8360", cfg.Server.Port)
	}
	if cfg.Queue.FlushInterval != 30*time.Second {
		t.Errorf("default flush interval = %v, want 30s", cfg.Queue.FlushInterval)
	}
	if cfg.Queue.MaxRetries != 3 {
		t.Errorf("default max retries = %d, want 3", cfg.Queue.MaxRetries)
	}
	if !cfg.Storage.SyncWrites {
		t.Error("sync writes should default to true")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %s/%s, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing upstream URL",
			mutate:  func(c *Config) { c.Upstream.URL = "" },
			wantErr: "UPSTREAM_URL",
		},
		{
			name:    "non-http upstream URL",
			mutate:  func(c *Config) { c.Upstream.URL = "ftp://example.com" },
			wantErr: "UPSTREAM_URL",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "HTTP_PORT",
		},
		{
			name:    "zero flush interval",
			mutate:  func(c *Config) { c.Queue.FlushInterval = 0 },
			wantErr: "QUEUE_FLUSH_INTERVAL",
		},
		{
			name:    "zero max retries",
			mutate:  func(c *Config) { c.Queue.MaxRetries = 0 },
			wantErr: "QUEUE_MAX_RETRIES",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "short" },
			wantErr: "JWT_SECRET",
		},
		{
			name: "auth disabled skips jwt secret",
			mutate: func(c *Config) {
				c.Security.AuthEnabled = false
				c.Security.JWTSecret = ""
			},
		},
		{
			name:    "bad gc discard ratio",
			mutate:  func(c *Config) { c.Storage.GCDiscardRatio = 1.5 },
			wantErr: "STORAGE_GC_DISCARD_RATIO",
		},
		{
			name:    "max limit below default limit",
			mutate:  func(c *Config) { c.Recommend.MaxLimit = 1 },
			wantErr: "RECOMMEND_MAX_LIMIT",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"UPSTREAM_URL", "upstream.url"},
		{"QUEUE_FLUSH_INTERVAL", "queue.flush_interval"},
		{"HTTP_PORT", "server.port"},
		{"STORAGE_PATH", "storage.path"},
		{"LOG_LEVEL", "logging.level"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "https://api.learning.example.com")
	t.Setenv("JWT_SECRET", strings.Repeat("k", 32))
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("QUEUE_MAX_RETRIES", "5")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Queue.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", cfg.Queue.MaxRetries)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != "https://a.example.com" {
		t.Errorf("cors origins = %v, want two parsed origins", cfg.Security.CORSOrigins)
	}
}
