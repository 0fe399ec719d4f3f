// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/coursemap/config.yaml",
	"/etc/coursemap/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values. These are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8360,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Path:           "/data/coursemap",
			SyncWrites:     true,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Upstream: UpstreamConfig{
			URL:                "",
			APIKey:             "",
			Timeout:            10 * time.Second,
			RateLimit:          50,
			RateBurst:          10,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
			ProbeInterval:      15 * time.Second,
			ProbePath:          "/health",
		},
		Queue: QueueConfig{
			FlushInterval: 30 * time.Second,
			MaxRetries:    3,
			ReplayTimeout: 15 * time.Second,
		},
		Profile: ProfileConfig{
			CacheTTL:      5 * time.Minute,
			RemoteTimeout: 5 * time.Second,
		},
		Recommend: RecommendConfig{
			CacheTTL:     5 * time.Minute,
			DefaultLimit: 10,
			MaxLimit:     50,
			SimilarUsers: 20,
		},
		Security: SecurityConfig{
			AuthEnabled:       true,
			JWTSecret:         "",
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config file: optional YAML config file (if exists)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars arrive as strings; convert comma-separated values for slice fields
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - UPSTREAM_URL -> upstream.url
//   - QUEUE_FLUSH_INTERVAL -> queue.flush_interval
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// Storage mappings
		"storage_path":             "storage.path",
		"storage_sync_writes":      "storage.sync_writes",
		"storage_gc_interval":      "storage.gc_interval",
		"storage_gc_discard_ratio": "storage.gc_discard_ratio",

		// Upstream platform mappings
		"upstream_url":                  "upstream.url",
		"upstream_api_key":              "upstream.api_key",
		"upstream_timeout":              "upstream.timeout",
		"upstream_rate_limit":           "upstream.rate_limit",
		"upstream_rate_burst":           "upstream.rate_burst",
		"upstream_breaker_max_failures": "upstream.breaker_max_failures",
		"upstream_breaker_timeout":      "upstream.breaker_timeout",
		"upstream_probe_interval":       "upstream.probe_interval",
		"upstream_probe_path":           "upstream.probe_path",

		// Queue mappings
		"queue_flush_interval": "queue.flush_interval",
		"queue_max_retries":    "queue.max_retries",
		"queue_replay_timeout": "queue.replay_timeout",

		// Profile mappings
		"profile_cache_ttl":      "profile.cache_ttl",
		"profile_remote_timeout": "profile.remote_timeout",

		// Recommendation mappings
		"recommend_cache_ttl":     "recommend.cache_ttl",
		"recommend_default_limit": "recommend.default_limit",
		"recommend_max_limit":     "recommend.max_limit",
		"recommend_similar_users": "recommend.similar_users",

		// Security mappings
		"auth_enabled":        "security.auth_enabled",
		"jwt_secret":          "security.jwt_secret",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables do not
	// pollute the config.
	return ""
}
