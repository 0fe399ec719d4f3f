// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package config

import "time"

// Config holds all application configuration loaded from environment variables
// and an optional YAML config file.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in sensible defaults for all settings
//  2. Config file: optional YAML config file (config.yaml)
//  3. Environment variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Queue     QueueConfig     `koanf:"queue"`
	Profile   ProfileConfig   `koanf:"profile"`
	Recommend RecommendConfig `koanf:"recommend"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8360)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// StorageConfig holds the embedded Badger store settings. A single store
// backs the action queue, dead letters, profile snapshots and learning paths.
//
// Environment Variables:
//   - STORAGE_PATH: Badger data directory (default: /data/coursemap)
//   - STORAGE_SYNC_WRITES: fsync every write (default: true)
//   - STORAGE_GC_INTERVAL: value-log GC interval (default: 10m)
//   - STORAGE_GC_DISCARD_RATIO: GC discard ratio (default: 0.5)
type StorageConfig struct {
	Path           string        `koanf:"path"`
	SyncWrites     bool          `koanf:"sync_writes"`
	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// UpstreamConfig holds the upstream learning-platform API settings. All
// profile persists, action replays and connectivity probes go through it.
//
// Environment Variables:
//   - UPSTREAM_URL: Base URL of the platform API (required)
//   - UPSTREAM_API_KEY: API key sent as a bearer token
//   - UPSTREAM_TIMEOUT: Per-request timeout (default: 10s)
//   - UPSTREAM_RATE_LIMIT: Max requests per second (default: 50)
//   - UPSTREAM_RATE_BURST: Burst allowance (default: 10)
//   - UPSTREAM_BREAKER_MAX_FAILURES: Consecutive failures before the circuit opens (default: 5)
//   - UPSTREAM_BREAKER_TIMEOUT: Open-state duration before half-open (default: 30s)
//   - UPSTREAM_PROBE_INTERVAL: Connectivity probe interval (default: 15s)
//   - UPSTREAM_PROBE_PATH: Health endpoint path probed for connectivity (default: /health)
type UpstreamConfig struct {
	URL                string        `koanf:"url"`
	APIKey             string        `koanf:"api_key"`
	Timeout            time.Duration `koanf:"timeout"`
	RateLimit          float64       `koanf:"rate_limit"`
	RateBurst          int           `koanf:"rate_burst"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
	ProbeInterval      time.Duration `koanf:"probe_interval"`
	ProbePath          string        `koanf:"probe_path"`
}

// QueueConfig holds offline action queue settings.
//
// Environment Variables:
//   - QUEUE_FLUSH_INTERVAL: Periodic flush interval (default: 30s)
//   - QUEUE_MAX_RETRIES: Replay attempts before dead-lettering (default: 3)
//   - QUEUE_REPLAY_TIMEOUT: Per-action replay timeout (default: 15s)
type QueueConfig struct {
	FlushInterval time.Duration `koanf:"flush_interval"`
	MaxRetries    int           `koanf:"max_retries"`
	ReplayTimeout time.Duration `koanf:"replay_timeout"`
}

// ProfileConfig holds profile store settings.
//
// Environment Variables:
//   - PROFILE_CACHE_TTL: In-memory profile cache TTL (default: 5m)
//   - PROFILE_REMOTE_TIMEOUT: Remote fetch/persist timeout (default: 5s)
type ProfileConfig struct {
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	RemoteTimeout time.Duration `koanf:"remote_timeout"`
}

// RecommendConfig holds recommendation engine settings.
//
// Environment Variables:
//   - RECOMMEND_CACHE_TTL: Response cache TTL (default: 5m)
//   - RECOMMEND_DEFAULT_LIMIT: Default result count (default: 10)
//   - RECOMMEND_MAX_LIMIT: Maximum result count (default: 50)
//   - RECOMMEND_SIMILAR_USERS: Similar users considered by the collaborative scorer (default: 20)
type RecommendConfig struct {
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	DefaultLimit int           `koanf:"default_limit"`
	MaxLimit     int           `koanf:"max_limit"`
	SimilarUsers int           `koanf:"similar_users"`
}

// SecurityConfig holds authentication and API protection settings.
//
// Environment Variables:
//   - AUTH_ENABLED: Require bearer tokens on the API (default: true)
//   - JWT_SECRET: HMAC signing secret (required when auth is enabled)
//   - RATE_LIMIT_REQUESTS: Requests allowed per window (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
//   - DISABLE_RATE_LIMIT: Disable API rate limiting (default: false)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
type SecurityConfig struct {
	AuthEnabled       bool          `koanf:"auth_enabled"`
	JWTSecret         string        `koanf:"jwt_secret"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
//
// Environment Variables:
//   - LOG_LEVEL: Minimum level: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
