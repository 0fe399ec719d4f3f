// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateUpstream(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	if err := c.validateRecommend(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Storage.GCDiscardRatio <= 0 || c.Storage.GCDiscardRatio >= 1 {
		return fmt.Errorf("STORAGE_GC_DISCARD_RATIO must be in (0, 1), got %v", c.Storage.GCDiscardRatio)
	}
	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.URL == "" {
		return fmt.Errorf("UPSTREAM_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.URL); err != nil {
		return fmt.Errorf("UPSTREAM_URL is invalid: %w", err)
	}
	if c.Upstream.RateLimit <= 0 {
		return fmt.Errorf("UPSTREAM_RATE_LIMIT must be positive")
	}
	if c.Upstream.RateBurst < 1 {
		return fmt.Errorf("UPSTREAM_RATE_BURST must be at least 1")
	}
	if !strings.HasPrefix(c.Upstream.ProbePath, "/") {
		return fmt.Errorf("UPSTREAM_PROBE_PATH must start with /")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.FlushInterval <= 0 {
		return fmt.Errorf("QUEUE_FLUSH_INTERVAL must be positive")
	}
	if c.Queue.MaxRetries < 1 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must be at least 1")
	}
	if c.Queue.ReplayTimeout <= 0 {
		return fmt.Errorf("QUEUE_REPLAY_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateRecommend() error {
	if c.Recommend.DefaultLimit < 1 {
		return fmt.Errorf("RECOMMEND_DEFAULT_LIMIT must be at least 1")
	}
	if c.Recommend.MaxLimit < c.Recommend.DefaultLimit {
		return fmt.Errorf("RECOMMEND_MAX_LIMIT must be >= RECOMMEND_DEFAULT_LIMIT")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.AuthEnabled {
		return nil
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_ENABLED=true")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that the value parses as an absolute http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
