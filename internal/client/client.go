// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package client talks to the upstream learning-platform API. Every call is
// rate limited and goes through a circuit breaker so a slow or failing
// upstream cannot cascade into the queue flusher or profile store.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/profile"
	"github.com/coursemap/coursemap/internal/queue"
	"github.com/coursemap/coursemap/internal/recommend"
)

// ErrUnauthorized is returned when the upstream rejects the API credentials.
// Auth expiry is fatal for the session: callers clear local session state
// rather than retry.
var ErrUnauthorized = errors.New("client: unauthorized")

// ErrUpstreamStatus wraps non-2xx upstream responses.
var ErrUpstreamStatus = errors.New("client: unexpected upstream status")

const breakerName = "upstream-platform"

// Client is the upstream learning-platform API client. It implements
// profile.RemoteClient, recommend.Catalog, recommend.SocialGraph and
// queue.Transport.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	cb         *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

// New creates a client from the upstream configuration.
func New(cfg config.UpstreamConfig) *Client {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0) // 0 = closed

	maxFailures := cfg.BreakerMaxFailures

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3, // Allow 3 requests in half-open state
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("upstream circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Client{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cb:         cb,
		logger:     logging.With().Str("component", "upstream-client").Logger(),
	}
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "open"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// do sends one request through the rate limiter and circuit breaker and
// returns the response body.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	data, err := c.cb.Execute(func() ([]byte, error) {
		return c.send(ctx, method, path, body)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrUpstreamStatus, method, path, resp.StatusCode)
	}
	return data, nil
}

// FetchProfile retrieves the user's learning profile.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/learning-profile", nil)
	if err != nil {
		return nil, err
	}

	var p profile.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// SaveProfile persists the user's learning profile.
func (c *Client) SaveProfile(ctx context.Context, p *profile.Profile) error {
	_, err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(p.UserID)+"/learning-profile", p)
	return err
}

// CoursesByTag returns catalog courses carrying the tag.
func (c *Client) CoursesByTag(ctx context.Context, tag string) ([]recommend.Course, error) {
	return c.fetchCourses(ctx, "/catalog/courses?tag="+url.QueryEscape(tag))
}

// CoursesBySkill returns catalog courses teaching the skill.
func (c *Client) CoursesBySkill(ctx context.Context, skill string) ([]recommend.Course, error) {
	return c.fetchCourses(ctx, "/catalog/courses?skill="+url.QueryEscape(skill))
}

func (c *Client) fetchCourses(ctx context.Context, path string) ([]recommend.Course, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var courses []recommend.Course
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil, fmt.Errorf("decode courses: %w", err)
	}
	return courses, nil
}

// SimilarUsers returns users with precomputed similarity to the target user.
func (c *Client) SimilarUsers(ctx context.Context, userID string, limit int) ([]recommend.SimilarUser, error) {
	path := fmt.Sprintf("/users/%s/similar?limit=%d", url.PathEscape(userID), limit)
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var similar []recommend.SimilarUser
	if err := json.Unmarshal(data, &similar); err != nil {
		return nil, fmt.Errorf("decode similar users: %w", err)
	}
	return similar, nil
}

// replayEndpoints maps each action type to its upstream mutation endpoint.
// The action payload is delivered verbatim.
var replayEndpoints = map[queue.ActionType]string{
	queue.ActionFavorite:       "/favorites",
	queue.ActionWishlist:       "/wishlist",
	queue.ActionLike:           "/likes",
	queue.ActionReview:         "/reviews",
	queue.ActionCompletion:     "/completions",
	queue.ActionAnalytics:      "/analytics/events",
	queue.ActionCourseProgress: "/progress",
}

// Replay delivers one queued action to its endpoint.
func (c *Client) Replay(ctx context.Context, a queue.Action) error {
	path, ok := replayEndpoints[a.Type]
	if !ok {
		return fmt.Errorf("%w: %q", queue.ErrUnknownActionType, a.Type)
	}

	_, err := c.do(ctx, http.MethodPost, path, a.Payload)
	return err
}
