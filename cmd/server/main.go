// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

// Package main is the entry point for the Coursemap server.
//
// Coursemap sits between learning frontends and the upstream learning
// platform. It serves learner profiles and recommendations from a local
// Badger store so reads keep working when the platform is unreachable, and
// it queues user actions for replay once connectivity returns.
//
// # Application Architecture
//
// The server initializes components in this order:
//
//  1. Configuration: environment variables over config file over defaults (Koanf v2)
//  2. Storage: embedded Badger store shared by profiles, paths and the queue
//  3. Upstream client: rate-limited, circuit-broken HTTP client
//  4. Profile store and recommendation engine
//  5. Action queue, connectivity monitor and flusher
//  6. WebSocket hub for sync-status and recommendation events
//  7. HTTP server: REST API under /api/v1 plus /metrics
//
// Long-lived components run under a suture supervisor tree; a crashing
// flusher restarts without taking the API down.
//
// # Configuration
//
// The only required setting is UPSTREAM_URL. Common overrides:
//
//	export UPSTREAM_URL=https://platform.example.com/api
//	export UPSTREAM_API_KEY=...
//	export STORAGE_PATH=/data/coursemap
//	export AUTH_ENABLED=true
//	export JWT_SECRET=$(openssl rand -base64 32)
//	./coursemap
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the flusher finishes its current replay, and the
// store closes last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/coursemap/coursemap/internal/api"
	"github.com/coursemap/coursemap/internal/auth"
	"github.com/coursemap/coursemap/internal/client"
	"github.com/coursemap/coursemap/internal/config"
	"github.com/coursemap/coursemap/internal/connectivity"
	"github.com/coursemap/coursemap/internal/logging"
	"github.com/coursemap/coursemap/internal/metrics"
	"github.com/coursemap/coursemap/internal/profile"
	"github.com/coursemap/coursemap/internal/queue"
	"github.com/coursemap/coursemap/internal/recommend"
	"github.com/coursemap/coursemap/internal/storage"
	"github.com/coursemap/coursemap/internal/supervisor"
	"github.com/coursemap/coursemap/internal/supervisor/services"
	"github.com/coursemap/coursemap/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: os.Stderr,
	})

	logging.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("storage_path", cfg.Storage.Path).
		Msg("Starting Coursemap")

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage opens first and closes last; everything else hangs off it.
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("Failed to open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	upstream := client.New(cfg.Upstream)

	profiles := profile.NewStore(store, upstream, cfg.Profile)
	engine := recommend.NewEngine(profiles, upstream, upstream, store, cfg.Recommend)

	q, err := queue.New(store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize action queue")
	}

	monitor := connectivity.NewProbeMonitor(
		cfg.Upstream.URL+cfg.Upstream.ProbePath,
		cfg.Upstream.ProbeInterval,
		cfg.Upstream.Timeout,
	)
	flusher := queue.NewFlusher(q, upstream, monitor, cfg.Queue)

	hub := websocket.NewHub()
	q.OnStatusChange(hub.BroadcastSyncStatus)

	// Significant profile changes rebuild the learning path and push both
	// events to connected clients.
	profiles.SetPathRegenerator(&notifyingRegenerator{engine: engine, hub: hub})

	var jwtManager *auth.JWTManager
	if cfg.Security.AuthEnabled {
		jwtManager, err = auth.NewJWTManager(cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT authentication")
		}
		logging.Info().Msg("JWT authentication enabled")
	} else {
		logging.Warn().Msg("Authentication disabled - do not run this in production")
	}

	handler := api.NewHandler(cfg, profiles, engine, q, flusher, monitor, store, hub)
	router := api.NewRouter(
		handler,
		api.NewChiMiddleware(cfg.Security),
		api.NewAuthenticator(jwtManager, cfg.Security.AuthEnabled),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}

	tree.AddDataService(storage.NewGCService(store, cfg.Storage.GCInterval))
	tree.AddSyncService(monitor)
	tree.AddSyncService(flusher)
	tree.AddSyncService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	go trackUptime(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Coursemap stopped gracefully")
}

// notifyingRegenerator rebuilds the learning path and then tells connected
// clients to re-fetch. It implements profile.PathRegenerator.
type notifyingRegenerator struct {
	engine *recommend.Engine
	hub    *websocket.Hub
}

func (n *notifyingRegenerator) RegeneratePath(ctx context.Context, userID string) {
	n.engine.RegeneratePath(ctx, userID)
	n.hub.BroadcastRecsInvalidated(userID)

	path, err := n.engine.Path(ctx, userID)
	if err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("path read after regeneration failed")
		return
	}
	n.hub.BroadcastPathUpdated(userID, len(path.Courses))
}

func (n *notifyingRegenerator) DeletePath(userID string) {
	n.engine.DeletePath(userID)
	n.hub.BroadcastRecsInvalidated(userID)
}

// trackUptime refreshes the uptime gauge until shutdown.
func trackUptime(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.AppUptime.Set(time.Since(start).Seconds())
		}
	}
}
