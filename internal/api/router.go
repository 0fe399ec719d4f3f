// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coursemap/coursemap/internal/middleware"
)

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	handler *Handler
	chiMW   *ChiMiddleware
	authMW  *Authenticator
}

// NewRouter creates a router from the handler set and middleware factories.
func NewRouter(h *Handler, chiMW *ChiMiddleware, authMW *Authenticator) *Router {
	return &Router{
		handler: h,
		chiMW:   chiMW,
		authMW:  authMW,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMW.CORS())

	// Health endpoints stay unauthenticated so orchestrators can probe them.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMW.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// Profile endpoints
	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Use(router.chiMW.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.Compression)
		r.Use(router.authMW.Authenticate)

		r.Get("/profile", router.handler.ProfileGet)
		r.With(router.chiMW.RateLimitWrite()).Put("/profile", router.handler.ProfileUpdate)
		r.With(router.chiMW.RateLimitWrite()).Delete("/profile", router.handler.ProfileDelete)
		r.With(router.chiMW.RateLimitWrite()).Post("/behavior", router.handler.BehaviorRecord)

		r.Get("/recommendations", router.handler.Recommendations)
		r.Get("/recommendations/adaptive", router.handler.RecommendationsAdaptive)

		r.Get("/path", router.handler.PathGet)
		r.With(router.chiMW.RateLimitWrite()).Put("/path/progress", router.handler.PathProgressUpdate)
	})

	// Offline action queue
	r.Route("/api/v1/actions", func(r chi.Router) {
		r.Use(router.chiMW.RateLimitWrite())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authMW.Authenticate)

		r.Post("/", router.handler.ActionEnqueue)
		r.Get("/", router.handler.ActionsPending)
	})

	// Sync control and dead letters
	r.Route("/api/v1/sync", func(r chi.Router) {
		r.Use(router.chiMW.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.authMW.Authenticate)

		r.Get("/status", router.handler.SyncStatus)
		r.With(router.chiMW.RateLimitSync()).Post("/flush", router.handler.SyncFlush)

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", router.handler.DeadLettersList)
			r.With(router.chiMW.RateLimitSync()).Post("/{actionID}/requeue", router.handler.DeadLetterRequeue)
			r.With(router.chiMW.RateLimitSync()).Delete("/", router.handler.DeadLettersPurge)
		})
	})

	// WebSocket event stream
	r.Route("/api/v1/ws", func(r chi.Router) {
		r.Use(router.chiMW.RateLimit())
		r.Use(router.authMW.Authenticate)
		r.Get("/", router.handler.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
