// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coursemap/coursemap/internal/auth"
	"github.com/coursemap/coursemap/internal/logging"
)

type claimsKey struct{}

// Authenticator validates bearer tokens on API routes. When auth is disabled
// in the configuration every request passes with empty claims.
type Authenticator struct {
	jwt     *auth.JWTManager
	enabled bool
}

// NewAuthenticator creates the auth middleware. jwt may be nil when enabled
// is false.
func NewAuthenticator(jwt *auth.JWTManager, enabled bool) *Authenticator {
	return &Authenticator{jwt: jwt, enabled: enabled}
}

// Authenticate requires a valid bearer token. Expired tokens get a distinct
// error code so clients know to re-authenticate rather than retry.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token", nil)
			return
		}

		claims, err := a.jwt.ValidateToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				respondError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Session expired, log in again", nil)
				return
			}
			logging.Warn().Err(err).Str("path", r.URL.Path).Msg("rejected invalid token")
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the validated claims, or nil when the request was
// not authenticated.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if c, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return c
	}
	return nil
}
