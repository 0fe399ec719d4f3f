// Coursemap - Learning Personalization and Offline Sync Engine
// Copyright 2026 The Coursemap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursemap/coursemap

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/coursemap/coursemap/internal/auth"
	"github.com/coursemap/coursemap/internal/config"
)

func newAuthHandler(t *testing.T) (*Authenticator, *auth.JWTManager) {
	t.Helper()
	jwt, err := auth.NewJWTManager(config.SecurityConfig{JWTSecret: "test-secret-at-least-32-characters-long"})
	if err != nil {
		t.Fatalf("NewJWTManager() error: %v", err)
	}
	return NewAuthenticator(jwt, true), jwt
}

func authProbe(a *Authenticator) http.Handler {
	return a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthenticateMissingToken(t *testing.T) {
	t.Parallel()

	a, _ := newAuthHandler(t)
	rec := httptest.NewRecorder()
	authProbe(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	t.Parallel()

	a, jwt := newAuthHandler(t)
	token, err := jwt.GenerateToken("u1", "learner", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authProbe(a).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticateExpiredTokenHasDistinctCode(t *testing.T) {
	t.Parallel()

	a, jwt := newAuthHandler(t)
	token, err := jwt.GenerateToken("u1", "", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authProbe(a).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error == nil || env.Error.Code != "TOKEN_EXPIRED" {
		t.Errorf("error = %+v, want TOKEN_EXPIRED", env.Error)
	}
}

func TestAuthenticateDisabledPassesThrough(t *testing.T) {
	t.Parallel()

	a := NewAuthenticator(nil, false)
	h := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rec.Code)
	}
}
