// Copyright (C) 2026 UCAN AI (eng@ucan.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/config"
	"github.com/ucan-ai/gpt-rag-ui-v2/services/ui/datatypes"
)

func limiterRouter(l *RateLimiter, principal string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		SetAuthContext(c, datatypes.AuthContext{PrincipalID: principal})
	})
	r.Use(l.Middleware())
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	r := limiterRouter(l, "user-1")

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiterKeysByPrincipal(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	w := httptest.NewRecorder()
	limiterRouter(l, "user-1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// user-1 is out of tokens; user-2 has a fresh bucket.
	w = httptest.NewRecorder()
	limiterRouter(l, "user-1").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	limiterRouter(l, "user-2").ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterDisabledAtZero(t *testing.T) {
	l := NewRateLimiter(config.RateLimitConfig{})
	r := limiterRouter(l, "user-1")
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
