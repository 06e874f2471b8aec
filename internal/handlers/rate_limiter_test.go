package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibek01/ECOM-D1/internal/platform/auth"
)

func TestSimpleRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"), "keys are limited independently")

	now = now.Add(61 * time.Second)
	assert.True(t, limiter.Allow("a"), "window resets")
}

func TestSimpleRateLimiterDisabled(t *testing.T) {
	assert.Nil(t, newSimpleRateLimiter(0, time.Minute, nil))
}

func TestIPRateLimitRejectsWithRetryAfter(t *testing.T) {
	handler := IPRateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusNoContent, send("10.0.0.1:1234").Code)
	limited := send("10.0.0.1:5678")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), "rate_limited")
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:1234").Code)
}

func TestUserRateLimitKeysOnIdentity(t *testing.T) {
	handler := UserRateLimit(1)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(uid string) int {
		req := httptest.NewRequest(http.MethodPost, "/orders", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if uid != "" {
			req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("user-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("user-1"))
	assert.Equal(t, http.StatusOK, send("user-2"), "same address, different user")
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := IPRateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}
