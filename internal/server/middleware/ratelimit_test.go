package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, setupTestLogger())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"), "request over limit should be denied")
}

func TestRateLimiter_KeysIsolated(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, setupTestLogger())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	// Другой ключ имеет собственный bucket
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_RefillsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond, setupTestLogger())
	defer rl.Stop()

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"), "tokens should refill after window")
}

func TestRateLimitMiddleware(t *testing.T) {
	mw := RateLimitMiddleware(2, time.Minute, setupTestLogger())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	// X-Forwarded-For имеет приоритет, берется первый адрес
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", getClientIP(req))
}
