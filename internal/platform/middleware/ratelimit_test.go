package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/carepoint/opd/internal/platform/auth"
)

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 10,
		BurstSize:         5,
	}

	e := echo.New()
	mw := RateLimit(cfg)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// Send 5 requests (within burst size), all should pass
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		err := handler(c)
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}

		// Verify X-RateLimit-Limit header is set
		limitHeader := rec.Header().Get("X-RateLimit-Limit")
		if limitHeader != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, limitHeader)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
	}

	e := echo.New()
	mw := RateLimit(cfg)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// First 2 requests should pass (burst size = 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		err := handler(c)
		if err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	// Third request should be rate limited
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := handler(c)

	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", httpErr.Code)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	mw := RateLimit(cfg)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	// First request passes
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	_ = handler(c)

	// Second request should be rate limited and include Retry-After
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	err := handler(c)

	if err == nil {
		t.Fatal("expected error for rate-limited request")
	}

	retryAfter := rec.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Error("expected Retry-After header to be set")
	}

	retryVal, parseErr := strconv.Atoi(retryAfter)
	if parseErr != nil {
		t.Fatalf("Retry-After header is not a valid integer: %q", retryAfter)
	}
	if retryVal < 1 {
		t.Errorf("expected Retry-After >= 1, got %d", retryVal)
	}

	// Check X-RateLimit-Remaining is "0" for rate-limited requests
	remaining := rec.Header().Get("X-RateLimit-Remaining")
	if remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", remaining)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	cfg := RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
	}

	e := echo.New()
	mw := RateLimit(cfg)
	handler := mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	newCtx := func(user string) echo.Context {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithUser(req.Context(), user, "", []string{auth.RoleDoctor}))
		return e.NewContext(req, httptest.NewRecorder())
	}

	if err := handler(newCtx("user-a")); err != nil {
		t.Fatalf("user-a first request: expected no error, got %v", err)
	}
	if err := handler(newCtx("user-a")); err == nil {
		t.Fatal("user-a second request: expected rate limit error")
	}
	if err := handler(newCtx("user-b")); err != nil {
		t.Fatalf("user-b first request: expected no error, got %v", err)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 {
		t.Errorf("expected RequestsPerSecond 50, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 100 {
		t.Errorf("expected BurstSize 100, got %d", cfg.BurstSize)
	}
}

func TestRetryAfter_ZeroRate(t *testing.T) {
	lim := rate.NewLimiter(0, 1)
	now := time.Now()
	lim.AllowN(now, 1)
	if got := retryAfter(lim, now); got != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", got)
	}
}

func TestRetryAfter_SlowRate(t *testing.T) {
	lim := rate.NewLimiter(rate.Limit(0.25), 1)
	now := time.Now()
	lim.AllowN(now, 1)
	if got := retryAfter(lim, now); got != 4 {
		t.Errorf("expected 4 seconds at one request per 4s, got %d", got)
	}
}

func TestLimiterStore_SameKeySameLimiter(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})
	now := time.Now()

	a := store.get("key1", now)
	if a != store.get("key1", now) {
		t.Error("expected same limiter for same key")
	}
	if a == store.get("key2", now) {
		t.Error("expected different limiter for different key")
	}
}

func TestLimiterStore_EvictsIdleCallers(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5, IdleTTL: time.Minute})
	start := time.Now()
	store.lastSweep = start

	for i := 0; i < 50; i++ {
		store.get("10.0.0."+strconv.Itoa(i), start)
	}
	store.get("busy", start.Add(50*time.Second))
	if store.size() != 51 {
		t.Fatalf("expected 51 limiters before the sweep, got %d", store.size())
	}

	store.get("busy", start.Add(90*time.Second))
	if store.size() != 1 {
		t.Errorf("expected only the active caller to survive, got %d limiters", store.size())
	}
}

func TestLimiterStore_EvictedCallerStartsFresh(t *testing.T) {
	store := newLimiterStore(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1, IdleTTL: time.Minute})
	clock := time.Now()
	store.lastSweep = clock

	if !store.get("ip", clock).AllowN(clock, 1) {
		t.Fatal("expected first request allowed")
	}
	if store.get("ip", clock).AllowN(clock, 1) {
		t.Fatal("expected second request limited")
	}
	clock = clock.Add(2 * time.Minute)
	if !store.get("ip", clock).AllowN(clock, 1) {
		t.Error("expected an evicted caller to start with a full burst")
	}
}
