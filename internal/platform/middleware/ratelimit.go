package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/carepoint/opd/internal/platform/auth"
)

const defaultLimiterIdleTTL = 10 * time.Minute

// RateLimitConfig sets the request budget of a single caller.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL is how long the limiter of a silent caller is kept.
	// Zero means ten minutes.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 50,
		BurstSize:         100,
	}
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one limiter per caller key and drops limiters that
// have been idle longer than idleTTL. Sweeps run at most once per idleTTL,
// on the request path.
type limiterStore struct {
	mu        sync.Mutex
	callers   map[string]*callerLimiter
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultLimiterIdleTTL
	}
	return &limiterStore{
		callers:   make(map[string]*callerLimiter),
		limit:     rate.Limit(cfg.RequestsPerSecond),
		burst:     cfg.BurstSize,
		idleTTL:   ttl,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.idleTTL {
		s.sweep(now)
	}
	cl, ok := s.callers[key]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.callers[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *limiterStore) sweep(now time.Time) {
	for key, cl := range s.callers {
		if now.Sub(cl.lastSeen) > s.idleTTL {
			delete(s.callers, key)
		}
	}
	s.lastSweep = now
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callers)
}

// retryAfter is the whole number of seconds until lim has a token again.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	if lim.Limit() <= 0 {
		return 1
	}
	missing := 1 - lim.TokensAt(now)
	if missing <= 0 {
		return 1
	}
	return int(math.Ceil(missing / float64(lim.Limit())))
}

func rateKey(c echo.Context) string {
	// Authenticated staff get their own limiter; anonymous callers share one per IP.
	key := c.RealIP()
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		key = uid + ":" + key
	}
	return key
}

// RateLimit rejects callers that exceed cfg with 429 and a Retry-After header.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := store.now()
			lim := store.get(rateKey(c), now)

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			if !lim.AllowN(now, 1) {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
