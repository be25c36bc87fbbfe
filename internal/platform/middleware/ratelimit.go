package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/ehr/hms-scheduler/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts limiters for clients not seen for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           3 * time.Minute,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters keeps one limiter per caller key.
type clientLimiters struct {
	mu      sync.Mutex
	clients map[string]*client
	cfg     RateLimitConfig
	now     func() time.Time
	sweptAt time.Time
}

func newClientLimiters(cfg RateLimitConfig) *clientLimiters {
	return &clientLimiters{clients: make(map[string]*client), cfg: cfg, now: time.Now}
}

func (s *clientLimiters) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cfg.IdleTTL > 0 && now.Sub(s.sweptAt) > s.cfg.IdleTTL {
		for k, c := range s.clients {
			if now.Sub(c.lastSeen) > s.cfg.IdleTTL {
				delete(s.clients, k)
			}
		}
		s.sweptAt = now
	}

	c, ok := s.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// RateLimit limits each caller (authenticated user, else remote IP).
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newClientLimiters(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP()
			if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
				key = "user:" + uid
			}

			lim := store.get(key)
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !lim.Allow() {
				retry := 1
				if cfg.RequestsPerSecond > 0 {
					retry = int(math.Ceil(1 / cfg.RequestsPerSecond))
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
