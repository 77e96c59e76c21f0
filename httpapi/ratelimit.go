package httpapi

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a per client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// IdleTTL drops buckets of clients not seen for this long.
	IdleTTL time.Duration
}

var DefaultRateLimit = RateLimitConfig{
	RequestsPerSecond: 1,
	Burst:             5,
	IdleTTL:           10 * time.Minute,
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	cfg       RateLimitConfig
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimit.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimit.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimit.IdleTTL
	}
	return &ipLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: map[string]*clientLimiter{},
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for key, cl := range l.clients {
			if now.Sub(cl.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// handler rejects with 429 once the caller's bucket is empty. Only the
// socket address is used, forwarded headers are ignored.
func (l *ipLimiter) handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limiter := l.get(c.IP())

		reservation := limiter.Reserve()
		if !reservation.OK() {
			return accounts.ErrTooManyAttempts
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(delay.Seconds())+1))
			return accounts.ErrTooManyAttempts
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Burst))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		return c.Next()
	}
}
