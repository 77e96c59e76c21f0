// Package limiter provides a redis backed accounts.AttemptLimiter.
package limiter

import (
	"context"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "accounts:attempts"

// Budget is the number of attempts allowed per key inside one window.
type Budget struct {
	Max    int64
	Window time.Duration
}

// DefaultBudgets are used for scopes without an explicit budget.
var DefaultBudgets = map[string]Budget{
	accounts.ScopeVerify:             {Max: 5, Window: 15 * time.Minute},
	accounts.ScopeVerificationResend: {Max: 3, Window: time.Hour},
	accounts.ScopePasswordReset:      {Max: 5, Window: 15 * time.Minute},
	accounts.ScopeLogin:              {Max: 10, Window: 5 * time.Minute},
}

// RedisLimiter is a fixed window counter: the first attempt in a window
// sets the key TTL, every attempt increments it.
type RedisLimiter struct {
	client   redis.UniversalClient
	prefix   string
	budgets  map[string]Budget
	fallback Budget
}

type Option func(*RedisLimiter)

func WithPrefix(prefix string) Option {
	return func(l *RedisLimiter) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithBudget overrides the budget of one scope.
func WithBudget(scope string, budget Budget) Option {
	return func(l *RedisLimiter) {
		if budget.Max > 0 && budget.Window > 0 {
			l.budgets[scope] = budget
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *RedisLimiter {
	l := &RedisLimiter{
		client:   client,
		prefix:   defaultPrefix,
		budgets:  make(map[string]Budget, len(DefaultBudgets)),
		fallback: Budget{Max: 5, Window: 15 * time.Minute},
	}
	for scope, b := range DefaultBudgets {
		l.budgets[scope] = b
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

var _ accounts.AttemptLimiter = (*RedisLimiter)(nil)

// Allow counts one attempt and returns accounts.ErrTooManyAttempts when the
// window budget is exceeded.
func (l *RedisLimiter) Allow(ctx context.Context, scope, key string) error {
	budget := l.budget(scope)
	k := l.key(scope, key)

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "attempt limiter unavailable")
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, budget.Window).Err(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "attempt limiter unavailable")
		}
	}
	if count > budget.Max {
		return accounts.ErrTooManyAttempts
	}
	return nil
}

// Reset clears the counter, typically after a successful attempt.
func (l *RedisLimiter) Reset(ctx context.Context, scope, key string) error {
	if err := l.client.Del(ctx, l.key(scope, key)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "attempt limiter unavailable")
	}
	return nil
}

func (l *RedisLimiter) budget(scope string) Budget {
	if b, ok := l.budgets[scope]; ok {
		return b
	}
	return l.fallback
}

func (l *RedisLimiter) key(scope, key string) string {
	return l.prefix + ":" + scope + ":" + key
}
