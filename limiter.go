package accounts

import "context"

// Attempt scopes used with AttemptLimiter.
const (
	ScopeVerify             = "verify"
	ScopeVerificationResend = "verify_resend"
	ScopePasswordReset      = "password_reset"
	ScopeLogin              = "login"
)

// AttemptLimiter throttles guessable operations. Allow returns
// ErrTooManyAttempts once key has used up its budget in scope.
type AttemptLimiter interface {
	Allow(ctx context.Context, scope, key string) error
	Reset(ctx context.Context, scope, key string) error
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string, string) error { return nil }

func (noopLimiter) Reset(context.Context, string, string) error { return nil }

func normalizeLimiter(l AttemptLimiter) AttemptLimiter {
	if l == nil {
		return noopLimiter{}
	}
	return l
}
