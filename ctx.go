package accounts

import "context"

type contextKey struct {
	name string
}

var claimsCtxKey = &contextKey{"claims"}

// WithClaimsContext stores claims in ctx.
func WithClaimsContext(ctx context.Context, claims SessionClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext returns the claims stored by WithClaimsContext.
func ClaimsFromContext(ctx context.Context) (SessionClaims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(SessionClaims)
	return claims, ok
}

// ActorFromContext returns the acting principal, or false when the context
// carries no claims.
func ActorFromContext(ctx context.Context) (ActorRef, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return ActorRef{}, false
	}
	return ActorFromClaims(claims), true
}

// Can reports whether the claims in ctx hold role.
func Can(ctx context.Context, role string) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	return Permits(claims, role)
}
