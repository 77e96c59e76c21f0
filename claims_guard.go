package accounts

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsDecorator adds extension data to a token before it is signed. Only
// Metadata may change; Issue rejects any other edit with
// ErrImmutableClaimMutation.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, session SessionClaims, claims *JWTClaims) error
}

type ClaimsDecoratorFunc func(ctx context.Context, session SessionClaims, claims *JWTClaims) error

func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, session SessionClaims, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, session, claims)
}

type immutableClaimsSnapshot struct {
	subject   string
	issuer    string
	uid       string
	kind      string
	ownerID   string
	username  string
	email     string
	roles     []string
	audience  []string
	issuedAt  time.Time
	expiresAt time.Time
}

func captureImmutableClaims(claims *JWTClaims) immutableClaimsSnapshot {
	snap := immutableClaimsSnapshot{
		subject:  claims.RegisteredClaims.Subject,
		issuer:   claims.RegisteredClaims.Issuer,
		uid:      claims.UID,
		kind:     claims.Kind,
		ownerID:  claims.OwnerID,
		username: claims.Username,
		email:    claims.Email,
		roles:    slices.Clone(claims.Roles),
		audience: slices.Clone([]string(claims.RegisteredClaims.Audience)),
	}

	if claims.RegisteredClaims.IssuedAt != nil {
		snap.issuedAt = claims.RegisteredClaims.IssuedAt.Time
	}

	if claims.RegisteredClaims.ExpiresAt != nil {
		snap.expiresAt = claims.RegisteredClaims.ExpiresAt.Time
	}

	return snap
}

func (snap immutableClaimsSnapshot) validate(claims *JWTClaims) error {
	checks := []struct {
		field string
		same  bool
	}{
		{"sub", claims.RegisteredClaims.Subject == snap.subject},
		{"iss", claims.RegisteredClaims.Issuer == snap.issuer},
		{"uid", claims.UID == snap.uid},
		{"kind", claims.Kind == snap.kind},
		{"oid", claims.OwnerID == snap.ownerID},
		{"usr", claims.Username == snap.username},
		{"eml", claims.Email == snap.email},
		{"roles", slices.Equal(claims.Roles, snap.roles)},
		{"aud", slices.Equal([]string(claims.RegisteredClaims.Audience), snap.audience)},
		{"iat", sameNumericDate(claims.RegisteredClaims.IssuedAt, snap.issuedAt)},
		{"exp", sameNumericDate(claims.RegisteredClaims.ExpiresAt, snap.expiresAt)},
	}

	for _, c := range checks {
		if !c.same {
			return immutableClaimViolation(c.field)
		}
	}
	return nil
}

func sameNumericDate(date *jwt.NumericDate, expected time.Time) bool {
	if date == nil {
		return expected.IsZero()
	}
	return date.Time.Equal(expected)
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
