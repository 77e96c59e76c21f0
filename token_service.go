package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SignedToken is an access token and its expiry.
type SignedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer signs stateless HS256 access tokens. Tokens are not persisted
// and can only be revoked by expiry or by rotating the signing key.
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	decorator  ClaimsDecorator
	logger     Logger
	now        Clock
}

type TokenIssuerOption func(*TokenIssuer)

// WithClaimsDecorator registers a decorator invoked before signing.
func WithClaimsDecorator(d ClaimsDecorator) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.decorator = d
	}
}

func WithTokenIssuerLogger(logger Logger) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.logger = normalizeLogger(logger)
	}
}

// WithTokenIssuerClock injects a custom clock (useful for tests).
func WithTokenIssuerClock(clock Clock) TokenIssuerOption {
	return func(t *TokenIssuer) {
		t.now = normalizeClock(clock)
	}
}

// NewTokenIssuer creates a TokenIssuer from cfg.
func NewTokenIssuer(cfg Config, opts ...TokenIssuerOption) *TokenIssuer {
	t := &TokenIssuer{
		signingKey: []byte(cfg.GetSigningKey()),
		ttl:        cfg.GetTokenExpiration(),
		issuer:     cfg.GetIssuer(),
		audience:   jwt.ClaimStrings(cfg.GetAudience()),
		logger:     defLogger{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Issue signs claims. Roles are encoded as a sorted set, so the token only
// depends on the claim contents and the issue time.
func (t *TokenIssuer) Issue(ctx context.Context, session SessionClaims) (SignedToken, error) {
	if session.Subject == "" {
		return SignedToken{}, goerrors.New("subject is required", goerrors.CategoryBadInput)
	}

	now := t.now().Truncate(time.Second)
	expiresAt := now.Add(t.ttl)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   session.Subject,
			Audience:  t.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:      session.Subject,
		Kind:     string(session.Kind),
		OwnerID:  session.OwnerID,
		Username: session.Username,
		Email:    session.Email,
		Roles:    roleSet(session.Roles),
	}

	if t.decorator != nil {
		snapshot := captureImmutableClaims(claims)
		if err := t.decorator.Decorate(ctx, session, claims); err != nil {
			return SignedToken{}, asRichError(err, "claims decorator failed")
		}
		if err := snapshot.validate(claims); err != nil {
			return SignedToken{}, err
		}
	}

	signed, err := t.SignClaims(claims)
	if err != nil {
		return SignedToken{}, err
	}
	return SignedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (t *TokenIssuer) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and verifies an access token.
func (t *TokenIssuer) Validate(tokenString string) (SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(t.issuer))
	}
	if len(t.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(t.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			t.logger.Error("token validate encountered unexpected signing method", "alg", tk.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrTokenExpired
		}
		t.logger.Debug("access token rejected", "error", err)
		return SessionClaims{}, ErrInvalidCredentials
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return SessionClaims{}, ErrInvalidCredentials
	}
	return claims.Session(), nil
}
