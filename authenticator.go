package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/uptrace/bun"
)

// Authentication is the result of a successful credential or identity check.
type Authentication struct {
	Principal *Principal
	Claims    SessionClaims
}

// Profile returns the public profile of the authenticated principal.
func (a *Authentication) Profile() Profile {
	return ProfileOf(a.Principal, a.Claims.Roles)
}

type dummyHasher interface {
	DummyHash() string
}

// Authenticator verifies credentials and builds session claims. It only
// reads state.
type Authenticator struct {
	repo    RepositoryManager
	hasher  PasswordHasher
	sink    ActivitySink
	limiter AttemptLimiter
	logger  Logger
}

type AuthenticatorOption func(*Authenticator)

func WithAuthenticatorActivitySink(s ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		a.sink = normalizeActivitySink(s)
	}
}

// WithAuthenticatorLimiter throttles login attempts per identifier.
func WithAuthenticatorLimiter(limiter AttemptLimiter) AuthenticatorOption {
	return func(a *Authenticator) {
		a.limiter = normalizeLimiter(limiter)
	}
}

func WithAuthenticatorLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = normalizeLogger(logger)
	}
}

func NewAuthenticator(repo RepositoryManager, hasher PasswordHasher, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		repo:    repo,
		hasher:  hasher,
		sink:    noopActivitySink{},
		limiter: noopLimiter{},
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate checks identifier (username or email) and password. An unknown
// identifier and a wrong password both yield ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, password string) (*Authentication, error) {
	throttleKey := strings.ToLower(strings.TrimSpace(identifier))
	if err := a.limiter.Allow(ctx, ScopeLogin, throttleKey); err != nil {
		return nil, err
	}

	db := a.repo.DB()

	p, err := a.repo.Principals().GetByIdentifierTx(ctx, db, identifier)
	if err != nil {
		if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, asRichError(err, "failed to load account")
		}
		if d, ok := a.hasher.(dummyHasher); ok {
			_ = a.hasher.ComparePasswordAndHash(password, d.DummyHash())
		}
		a.loginFailed(ctx, "", "unknown_identifier")
		return nil, ErrInvalidCredentials
	}

	if err := a.hasher.ComparePasswordAndHash(password, p.PasswordHash); err != nil {
		a.loginFailed(ctx, p.ID.String(), "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	if !p.Active {
		a.loginFailed(ctx, p.ID.String(), "inactive")
		return nil, ErrAccountInactive
	}

	auth, err := a.authentication(ctx, db, p)
	if err != nil {
		return nil, err
	}

	if err := a.limiter.Reset(ctx, ScopeLogin, throttleKey); err != nil {
		a.logger.Warn("failed to reset login limiter", "error", err)
	}

	recordActivity(ctx, a.sink, a.logger, ActivityEvent{
		EventType:   ActivityEventLoginSuccess,
		Actor:       ActorRef{ID: p.ID.String(), Type: string(p.Kind)},
		PrincipalID: p.ID.String(),
	})
	return auth, nil
}

// ResolvePrincipal reloads the principal behind a refresh identity and
// derives claims from its current roles.
func (a *Authenticator) ResolvePrincipal(ctx context.Context, username, email string) (*Authentication, error) {
	db := a.repo.DB()
	p, err := a.repo.Principals().GetByIdentityTx(ctx, db, username, email)
	if err != nil {
		return nil, asRichError(err, "failed to resolve account")
	}
	if !p.Active {
		return nil, ErrAccountInactive
	}
	return a.authentication(ctx, db, p)
}

func (a *Authenticator) authentication(ctx context.Context, db bun.IDB, p *Principal) (*Authentication, error) {
	roles, err := a.repo.Roles().EffectiveForPrincipalTx(ctx, db, p.ID)
	if err != nil {
		return nil, asRichError(err, "failed to load roles")
	}
	p.Roles = roles
	return &Authentication{
		Principal: p,
		Claims:    NewSessionClaims(p, RoleNames(roles)),
	}, nil
}

func (a *Authenticator) loginFailed(ctx context.Context, principalID, reason string) {
	recordActivity(ctx, a.sink, a.logger, ActivityEvent{
		EventType:   ActivityEventLoginFailure,
		PrincipalID: principalID,
		Metadata:    map[string]any{"reason": reason},
	})
}
