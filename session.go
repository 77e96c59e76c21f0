package accounts

import (
	"context"
	"errors"
	"time"
)

// Session is what a client receives after login or refresh.
type Session struct {
	AccessToken      string    `json:"access_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	Profile          Profile   `json:"profile"`
}

// Sessions ties together credential checks, access token signing and refresh
// token rotation.
type Sessions struct {
	auth    *Authenticator
	issuer  *TokenIssuer
	refresh *RefreshTokenManager
	sink    ActivitySink
	logger  Logger
}

type SessionsOption func(*Sessions)

func WithSessionsActivitySink(sink ActivitySink) SessionsOption {
	return func(s *Sessions) {
		s.sink = normalizeActivitySink(sink)
	}
}

func WithSessionsLogger(logger Logger) SessionsOption {
	return func(s *Sessions) {
		s.logger = normalizeLogger(logger)
	}
}

func NewSessions(auth *Authenticator, issuer *TokenIssuer, refresh *RefreshTokenManager, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		auth:    auth,
		issuer:  issuer,
		refresh: refresh,
		sink:    noopActivitySink{},
		logger:  defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login authenticates and opens a session, replacing any refresh token the
// principal already had.
func (s *Sessions) Login(ctx context.Context, identifier, password string) (*Session, error) {
	auth, err := s.auth.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.Issue(ctx, auth.Claims)
	if err != nil {
		return nil, err
	}

	refresh, err := s.refresh.CreateOrRotate(ctx, auth.Principal.Identity())
	if err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:      access.Token,
		ExpiresAt:        access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		Profile:          auth.Profile(),
	}, nil
}

// Refresh exchanges a refresh token for a new session. Roles are reloaded
// from the store before the access token is signed, so claims never carry
// roles from the previous token.
func (s *Sessions) Refresh(ctx context.Context, token string) (*Session, error) {
	record, err := s.refresh.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	auth, err := s.auth.ResolvePrincipal(ctx, record.Username, record.Email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			if _, rerr := s.refresh.Revoke(ctx, token); rerr != nil {
				s.logger.Error("failed to revoke orphaned refresh token", "error", rerr)
			}
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	access, err := s.issuer.Issue(ctx, auth.Claims)
	if err != nil {
		return nil, err
	}

	rotated, err := s.refresh.Rotate(ctx, token)
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType:   ActivityEventTokenRefreshed,
		Actor:       ActorFromClaims(auth.Claims),
		PrincipalID: auth.Principal.ID.String(),
	})

	return &Session{
		AccessToken:      access.Token,
		ExpiresAt:        access.ExpiresAt,
		RefreshToken:     rotated.Token,
		RefreshExpiresAt: rotated.ExpiresAt,
		Profile:          auth.Profile(),
	}, nil
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *Sessions) Logout(ctx context.Context, token string) error {
	record, err := s.refresh.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) {
			return nil
		}
		return err
	}

	if _, err := s.refresh.Revoke(ctx, token); err != nil {
		return err
	}

	recordActivity(ctx, s.sink, s.logger, ActivityEvent{
		EventType:   ActivityEventLogout,
		Actor:       ActorRef{ID: record.PrincipalID.String()},
		PrincipalID: record.PrincipalID.String(),
	})
	return nil
}

// Validate checks an access token and returns its claims.
func (s *Sessions) Validate(token string) (SessionClaims, error) {
	return s.issuer.Validate(token)
}
