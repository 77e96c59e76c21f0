package accounts

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/sync/singleflight"
)

const refreshTokenBytes = 32

// IssuedRefreshToken is the opaque value handed to the client. Only its hash
// is stored.
type IssuedRefreshToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshTokenManager keeps at most one live refresh token per identity.
type RefreshTokenManager struct {
	repo   RepositoryManager
	ttl    time.Duration
	now    Clock
	logger Logger
	group  singleflight.Group
}

type RefreshTokenOption func(*RefreshTokenManager)

// WithRefreshTokenClock injects a custom clock (useful for tests).
func WithRefreshTokenClock(clock Clock) RefreshTokenOption {
	return func(m *RefreshTokenManager) {
		m.now = normalizeClock(clock)
	}
}

func WithRefreshTokenLogger(logger Logger) RefreshTokenOption {
	return func(m *RefreshTokenManager) {
		m.logger = normalizeLogger(logger)
	}
}

func NewRefreshTokenManager(repo RepositoryManager, ttl time.Duration, opts ...RefreshTokenOption) *RefreshTokenManager {
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	m := &RefreshTokenManager{
		repo:   repo,
		ttl:    ttl,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// CreateOrRotate issues a fresh token for identity, replacing any existing
// one in place. Concurrent calls for one identity share a single write and
// all observe its result; other identities are not blocked.
func (m *RefreshTokenManager) CreateOrRotate(ctx context.Context, identity Identity) (IssuedRefreshToken, error) {
	principalID, err := uuid.Parse(identity.ID())
	if err != nil {
		return IssuedRefreshToken{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "identity id must be a uuid")
	}

	key := identityKey(identity.Username(), identity.Email())
	ch := m.group.DoChan(key, func() (any, error) {
		// the write is shared, so no single caller's cancellation may abort it
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), operationTimeout)
		defer cancel()

		now := m.now()
		token := newSecret(refreshTokenBytes)
		record := &RefreshToken{
			PrincipalID: principalID,
			Username:    identity.Username(),
			Email:       identity.Email(),
			TokenHash:   HashToken(token),
			ExpiresAt:   now.Add(m.ttl),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return m.repo.RefreshTokens().UpsertTx(ctx, tx, record)
		})
		if err != nil {
			return nil, err
		}
		return IssuedRefreshToken{Token: token, ExpiresAt: record.ExpiresAt}, nil
	})

	select {
	case <-ctx.Done():
		return IssuedRefreshToken{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "refresh token issue cancelled")
	case res := <-ch:
		if res.Err != nil {
			return IssuedRefreshToken{}, asRichError(res.Err, "failed to store refresh token")
		}
		if res.Shared {
			m.logger.Debug("refresh token issue shared", "username", identity.Username())
		}
		return res.Val.(IssuedRefreshToken), nil
	}
}

// Verify resolves token to its stored record. An expired record is deleted
// before ErrTokenExpired is returned, so the next call sees ErrTokenNotFound.
func (m *RefreshTokenManager) Verify(ctx context.Context, token string) (*RefreshToken, error) {
	if token == "" {
		return nil, ErrTokenNotFound
	}

	hash := HashToken(token)
	db := m.repo.DB()
	record, err := m.repo.RefreshTokens().GetByHashTx(ctx, db, hash)
	if err != nil {
		return nil, asRichError(err, "failed to load refresh token")
	}

	if record.Expired(m.now()) {
		if _, err := m.repo.RefreshTokens().DeleteByHashTx(ctx, db, hash); err != nil {
			m.logger.Error("failed to delete expired refresh token", "username", record.Username, "error", err)
		}
		return nil, ErrTokenExpired
	}

	return record, nil
}

// ResolveIdentity verifies token and reloads the owner or worker it was
// issued to. A token whose principal is gone is dropped.
func (m *RefreshTokenManager) ResolveIdentity(ctx context.Context, token string) (*Principal, error) {
	record, err := m.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	db := m.repo.DB()
	p, err := m.repo.Principals().GetByIdentityTx(ctx, db, record.Username, record.Email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			if _, err := m.repo.RefreshTokens().DeleteByHashTx(ctx, db, record.TokenHash); err != nil {
				m.logger.Error("failed to delete orphaned refresh token", "username", record.Username, "error", err)
			}
			return nil, ErrTokenNotFound
		}
		return nil, asRichError(err, "failed to resolve refresh token identity")
	}
	return p, nil
}

// Rotate replaces previous with a fresh value. Only one of several concurrent
// rotations of the same token succeeds; the others get ErrTokenNotFound.
func (m *RefreshTokenManager) Rotate(ctx context.Context, previous string) (IssuedRefreshToken, error) {
	now := m.now()
	token := newSecret(refreshTokenBytes)
	expiresAt := now.Add(m.ttl)

	var ok bool
	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		ok, err = m.repo.RefreshTokens().RotateTx(ctx, tx, HashToken(previous), HashToken(token), expiresAt, now)
		return err
	})
	if err != nil {
		return IssuedRefreshToken{}, asRichError(err, "failed to rotate refresh token")
	}
	if !ok {
		return IssuedRefreshToken{}, ErrTokenNotFound
	}
	return IssuedRefreshToken{Token: token, ExpiresAt: expiresAt}, nil
}

// Revoke deletes token. Unknown tokens are ignored.
func (m *RefreshTokenManager) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := m.repo.RefreshTokens().DeleteByHashTx(ctx, m.repo.DB(), HashToken(token))
	if err != nil {
		return false, asRichError(err, "failed to revoke refresh token")
	}
	return ok, nil
}

func identityKey(username, email string) string {
	return username + "\x00" + email
}
