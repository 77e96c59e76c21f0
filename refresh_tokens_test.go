package accounts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrRotateReplacesPreviousToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	first, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)
	second, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)

	_, err = env.refresh.Verify(ctx, first.Token)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)

	record, err := env.refresh.Verify(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, record.PrincipalID)
	assert.Equal(t, "owner", record.Username)
	assert.Equal(t, "owner@x.com", record.Email)
	assert.Equal(t, accounts.HashToken(second.Token), record.TokenHash)
}

func TestCreateOrRotateConcurrentSameIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	const callers = 8
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
			assert.NoError(t, err)
			tokens[i] = issued.Token
		}()
	}
	wg.Wait()

	valid := 0
	for _, token := range tokens {
		if _, err := env.refresh.Verify(ctx, token); err == nil {
			valid++
		}
	}
	assert.GreaterOrEqual(t, valid, 1)

	count, err := env.db.NewSelect().
		Model((*accounts.RefreshToken)(nil)).
		Where("principal_id = ?", owner.ID).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one row per identity")
}

func TestCreateOrRotateCancelledCallerDoesNotFailOthers(t *testing.T) {
	env := newTestEnv(t)
	owner := env.activeOwner(t, "owner", "pw")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.refresh.CreateOrRotate(cancelled, owner.Identity())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	ctx := context.Background()
	issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	record, err := env.refresh.Verify(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, record.PrincipalID)
}

func TestVerifyExpiredTokenIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	env.clock.Advance(env.cfg.GetRefreshTokenTTL() + time.Minute)

	_, err = env.refresh.Verify(ctx, issued.Token)
	assert.ErrorIs(t, err, accounts.ErrTokenExpired)

	_, err = env.refresh.Verify(ctx, issued.Token)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)
}

func TestRotateInvalidatesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	rotated, err := env.refresh.Rotate(ctx, issued.Token)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Token, rotated.Token)

	_, err = env.refresh.Verify(ctx, issued.Token)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)

	_, err = env.refresh.Rotate(ctx, issued.Token)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)
}

func TestConcurrentRotateHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	const callers = 6
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.refresh.Rotate(ctx, issued.Token)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, accounts.ErrTokenNotFound):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	ok, err := env.refresh.Revoke(ctx, issued.Token)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.refresh.Revoke(ctx, issued.Token)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = env.refresh.Revoke(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")

	issued, err := env.refresh.CreateOrRotate(ctx, owner.Identity())
	require.NoError(t, err)

	p, err := env.refresh.ResolveIdentity(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, p.ID)
}
