package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "old-pw")
	actor := ownerActor(owner)

	session, err := env.sessions.Login(ctx, "owner", "old-pw")
	require.NoError(t, err)

	err = env.lifecycle.ChangePassword(ctx, actor, owner.ID, "wrong", "new-pw")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	other := env.activeOwner(t, "other", "pw")
	err = env.lifecycle.ChangePassword(ctx, ownerActor(other), owner.ID, "old-pw", "new-pw")
	assert.ErrorIs(t, err, accounts.ErrNotOwner)

	require.NoError(t, env.lifecycle.ChangePassword(ctx, actor, owner.ID, "old-pw", "new-pw"))

	_, err = env.sessions.Login(ctx, "owner", "old-pw")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	_, err = env.sessions.Login(ctx, "owner", "new-pw")
	assert.NoError(t, err)

	_, err = env.sessions.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound, "password change ends the refresh session")

	_, notified := env.notes.Last(accounts.NotificationPasswordChanged, owner.ID)
	assert.True(t, notified)
}

func TestChangePasswordInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.register(t, "pending", "pw")

	err := env.lifecycle.ChangePassword(context.Background(), accounts.SystemActor, p.ID, "pw", "next")
	assert.ErrorIs(t, err, accounts.ErrAccountInactive)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "old-pw")

	require.NoError(t, env.lifecycle.InitiatePasswordReset(ctx, "owner@x.com"))
	n, ok := env.notes.Last(accounts.NotificationPasswordReset, owner.ID)
	require.True(t, ok)
	require.NotEmpty(t, n.Code)
	require.NotNil(t, n.ExpiresAt)

	assert.ErrorIs(t, env.lifecycle.FinalizePasswordReset(ctx, "bogus", "new-pw"), accounts.ErrResetTokenInvalid)

	require.NoError(t, env.lifecycle.FinalizePasswordReset(ctx, n.Code, "new-pw"))
	_, err := env.sessions.Login(ctx, "owner", "new-pw")
	require.NoError(t, err)

	err = env.lifecycle.FinalizePasswordReset(ctx, n.Code, "again-pw")
	assert.ErrorIs(t, err, accounts.ErrResetTokenInvalid, "reset tokens are single use")
}

func TestPasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "old-pw")

	require.NoError(t, env.lifecycle.InitiatePasswordReset(ctx, "owner"))
	n, ok := env.notes.Last(accounts.NotificationPasswordReset, owner.ID)
	require.True(t, ok)

	env.clock.Advance(env.cfg.GetResetTokenTTL() + time.Second)

	err := env.lifecycle.FinalizePasswordReset(ctx, n.Code, "new-pw")
	assert.ErrorIs(t, err, accounts.ErrResetTokenInvalid)
}

func TestPasswordResetUnknownIdentifierIsSilent(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.lifecycle.InitiatePasswordReset(context.Background(), "ghost@x.com"))
	assert.Empty(t, env.notes.sent)
}

func TestPasswordResetValidatesNewPassword(t *testing.T) {
	env := newTestEnv(t)

	err := env.lifecycle.FinalizePasswordReset(context.Background(), "token", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, accounts.ErrResetTokenInvalid)
}
