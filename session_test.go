package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterVerifyLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, code := env.register(t, "ajay", "p1")

	_, err := env.sessions.Login(ctx, "ajay", "p1")
	assert.ErrorIs(t, err, accounts.ErrAccountInactive)

	ok, err := env.lifecycle.Verify(ctx, p.ID, "not-the-code")
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := env.lifecycle.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.StatePendingVerification, pending.State())

	ok, err = env.lifecycle.Verify(ctx, p.ID, code)
	require.NoError(t, err)
	assert.True(t, ok)

	session, err := env.sessions.Login(ctx, "ajay", "p1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, p.ID.String(), session.Profile.ID)
	assert.Equal(t, []string{accounts.DefaultOwnerRole}, session.Profile.Roles)

	claims, err := env.sessions.Validate(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, p.ID.String(), claims.Subject)
	assert.Equal(t, accounts.KindOwner, claims.Kind)
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeOwner(t, "ajay", "p1")

	tests := []struct {
		name       string
		identifier string
		password   string
		want       error
	}{
		{name: "wrong password", identifier: "ajay", password: "nope", want: accounts.ErrInvalidCredentials},
		{name: "unknown username", identifier: "ghost", password: "p1", want: accounts.ErrInvalidCredentials},
		{name: "unknown email", identifier: "ghost@x.com", password: "p1", want: accounts.ErrInvalidCredentials},
		{name: "empty identifier", identifier: "", password: "p1", want: accounts.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sessions.Login(ctx, tt.identifier, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Contains(t, env.sink.Types(), accounts.ActivityEventLoginFailure)
}

func TestLoginByEmailAndID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.activeOwner(t, "ajay", "p1")

	for _, identifier := range []string{"ajay@x.com", "AJAY@X.COM", p.ID.String()} {
		_, err := env.sessions.Login(ctx, identifier, "p1")
		assert.NoError(t, err, identifier)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeOwner(t, "ajay", "p1")

	session, err := env.sessions.Login(ctx, "ajay", "p1")
	require.NoError(t, err)

	refreshed, err := env.sessions.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.Equal(t, session.Profile.ID, refreshed.Profile.ID)

	_, err = env.sessions.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)

	_, err = env.sessions.Refresh(ctx, refreshed.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshReloadsRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.activeOwner(t, "ajay", "p1")

	session, err := env.sessions.Login(ctx, "ajay", "p1")
	require.NoError(t, err)

	editor, err := env.roles.Create(ctx, accounts.SystemActor, "ROLE_EDITOR")
	require.NoError(t, err)
	_, err = env.roles.Assign(ctx, accounts.SystemActor, p.ID, []uuid.UUID{editor.ID})
	require.NoError(t, err)

	refreshed, err := env.sessions.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_EDITOR", accounts.DefaultOwnerRole}, refreshed.Profile.Roles)

	claims, err := env.sessions.Validate(refreshed.AccessToken)
	require.NoError(t, err)
	assert.True(t, accounts.Permits(claims, "ROLE_EDITOR"))
}

func TestRefreshDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.activeOwner(t, "owner", "pw")
	worker := env.activeWorker(t, owner, "worker", "pw")

	session, err := env.sessions.Login(ctx, "worker", "pw")
	require.NoError(t, err)

	_, err = env.lifecycle.SoftDelete(ctx, ownerActor(owner), worker.ID)
	require.NoError(t, err)

	_, err = env.sessions.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)

	_, err = env.sessions.Login(ctx, "worker", "pw")
	assert.ErrorIs(t, err, accounts.ErrAccountInactive)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.activeOwner(t, "ajay", "p1")

	session, err := env.sessions.Login(ctx, "ajay", "p1")
	require.NoError(t, err)

	require.NoError(t, env.sessions.Logout(ctx, session.RefreshToken))
	_, err = env.sessions.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, accounts.ErrTokenNotFound)

	assert.NoError(t, env.sessions.Logout(ctx, session.RefreshToken))
	assert.NoError(t, env.sessions.Logout(ctx, ""))
	assert.Contains(t, env.sink.Types(), accounts.ActivityEventLogout)
}

func TestDeactivatedRoleAuthenticatesWithoutAuthority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.activeOwner(t, "admin", "pw")

	admin, err := env.roles.Create(ctx, accounts.SystemActor, accounts.AdminRole)
	require.NoError(t, err)
	_, err = env.roles.Replace(ctx, accounts.SystemActor, p.ID, []uuid.UUID{admin.ID})
	require.NoError(t, err)

	session, err := env.sessions.Login(ctx, "admin", "pw")
	require.NoError(t, err)
	claims, err := env.sessions.Validate(session.AccessToken)
	require.NoError(t, err)
	assert.True(t, accounts.Permits(claims, accounts.AdminRole))

	_, err = env.roles.Deactivate(ctx, accounts.SystemActor, admin.ID)
	require.NoError(t, err)

	session, err = env.sessions.Login(ctx, "admin", "pw")
	require.NoError(t, err)
	claims, err = env.sessions.Validate(session.AccessToken)
	require.NoError(t, err)
	assert.False(t, accounts.Permits(claims, accounts.AdminRole))
	assert.Empty(t, claims.Roles)
}
