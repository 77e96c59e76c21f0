package accounts_test

import (
	"context"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	role, err := env.roles.Create(ctx, accounts.SystemActor, "  ROLE_AUDITOR ")
	require.NoError(t, err)
	assert.Equal(t, "ROLE_AUDITOR", role.Name)
	assert.True(t, role.Effective())

	_, err = env.roles.Create(ctx, accounts.SystemActor, "ROLE_AUDITOR")
	assert.ErrorIs(t, err, accounts.ErrRoleExists)

	_, err = env.roles.Create(ctx, accounts.SystemActor, "   ")
	require.Error(t, err)
	var rich *goerrors.Error
	require.True(t, goerrors.As(err, &rich))
	assert.Equal(t, goerrors.CategoryValidation, rich.Category)

	renamed := "ROLE_REVIEWER"
	updated, err := env.roles.Update(ctx, accounts.SystemActor, role.ID, accounts.RoleUpdate{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, renamed, updated.Name)

	got, err := env.roles.Get(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, renamed, got.Name)

	list, err := env.roles.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, accounts.RoleNames(list), renamed)

	require.NoError(t, env.roles.Delete(ctx, accounts.SystemActor, role.ID))
	list, err = env.roles.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, accounts.RoleNames(list), renamed)

	_, err = env.roles.Create(ctx, accounts.SystemActor, renamed)
	assert.ErrorIs(t, err, accounts.ErrRoleExists, "deleted roles keep their name")

	_, err = env.roles.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, accounts.ErrRoleNotFound)
	_, err = env.roles.Activate(ctx, accounts.SystemActor, uuid.New())
	assert.ErrorIs(t, err, accounts.ErrRoleNotFound)
}

func TestRoleAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.activeOwner(t, "owner", "pw")

	editor, err := env.roles.Create(ctx, accounts.SystemActor, "ROLE_EDITOR")
	require.NoError(t, err)
	viewer, err := env.roles.Create(ctx, accounts.SystemActor, "ROLE_VIEWER")
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() ([]*accounts.Role, error)
		want []string
	}{
		{
			name: "assign keeps existing roles",
			run: func() ([]*accounts.Role, error) {
				return env.roles.Assign(ctx, accounts.SystemActor, p.ID, []uuid.UUID{editor.ID, editor.ID})
			},
			want: []string{"ROLE_EDITOR", accounts.DefaultOwnerRole},
		},
		{
			name: "assign is idempotent",
			run: func() ([]*accounts.Role, error) {
				return env.roles.Assign(ctx, accounts.SystemActor, p.ID, []uuid.UUID{editor.ID})
			},
			want: []string{"ROLE_EDITOR", accounts.DefaultOwnerRole},
		},
		{
			name: "remove drops only named roles",
			run: func() ([]*accounts.Role, error) {
				return env.roles.Remove(ctx, accounts.SystemActor, p.ID, []uuid.UUID{editor.ID, viewer.ID})
			},
			want: []string{accounts.DefaultOwnerRole},
		},
		{
			name: "replace overwrites the set",
			run: func() ([]*accounts.Role, error) {
				return env.roles.Replace(ctx, accounts.SystemActor, p.ID, []uuid.UUID{viewer.ID})
			},
			want: []string{"ROLE_VIEWER"},
		},
		{
			name: "replace with nothing clears",
			run: func() ([]*accounts.Role, error) {
				return env.roles.Replace(ctx, accounts.SystemActor, p.ID, nil)
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, accounts.RoleNames(got))
		})
	}
}

func TestRoleAssignmentUnknownIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.activeOwner(t, "owner", "pw")

	editor, err := env.roles.Create(ctx, accounts.SystemActor, "ROLE_EDITOR")
	require.NoError(t, err)

	_, err = env.roles.Assign(ctx, accounts.SystemActor, p.ID, []uuid.UUID{editor.ID, uuid.New()})
	assert.ErrorIs(t, err, accounts.ErrRoleNotFound)

	roles, err := env.roles.EffectiveRoles(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{accounts.DefaultOwnerRole}, roles, "failed assignment changes nothing")

	_, err = env.roles.Assign(ctx, accounts.SystemActor, uuid.New(), []uuid.UUID{editor.ID})
	assert.ErrorIs(t, err, accounts.ErrPrincipalNotFound)
}

func TestDeactivatedRoleKeepsAssignment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.activeOwner(t, "owner", "pw")

	editor, err := env.roles.Create(ctx, accounts.SystemActor, "ROLE_EDITOR")
	require.NoError(t, err)
	_, err = env.roles.Assign(ctx, accounts.SystemActor, p.ID, []uuid.UUID{editor.ID})
	require.NoError(t, err)

	_, err = env.roles.Deactivate(ctx, accounts.SystemActor, editor.ID)
	require.NoError(t, err)

	effective, err := env.roles.EffectiveRoles(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{accounts.DefaultOwnerRole}, effective)

	loaded, err := env.lifecycle.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ROLE_EDITOR", accounts.DefaultOwnerRole}, accounts.RoleNames(loaded.Roles))

	_, err = env.roles.Activate(ctx, accounts.SystemActor, editor.ID)
	require.NoError(t, err)
	effective, err = env.roles.EffectiveRoles(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_EDITOR", accounts.DefaultOwnerRole}, effective)

	assert.Contains(t, env.sink.Types(), accounts.ActivityEventRoleChanged)
	assert.Contains(t, env.sink.Types(), accounts.ActivityEventRolesChanged)
}

func TestRegisterRevivesDeletedDefaultRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.activeOwner(t, "first", "pw")

	held, err := env.roles.EffectiveRoles(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, []string{accounts.DefaultOwnerRole}, held)

	list, err := env.roles.List(ctx)
	require.NoError(t, err)
	var normal *accounts.Role
	for _, r := range list {
		if r.Name == accounts.DefaultOwnerRole {
			normal = r
		}
	}
	require.NotNil(t, normal)
	require.NoError(t, env.roles.Delete(ctx, accounts.SystemActor, normal.ID))

	_, err = env.repo.Roles().GetByNameTx(ctx, env.db, accounts.DefaultOwnerRole)
	assert.ErrorIs(t, err, accounts.ErrRoleNotFound)

	second := env.activeOwner(t, "second", "pw")
	effective, err := env.roles.EffectiveRoles(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{accounts.DefaultOwnerRole}, effective)

	revived, err := env.roles.Get(ctx, normal.ID)
	require.NoError(t, err)
	assert.True(t, revived.Effective())

	list, err = env.roles.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, accounts.RoleNames(list), accounts.DefaultOwnerRole)
}
