package accounts_test

import (
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestProfileOf(t *testing.T) {
	assert.Equal(t, accounts.Profile{}, accounts.ProfileOf(nil, nil))

	ownerID := uuid.New()
	p := &accounts.Principal{
		ID:       uuid.New(),
		Kind:     accounts.KindWorker,
		OwnerID:  &ownerID,
		Name:     "Worker",
		Username: "worker",
		Email:    "worker@x.com",
		Active:   true,
	}

	profile := accounts.ProfileOf(p, nil)
	assert.Equal(t, ownerID.String(), profile.OwnerID)
	assert.NotNil(t, profile.Roles)
	assert.Empty(t, profile.Roles)
	assert.True(t, profile.Active)
}

func TestPrincipalIdentity(t *testing.T) {
	p := &accounts.Principal{ID: uuid.New(), Kind: accounts.KindOwner, Username: "owner", Email: "owner@x.com"}

	id := p.Identity()
	assert.Equal(t, p.ID.String(), id.ID())
	assert.Equal(t, "owner", id.Username())
	assert.Equal(t, "owner@x.com", id.Email())
	assert.Equal(t, accounts.KindOwner, id.Kind())

	var missing *accounts.Principal
	assert.Empty(t, missing.Identity().ID())
	assert.False(t, missing.IsOwner())
}

func TestRoleEffective(t *testing.T) {
	assert.True(t, (&accounts.Role{Active: true}).Effective())
	assert.False(t, (&accounts.Role{Active: false}).Effective())
	assert.False(t, (&accounts.Role{Active: true, Deleted: true}).Effective())
	assert.False(t, (*accounts.Role)(nil).Effective())
}
