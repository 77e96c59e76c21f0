package accounts_test

import (
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectUUID(t *testing.T) {
	id := uuid.New()

	got, err := accounts.SubjectUUID(accounts.SessionClaims{Subject: id.String()})
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.True(t, accounts.HasSubjectUUID(accounts.SessionClaims{Subject: id.String()}))

	_, err = accounts.SubjectUUID(accounts.SessionClaims{Subject: "ajay"})
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	assert.False(t, accounts.HasSubjectUUID(accounts.SessionClaims{}))
}
