package accounts_test

import (
	"net/http"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		err      *goerrors.Error
		textCode string
		status   int
	}{
		{accounts.ErrInvalidCredentials, accounts.TextCodeInvalidCredentials, http.StatusUnauthorized},
		{accounts.ErrAccountInactive, accounts.TextCodeAccountInactive, http.StatusForbidden},
		{accounts.ErrAlreadyExists, accounts.TextCodeAlreadyExists, http.StatusConflict},
		{accounts.ErrAlreadyVerified, accounts.TextCodeAlreadyVerified, http.StatusBadRequest},
		{accounts.ErrAlreadyDeleted, accounts.TextCodeAlreadyDeleted, http.StatusConflict},
		{accounts.ErrNotDeleted, accounts.TextCodeNotDeleted, http.StatusConflict},
		{accounts.ErrNotYetSoftDeleted, accounts.TextCodeNotYetSoftDeleted, http.StatusConflict},
		{accounts.ErrEmptyRecycleBin, accounts.TextCodeEmptyRecycleBin, http.StatusNotFound},
		{accounts.ErrTokenNotFound, accounts.TextCodeTokenNotFound, http.StatusUnauthorized},
		{accounts.ErrTokenExpired, accounts.TextCodeTokenExpired, http.StatusUnauthorized},
		{accounts.ErrRoleNotFound, accounts.TextCodeRoleNotFound, http.StatusNotFound},
		{accounts.ErrTooManyAttempts, accounts.TextCodeTooManyAttempts, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.textCode, func(t *testing.T) {
			assert.Equal(t, tt.textCode, tt.err.TextCode)
			assert.Equal(t, tt.status, tt.err.Code)
		})
	}
}
