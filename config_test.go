package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
)

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*accounts.Options)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*accounts.Options) {}},
		{name: "short signing key", mutate: func(o *accounts.Options) { o.SigningKey = "short" }, wantErr: true},
		{name: "tiny verification code", mutate: func(o *accounts.Options) { o.VerificationCodeSize = 4 }, wantErr: true},
		{name: "bcrypt cost too high", mutate: func(o *accounts.Options) { o.BcryptCost = 40 }, wantErr: true},
		{name: "password length past bcrypt limit", mutate: func(o *accounts.Options) { o.MinPasswordLength = 100 }, wantErr: true},
		{name: "missing owner role", mutate: func(o *accounts.Options) { o.OwnerRole = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := accounts.DefaultOptions(testSigningKey)
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOptionsFallbacks(t *testing.T) {
	var opts accounts.Options

	assert.Equal(t, accounts.DefaultTokenExpiration, opts.GetTokenExpiration())
	assert.Equal(t, accounts.DefaultRefreshTokenTTL, opts.GetRefreshTokenTTL())
	assert.Equal(t, 30*time.Minute, opts.GetResetTokenTTL())
	assert.Equal(t, accounts.DefaultVerificationCodeSize, opts.GetVerificationCodeSize())
	assert.Equal(t, accounts.DefaultMinPasswordLength, opts.GetMinPasswordLength())
	assert.Equal(t, accounts.DefaultOwnerRole, opts.GetOwnerRole())
	assert.Equal(t, accounts.DefaultWorkerRole, opts.GetWorkerRole())
}
