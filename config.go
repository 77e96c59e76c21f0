package accounts

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiration      = time.Hour
	DefaultRefreshTokenTTL      = 48 * time.Hour
	DefaultResetTokenTTL        = 30 * time.Minute
	DefaultVerificationCodeSize = 16
	DefaultMinPasswordLength    = 8
	DefaultOwnerRole            = "ROLE_NORMAL"
	DefaultWorkerRole           = "ROLE_WORKER"
	AdminRole                   = "ROLE_ADMIN"
)

// Config exposes the settings the core services need.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetRefreshTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetVerificationCodeSize() int
	GetBcryptCost() int
	GetMinPasswordLength() int
	GetOwnerRole() string
	GetWorkerRole() string
}

// Options is the default Config implementation.
type Options struct {
	SigningKey           string        `json:"signing_key"`
	TokenExpiration      time.Duration `json:"token_expiration"`
	Issuer               string        `json:"issuer"`
	Audience             []string      `json:"audience"`
	RefreshTokenTTL      time.Duration `json:"refresh_token_ttl"`
	ResetTokenTTL        time.Duration `json:"reset_token_ttl"`
	VerificationCodeSize int           `json:"verification_code_size"`
	BcryptCost           int           `json:"bcrypt_cost"`
	MinPasswordLength    int           `json:"min_password_length"`
	OwnerRole            string        `json:"owner_role"`
	WorkerRole           string        `json:"worker_role"`
}

var _ Config = Options{}

// DefaultOptions returns Options with every optional field filled in.
func DefaultOptions(signingKey string) Options {
	return Options{
		SigningKey:           signingKey,
		TokenExpiration:      DefaultTokenExpiration,
		Issuer:               "go-accounts",
		RefreshTokenTTL:      DefaultRefreshTokenTTL,
		ResetTokenTTL:        DefaultResetTokenTTL,
		VerificationCodeSize: DefaultVerificationCodeSize,
		BcryptCost:           bcrypt.DefaultCost,
		MinPasswordLength:    DefaultMinPasswordLength,
		OwnerRole:            DefaultOwnerRole,
		WorkerRole:           DefaultWorkerRole,
	}
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&o.TokenExpiration, validation.Required),
		validation.Field(&o.RefreshTokenTTL, validation.Required),
		validation.Field(&o.ResetTokenTTL, validation.Required),
		validation.Field(&o.VerificationCodeSize, validation.Required, validation.Min(8)),
		validation.Field(&o.BcryptCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
		validation.Field(&o.MinPasswordLength, validation.Min(0), validation.Max(72)),
		validation.Field(&o.OwnerRole, validation.Required),
		validation.Field(&o.WorkerRole, validation.Required),
	)
}

func (o Options) GetSigningKey() string { return o.SigningKey }

func (o Options) GetTokenExpiration() time.Duration {
	if o.TokenExpiration <= 0 {
		return DefaultTokenExpiration
	}
	return o.TokenExpiration
}

func (o Options) GetIssuer() string { return o.Issuer }

func (o Options) GetAudience() []string { return o.Audience }

func (o Options) GetRefreshTokenTTL() time.Duration {
	if o.RefreshTokenTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return o.RefreshTokenTTL
}

func (o Options) GetResetTokenTTL() time.Duration {
	if o.ResetTokenTTL <= 0 {
		return DefaultResetTokenTTL
	}
	return o.ResetTokenTTL
}

func (o Options) GetVerificationCodeSize() int {
	if o.VerificationCodeSize <= 0 {
		return DefaultVerificationCodeSize
	}
	return o.VerificationCodeSize
}

func (o Options) GetBcryptCost() int {
	if o.BcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return o.BcryptCost
}

func (o Options) GetMinPasswordLength() int {
	if o.MinPasswordLength <= 0 {
		return DefaultMinPasswordLength
	}
	return o.MinPasswordLength
}

func (o Options) GetOwnerRole() string {
	if o.OwnerRole == "" {
		return DefaultOwnerRole
	}
	return o.OwnerRole
}

func (o Options) GetWorkerRole() string {
	if o.WorkerRole == "" {
		return DefaultWorkerRole
	}
	return o.WorkerRole
}
