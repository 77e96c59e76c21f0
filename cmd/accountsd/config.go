package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/httpapi"
	gconfig "github.com/goliatone/go-config/config"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
)

// Secrets are never committed to config/app.json, they come from the
// environment (or the dotenv file) and win over the file.
const (
	envSigningKey    = "ACCOUNTS_SIGNING_KEY"
	envDatabaseDSN   = "ACCOUNTS_DATABASE_DSN"
	envRedisPassword = "ACCOUNTS_REDIS_PASSWORD"
)

type daemonConfig struct {
	Accounts  AccountsConfig `koanf:"accounts" json:"accounts"`
	Server    ServerConfig   `koanf:"server" json:"server"`
	Database  DatabaseConfig `koanf:"database" json:"database"`
	Redis     RedisConfig    `koanf:"redis" json:"redis"`
	Kafka     KafkaConfig    `koanf:"kafka" json:"kafka"`
	SeedRoles []string       `koanf:"seed_roles" json:"seed_roles"`
}

type AccountsConfig struct {
	SigningKey                string   `koanf:"signing_key" json:"-"`
	Issuer                    string   `koanf:"issuer" json:"issuer"`
	Audience                  []string `koanf:"audience" json:"audience"`
	TokenExpirationExpression string   `koanf:"token_expiration" json:"token_expiration"`
	RefreshTokenTTLExpression string   `koanf:"refresh_token_ttl" json:"refresh_token_ttl"`
	ResetTokenTTLExpression   string   `koanf:"reset_token_ttl" json:"reset_token_ttl"`
	VerificationCodeSize      int      `koanf:"verification_code_size" json:"verification_code_size"`
	BcryptCost                int      `koanf:"bcrypt_cost" json:"bcrypt_cost"`
	MinPasswordLength         int      `koanf:"min_password_length" json:"min_password_length"`
	OwnerRole                 string   `koanf:"owner_role" json:"owner_role"`
	WorkerRole                string   `koanf:"worker_role" json:"worker_role"`
}

type ServerConfig struct {
	ListenAddr                string          `koanf:"listen_addr" json:"listen_addr"`
	MetricsPath               string          `koanf:"metrics_path" json:"metrics_path"`
	ShutdownTimeoutExpression string          `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	AdminRoles                []string        `koanf:"admin_roles" json:"admin_roles"`
	RateLimit                 RateLimitConfig `koanf:"rate_limit" json:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"rps" json:"rps"`
	Burst             int     `koanf:"burst" json:"burst"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn" json:"-"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr"`
	Password string `koanf:"password" json:"-"`
	DB       int    `koanf:"db" json:"db"`
}

type KafkaConfig struct {
	Brokers           []string `koanf:"brokers" json:"brokers"`
	NotificationTopic string   `koanf:"notification_topic" json:"notification_topic"`
	ActivityTopic     string   `koanf:"activity_topic" json:"activity_topic"`
}

func defaultConfig() *daemonConfig {
	opts := accounts.DefaultOptions("")
	return &daemonConfig{
		Accounts: AccountsConfig{
			Issuer:                    opts.Issuer,
			TokenExpirationExpression: opts.TokenExpiration.String(),
			RefreshTokenTTLExpression: opts.RefreshTokenTTL.String(),
			ResetTokenTTLExpression:   opts.ResetTokenTTL.String(),
			VerificationCodeSize:      opts.VerificationCodeSize,
			BcryptCost:                opts.BcryptCost,
			MinPasswordLength:         opts.MinPasswordLength,
			OwnerRole:                 opts.OwnerRole,
			WorkerRole:                opts.WorkerRole,
		},
		Server: ServerConfig{
			ListenAddr:                ":8080",
			MetricsPath:               "/metrics",
			ShutdownTimeoutExpression: "10s",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: httpapi.DefaultRateLimit.RequestsPerSecond,
				Burst:             httpapi.DefaultRateLimit.Burst,
			},
		},
		Database: DatabaseConfig{
			DSN: "file:accounts.db?cache=shared",
		},
	}
}

// loadConfig overlays config/app.json on the defaults, then the secrets
// from the environment. A missing dotenv file is not an error.
func loadConfig(ctx context.Context, envFile string, lgr *glog.BaseLogger) (*daemonConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "Notice: %s not loaded, using environment only\n", envFile)
		}
	}

	defaults := defaultConfig()
	defaults.applyEnv(os.LookupEnv)

	container := gconfig.New(defaults).WithLogger(lgr.GetLogger("config"))
	if err := container.Load(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to load config").
			WithTextCode("INVALID_CONFIG")
	}

	cfg := container.Raw()
	cfg.applyEnv(os.LookupEnv)
	cfg.fillRoles()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *daemonConfig) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(envSigningKey, &c.Accounts.SigningKey)
	set(envDatabaseDSN, &c.Database.DSN)
	set(envRedisPassword, &c.Redis.Password)
}

// fillRoles derives the role lists left empty from the configured owner
// and worker roles.
func (c *daemonConfig) fillRoles() {
	if len(c.Server.AdminRoles) == 0 {
		c.Server.AdminRoles = []string{accounts.AdminRole}
	}
	if len(c.SeedRoles) == 0 {
		c.SeedRoles = []string{accounts.AdminRole, c.Accounts.OwnerRole, c.Accounts.WorkerRole}
	}
}

func (c *daemonConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Database),
	); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid config").
			WithTextCode("INVALID_CONFIG")
	}
	opts, err := c.Accounts.Options()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid accounts config").
			WithTextCode("INVALID_CONFIG")
	}
	return opts.Validate()
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.ListenAddr, validation.Required),
		validation.Field(&s.MetricsPath, validation.Required),
		validation.Field(&s.ShutdownTimeoutExpression, validation.Required, validation.By(isDuration)),
	)
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.DSN, validation.Required),
	)
}

// Options converts the section into accounts.Options.
func (a AccountsConfig) Options() (accounts.Options, error) {
	opts := accounts.DefaultOptions(a.SigningKey)
	opts.Issuer = a.Issuer
	opts.Audience = a.Audience
	opts.VerificationCodeSize = a.VerificationCodeSize
	opts.BcryptCost = a.BcryptCost
	opts.MinPasswordLength = a.MinPasswordLength
	opts.OwnerRole = a.OwnerRole
	opts.WorkerRole = a.WorkerRole

	durations := []struct {
		name string
		expr string
		dst  *time.Duration
	}{
		{"token_expiration", a.TokenExpirationExpression, &opts.TokenExpiration},
		{"refresh_token_ttl", a.RefreshTokenTTLExpression, &opts.RefreshTokenTTL},
		{"reset_token_ttl", a.ResetTokenTTLExpression, &opts.ResetTokenTTL},
	}
	for _, d := range durations {
		dur, err := time.ParseDuration(d.expr)
		if err != nil {
			return opts, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = dur
	}
	return opts, nil
}

// MustOptions is only safe after Validate.
func (a AccountsConfig) MustOptions() accounts.Options {
	opts, err := a.Options()
	if err != nil {
		panic(fmt.Sprintf("unable to build accounts options: %v", err))
	}
	return opts
}

func (s ServerConfig) GetShutdownTimeout() time.Duration {
	dur, err := time.ParseDuration(s.ShutdownTimeoutExpression)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", s.ShutdownTimeoutExpression),
		)
	}
	return dur
}

func (s ServerConfig) GetRateLimit() httpapi.RateLimitConfig {
	return httpapi.RateLimitConfig{
		RequestsPerSecond: s.RateLimit.RequestsPerSecond,
		Burst:             s.RateLimit.Burst,
		IdleTTL:           httpapi.DefaultRateLimit.IdleTTL,
	}
}

func isDuration(value any) error {
	s, _ := value.(string)
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration: %w", err)
	}
	return nil
}

// newLogger is built before the config is loaded, so verbosity comes from
// the command line.
func newLogger(verbose bool) *glog.BaseLogger {
	level := glog.Info
	if verbose {
		level = glog.Trace
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("accountsd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
}
