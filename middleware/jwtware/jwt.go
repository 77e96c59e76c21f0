// Package jwtware is fiber middleware that validates bearer access tokens
// and stores the resulting accounts.SessionClaims in the request locals.
package jwtware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
)

const (
	DefaultContextKey  = "claims"
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
)

var (
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
	ErrForbidden             = errors.New("access denied: required role not held")
)

// TokenValidator turns a raw token into claims. *accounts.TokenIssuer
// implements it.
type TokenValidator interface {
	Validate(tokenString string) (accounts.SessionClaims, error)
}

// ValidationListener runs after a token is validated and before the role
// check. Returning an error rejects the request.
type ValidationListener func(c *fiber.Ctx, claims accounts.SessionClaims) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	TokenValidator TokenValidator
	ContextKey     string
	// TokenLookup is a comma separated list of source:name pairs, for
	// example "header:Authorization,cookie:access_token".
	TokenLookup string
	AuthScheme  string

	// RequiredRoles rejects tokens that hold none of the roles.
	RequiredRoles []string

	// ContextEnricher propagates claims to the request's context.Context.
	// Defaults to accounts.WithClaimsContext.
	ContextEnricher func(ctx context.Context, claims accounts.SessionClaims) context.Context

	ValidationListeners []ValidationListener
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		claims, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		for _, listener := range cfg.ValidationListeners {
			if listener == nil {
				continue
			}
			if err := listener(c, claims); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		if len(cfg.RequiredRoles) > 0 && !accounts.PermitsAny(claims, cfg.RequiredRoles...) {
			return cfg.ErrorHandler(c, ErrForbidden)
		}

		c.Locals(cfg.ContextKey, claims)
		c.SetUserContext(cfg.ContextEnricher(c.UserContext(), claims))

		return cfg.SuccessHandler(c)
	}
}

// Claims returns the claims stored by the middleware under key.
func Claims(c *fiber.Ctx, key string) (accounts.SessionClaims, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	claims, ok := c.Locals(key).(accounts.SessionClaims)
	return claims, ok
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenValidator == nil {
		panic("ACCOUNTS: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			switch {
			case errors.Is(err, ErrJWTMissingOrMalformed):
				return c.Status(fiber.StatusBadRequest).SendString(ErrJWTMissingOrMalformed.Error())
			case errors.Is(err, ErrForbidden):
				return c.Status(fiber.StatusForbidden).SendString(ErrForbidden.Error())
			}
			return c.Status(fiber.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = accounts.WithClaimsContext
	}

	return cfg
}

func (cfg *Config) getExtractors() []Extractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

// Extractor pulls a raw token out of the request.
type Extractor func(c *fiber.Ctx) (string, error)

// ExtractRawToken returns the first token any extractor finds.
func ExtractRawToken(c *fiber.Ctx, extractors []Extractor) (string, error) {
	err := ErrJWTMissingOrMalformed
	for _, extractor := range extractors {
		var raw string
		raw, err = extractor(c)
		if raw != "" && err == nil {
			return raw, nil
		}
	}
	return "", err
}

// GetExtractors parses a lookup such as "header:Authorization,query:token".
func GetExtractors(tokenLookup string, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	for _, part := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		source, name = strings.TrimSpace(source), strings.TrimSpace(name)

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "param":
			extractors = append(extractors, fromParam(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			if a == "" {
				return "", ErrJWTMissingOrMalformed
			}
			return strings.TrimSpace(a), nil
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func fromQuery(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Query(param); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func fromParam(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Params(param); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func fromCookie(name string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		if token := c.Cookies(name); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}
