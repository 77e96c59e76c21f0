// Package httpapi exposes the account services over a JSON HTTP API built
// on fiber.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/google/uuid"
)

// Services are the account services the controller dispatches to.
type Services struct {
	Sessions  *accounts.Sessions
	Lifecycle *accounts.AccountLifecycle
	Roles     *accounts.RoleService
}

type Controller struct {
	svc        Services
	logger     accounts.Logger
	rateLimit  RateLimitConfig
	adminRoles []string
	claimsKey  string
}

type Option func(*Controller)

func WithLogger(logger accounts.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRateLimit sets the per client limit on the unauthenticated routes.
func WithRateLimit(cfg RateLimitConfig) Option {
	return func(c *Controller) {
		c.rateLimit = cfg
	}
}

// WithAdminRoles replaces the roles allowed to manage roles.
func WithAdminRoles(roles ...string) Option {
	return func(c *Controller) {
		if len(roles) > 0 {
			c.adminRoles = roles
		}
	}
}

func NewController(svc Services, opts ...Option) *Controller {
	if svc.Sessions == nil || svc.Lifecycle == nil || svc.Roles == nil {
		panic("ACCOUNTS: http controller requires sessions, lifecycle and role services")
	}
	c := &Controller{
		svc:        svc,
		logger:     nopLogger{},
		rateLimit:  DefaultRateLimit,
		adminRoles: []string{accounts.AdminRole},
		claimsKey:  jwtware.DefaultContextKey,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewApp returns a fiber app with the JSON error handler and every route
// registered.
func NewApp(ctrl *Controller, cfg ...fiber.Config) *fiber.App {
	config := fiber.Config{}
	if len(cfg) > 0 {
		config = cfg[0]
	}
	config.ErrorHandler = ErrorHandler
	app := fiber.New(config)
	ctrl.Register(app)
	return app
}

// Register mounts the routes on r.
func (h *Controller) Register(r fiber.Router) {
	throttle := newIPLimiter(h.rateLimit).handler()
	authn := jwtware.New(jwtware.Config{
		TokenValidator: h.svc.Sessions,
		ContextKey:     h.claimsKey,
		ErrorHandler:   ErrorHandler,
	})
	admin := jwtware.New(jwtware.Config{
		TokenValidator: h.svc.Sessions,
		ContextKey:     h.claimsKey,
		ErrorHandler:   ErrorHandler,
		RequiredRoles:  h.adminRoles,
	})

	auth := r.Group("/auth")
	auth.Post("/login", throttle, h.Login)
	auth.Post("/refresh", throttle, h.Refresh)
	auth.Post("/logout", h.Logout)

	acc := r.Group("/accounts")
	acc.Post("/register", throttle, h.RegisterAccount)
	acc.Post("/verification", throttle, h.RequestVerification)
	acc.Post("/password/reset", throttle, h.PasswordReset)
	acc.Post("/password/reset/confirm", throttle, h.PasswordResetConfirm)
	acc.Post("/password/change", authn, h.PasswordChange)
	acc.Post("/:id/verify", throttle, h.Verify)

	r.Get("/me", authn, h.Me)
	r.Patch("/me", authn, h.UpdateMe)
	r.Delete("/me", authn, h.DeleteMe)

	workers := r.Group("/workers", authn)
	workers.Post("/", h.CreateWorker)
	workers.Get("/", h.ListWorkers)
	workers.Delete("/:id", h.DeleteWorker)
	workers.Post("/:id/restore", h.RestoreWorker)
	workers.Delete("/:id/purge", h.PurgeWorker)

	bin := r.Group("/recycle-bin", authn)
	bin.Get("/", h.RecycleBin)
	bin.Delete("/", h.EmptyRecycleBin)

	roles := r.Group("/roles", admin)
	roles.Get("/", h.ListRoles)
	roles.Post("/", h.CreateRole)
	roles.Get("/principals/:principal", h.PrincipalRoles)
	roles.Post("/principals/:principal/assign", h.AssignRoles)
	roles.Post("/principals/:principal/remove", h.RemoveRoles)
	roles.Put("/principals/:principal", h.ReplaceRoles)
	roles.Get("/:id", h.GetRole)
	roles.Patch("/:id", h.UpdateRole)
	roles.Delete("/:id", h.DeleteRole)
	roles.Post("/:id/activate", h.ActivateRole)
	roles.Post("/:id/deactivate", h.DeactivateRole)
}

func (h *Controller) claims(c *fiber.Ctx) (accounts.SessionClaims, error) {
	claims, ok := jwtware.Claims(c, h.claimsKey)
	if !ok {
		return accounts.SessionClaims{}, accounts.ErrInvalidCredentials
	}
	return claims, nil
}

// owner returns the id of the acting owner. Workers cannot manage workers.
func (h *Controller) owner(c *fiber.Ctx) (uuid.UUID, accounts.ActorRef, error) {
	claims, err := h.claims(c)
	if err != nil {
		return uuid.Nil, accounts.ActorRef{}, err
	}
	if claims.Kind != accounts.KindOwner {
		return uuid.Nil, accounts.ActorRef{}, accounts.ErrNotOwner
	}
	id, err := accounts.SubjectUUID(claims)
	if err != nil {
		return uuid.Nil, accounts.ActorRef{}, err
	}
	return id, accounts.ActorFromClaims(claims), nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
