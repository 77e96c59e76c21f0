package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-accounts/httpapi"
	"github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd(load loader) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lgr, err := load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.ListenAddr = addr
			}
			return serve(cmd.Context(), cfg, lgr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.listen_addr")
	return cmd
}

func serve(ctx context.Context, cfg *daemonConfig, lgr *glog.BaseLogger) error {
	logger := lgr.GetLogger("accountsd")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	svc, err := newServices(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.close(); err != nil {
			logger.Error("close services", "error", err)
		}
	}()

	ctrl := httpapi.NewController(httpapi.Services{
		Sessions:  svc.sessions,
		Lifecycle: svc.lifecycle,
		Roles:     svc.roles,
	},
		httpapi.WithLogger(lgr.GetLogger("http")),
		httpapi.WithRateLimit(cfg.Server.GetRateLimit()),
		httpapi.WithAdminRoles(cfg.Server.AdminRoles...),
	)

	app := httpapi.NewApp(ctrl, fiber.Config{
		AppName:               "accountsd " + version,
		DisableStartupMessage: true,
	})
	app.Get(cfg.Server.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{})))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := svc.db.PingContext(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr)
		errc <- app.Listen(cfg.Server.ListenAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.Server.GetShutdownTimeout()
	logger.Info("shutting down", "timeout", timeout)
	if err := app.ShutdownWithTimeout(timeout); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
