package main

import (
	"context"
	"database/sql"
	"errors"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	"github.com/goliatone/go-accounts/limiter"
	"github.com/goliatone/go-accounts/metrics"
	"github.com/goliatone/go-accounts/notify/kafkanotify"
	"github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// services is everything the daemon wires together. close releases the
// database and any broker connections.
type services struct {
	db        *bun.DB
	registry  *prometheus.Registry
	sessions  *accounts.Sessions
	lifecycle *accounts.AccountLifecycle
	roles     *accounts.RoleService
	closers   []func() error
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		sqldb.Close()
		return nil, err
	}
	return sqldb, nil
}

func newServices(ctx context.Context, cfg *daemonConfig, lgr *glog.BaseLogger) (*services, error) {
	logger := lgr.GetLogger("accountsd")
	opts := cfg.Accounts.MustOptions()

	sqldb, err := openDB(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := accounts.Migrate(ctx, sqldb); err != nil {
		sqldb.Close()
		return nil, err
	}

	svc := &services{
		db:       bun.NewDB(sqldb, sqlitedialect.New()),
		registry: prometheus.NewRegistry(),
	}
	svc.closers = append(svc.closers, svc.db.Close)

	svc.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricSink, err := metrics.NewSink(svc.registry)
	if err != nil {
		svc.close()
		return nil, err
	}

	sinks := accounts.MultiActivitySink{metricSink, activityLogSink(lgr.GetLogger("activity"))}
	var notifier accounts.Notifier = notificationLogger(lgr.GetLogger("notifications"))

	if len(cfg.Kafka.Brokers) > 0 {
		writer := kafkanotify.NewWriter(cfg.Kafka.Brokers...)
		svc.closers = append(svc.closers, writer.Close)
		publisher := kafkanotify.New(writer,
			kafkanotify.WithNotificationTopic(cfg.Kafka.NotificationTopic),
			kafkanotify.WithActivityTopic(cfg.Kafka.ActivityTopic),
		)
		sinks = append(sinks, publisher)
		notifier = publisher
		logger.Info("kafka publisher enabled", "brokers", cfg.Kafka.Brokers)
	}

	var attempts accounts.AttemptLimiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			svc.close()
			return nil, err
		}
		attempts = limiter.New(client)
		logger.Info("redis attempt limiter enabled", "addr", cfg.Redis.Addr)
	}

	repo := accounts.NewRepositoryManager(svc.db)
	hasher := accounts.NewBcryptHasher(opts.GetBcryptCost())

	svc.lifecycle = accounts.NewAccountLifecycle(repo, hasher, opts,
		accounts.WithLifecycleNotifier(notifier),
		accounts.WithLifecycleActivitySink(sinks),
		accounts.WithLifecycleLimiter(attempts),
		accounts.WithLifecycleLogger(lgr.GetLogger("lifecycle")),
	)
	auth := accounts.NewAuthenticator(repo, hasher,
		accounts.WithAuthenticatorActivitySink(sinks),
		accounts.WithAuthenticatorLimiter(attempts),
		accounts.WithAuthenticatorLogger(lgr.GetLogger("authenticator")),
	)
	issuer := accounts.NewTokenIssuer(opts,
		accounts.WithTokenIssuerLogger(lgr.GetLogger("tokens")),
	)
	refresh := accounts.NewRefreshTokenManager(repo, opts.GetRefreshTokenTTL(),
		accounts.WithRefreshTokenLogger(lgr.GetLogger("refresh")),
	)
	svc.sessions = accounts.NewSessions(auth, issuer, refresh,
		accounts.WithSessionsActivitySink(sinks),
		accounts.WithSessionsLogger(lgr.GetLogger("sessions")),
	)
	svc.roles = accounts.NewRoleService(repo,
		accounts.WithRoleServiceActivitySink(sinks),
		accounts.WithRoleServiceLogger(lgr.GetLogger("roles")),
	)
	return svc, nil
}

func (s *services) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func activityLogSink(logger glog.Logger) accounts.ActivitySink {
	return accounts.ActivitySinkFunc(func(_ context.Context, event accounts.ActivityEvent) error {
		n := activitymap.Normalize(event)
		logger.Debug("activity",
			"verb", n.Verb,
			"actor", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"metadata", n.Metadata,
		)
		return nil
	})
}

// notificationLogger stands in for a real transport when no broker is
// configured. Codes are only visible at debug level.
func notificationLogger(logger glog.Logger) accounts.Notifier {
	return accounts.NotifierFunc(func(_ context.Context, n accounts.Notification) error {
		logger.Info("notification", "kind", n.Kind, "principal", n.PrincipalID)
		logger.Debug("notification code", "kind", n.Kind, "principal", n.PrincipalID, "code", n.Code)
		return nil
	})
}
