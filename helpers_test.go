package accounts_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/mattn/go-sqlite3"
)

const testSigningKey = "test-signing-key-0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt accounts.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []accounts.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

type notificationRecorder struct {
	mu   sync.Mutex
	sent []accounts.Notification
}

func (r *notificationRecorder) Notify(_ context.Context, n accounts.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Last returns the most recent notification of kind sent to principalID.
func (r *notificationRecorder) Last(kind accounts.NotificationKind, principalID uuid.UUID) (accounts.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		n := r.sent[i]
		if n.Kind == kind && n.PrincipalID == principalID.String() {
			return n, true
		}
	}
	return accounts.Notification{}, false
}

type testEnv struct {
	db        *bun.DB
	repo      accounts.RepositoryManager
	cfg       accounts.Options
	clock     *testClock
	sink      *capturingSink
	notes     *notificationRecorder
	lifecycle *accounts.AccountLifecycle
	auth      *accounts.Authenticator
	issuer    *accounts.TokenIssuer
	refresh   *accounts.RefreshTokenManager
	sessions  *accounts.Sessions
	roles     *accounts.RoleService
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	_, err = sqldb.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)
	require.NoError(t, accounts.Migrate(context.Background(), sqldb))

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	cfg := accounts.DefaultOptions(testSigningKey)
	cfg.BcryptCost = bcrypt.MinCost
	cfg.MinPasswordLength = 2
	require.NoError(t, cfg.Validate())

	env := &testEnv{
		db:    db,
		repo:  accounts.NewRepositoryManager(db),
		cfg:   cfg,
		clock: newTestClock(),
		sink:  &capturingSink{},
		notes: &notificationRecorder{},
	}

	hasher := accounts.NewBcryptHasher(cfg.GetBcryptCost())
	env.lifecycle = accounts.NewAccountLifecycle(env.repo, hasher, cfg,
		accounts.WithLifecycleNotifier(env.notes),
		accounts.WithLifecycleActivitySink(env.sink),
		accounts.WithLifecycleClock(env.clock.Now),
	)
	env.auth = accounts.NewAuthenticator(env.repo, hasher,
		accounts.WithAuthenticatorActivitySink(env.sink),
	)
	env.issuer = accounts.NewTokenIssuer(cfg, accounts.WithTokenIssuerClock(env.clock.Now))
	env.refresh = accounts.NewRefreshTokenManager(env.repo, cfg.GetRefreshTokenTTL(),
		accounts.WithRefreshTokenClock(env.clock.Now),
	)
	env.sessions = accounts.NewSessions(env.auth, env.issuer, env.refresh,
		accounts.WithSessionsActivitySink(env.sink),
	)
	env.roles = accounts.NewRoleService(env.repo,
		accounts.WithRoleServiceActivitySink(env.sink),
		accounts.WithRoleServiceClock(env.clock.Now),
	)
	return env
}

// register creates a pending owner and returns it with its verification code.
func (e *testEnv) register(t *testing.T, username, password string) (*accounts.Principal, string) {
	t.Helper()

	p, err := e.lifecycle.Register(context.Background(), accounts.Registration{
		Name:     strings.ToUpper(username[:1]) + username[1:],
		Username: username,
		Email:    username + "@x.com",
		Password: password,
	})
	require.NoError(t, err)

	n, ok := e.notes.Last(accounts.NotificationVerification, p.ID)
	require.True(t, ok, "verification notification for %s", username)
	return p, n.Code
}

// activeOwner registers and verifies an owner.
func (e *testEnv) activeOwner(t *testing.T, username, password string) *accounts.Principal {
	t.Helper()

	p, code := e.register(t, username, password)
	ok, err := e.lifecycle.Verify(context.Background(), p.ID, code)
	require.NoError(t, err)
	require.True(t, ok)
	return p
}

// activeWorker registers and verifies a worker of owner.
func (e *testEnv) activeWorker(t *testing.T, owner *accounts.Principal, username, password string) *accounts.Principal {
	t.Helper()
	ctx := context.Background()

	w, err := e.lifecycle.RegisterWorker(ctx, owner.ID, accounts.Registration{
		Name:     username,
		Username: username,
		Email:    username + "@x.com",
		Password: password,
	})
	require.NoError(t, err)

	n, ok := e.notes.Last(accounts.NotificationVerification, w.ID)
	require.True(t, ok)
	verified, err := e.lifecycle.Verify(ctx, w.ID, n.Code)
	require.NoError(t, err)
	require.True(t, verified)
	return w
}

func ownerActor(p *accounts.Principal) accounts.ActorRef {
	return accounts.ActorRef{ID: p.ID.String(), Type: string(p.Kind)}
}
