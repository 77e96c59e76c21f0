package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const operationTimeout = 10 * time.Second

// AccountLifecycle owns every change to a principal's active and deleted
// flags, its verification code and its password.
type AccountLifecycle struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	config   Config
	notifier Notifier
	sink     ActivitySink
	limiter  AttemptLimiter
	logger   Logger
	now      Clock
}

type LifecycleOption func(*AccountLifecycle)

func WithLifecycleNotifier(n Notifier) LifecycleOption {
	return func(l *AccountLifecycle) {
		l.notifier = normalizeNotifier(n)
	}
}

func WithLifecycleActivitySink(s ActivitySink) LifecycleOption {
	return func(l *AccountLifecycle) {
		l.sink = normalizeActivitySink(s)
	}
}

// WithLifecycleLimiter throttles verification and password reset attempts.
func WithLifecycleLimiter(limiter AttemptLimiter) LifecycleOption {
	return func(l *AccountLifecycle) {
		l.limiter = normalizeLimiter(limiter)
	}
}

func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *AccountLifecycle) {
		l.logger = normalizeLogger(logger)
	}
}

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock Clock) LifecycleOption {
	return func(l *AccountLifecycle) {
		l.now = normalizeClock(clock)
	}
}

func NewAccountLifecycle(repo RepositoryManager, hasher PasswordHasher, cfg Config, opts ...LifecycleOption) *AccountLifecycle {
	l := &AccountLifecycle{
		repo:     repo,
		hasher:   hasher,
		config:   cfg,
		notifier: noopNotifier{},
		sink:     noopActivitySink{},
		limiter:  noopLimiter{},
		logger:   defLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Register creates an owner in PendingVerification and sends its verification code.
func (l *AccountLifecycle) Register(ctx context.Context, reg Registration) (*Principal, error) {
	return l.register(ctx, KindOwner, nil, reg)
}

// RegisterWorker creates a worker owned by ownerID. The owner must be an
// active owner account.
func (l *AccountLifecycle) RegisterWorker(ctx context.Context, ownerID uuid.UUID, reg Registration) (*Principal, error) {
	return l.register(ctx, KindWorker, &ownerID, reg)
}

func (l *AccountLifecycle) register(ctx context.Context, kind PrincipalKind, ownerID *uuid.UUID, reg Registration) (*Principal, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "registration cancelled")
	default:
	}

	reg = reg.normalized()
	if err := reg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration")
	}
	if err := l.validatePassword(reg.Password); err != nil {
		return nil, err
	}

	phone, err := NormalizePhone(reg.Phone)
	if err != nil {
		return nil, err
	}

	hash, err := l.hasher.HashPassword(reg.Password)
	if err != nil {
		return nil, asRichError(err, "failed to hash password")
	}

	now := l.now()
	code := newSecret(l.config.GetVerificationCodeSize())
	principal := &Principal{
		Kind:             kind,
		OwnerID:          ownerID,
		Name:             reg.Name,
		Username:         reg.Username,
		Email:            reg.Email,
		Phone:            phone,
		PasswordHash:     hash,
		VerificationCode: &code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if reg.UseHashid {
		id, err := hashid.NewUUID(reg.Email)
		if err != nil {
			return nil, asRichError(err, "failed to derive principal id")
		}
		principal.ID = id
	}

	roleName := l.config.GetOwnerRole()
	if kind == KindWorker {
		roleName = l.config.GetWorkerRole()
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if ownerID != nil {
			owner, err := l.repo.Principals().GetByIDTx(ctx, tx, *ownerID)
			if err != nil {
				return err
			}
			if !owner.IsOwner() {
				return ErrNotOwner
			}
			if owner.State() != StateActive {
				return ErrAccountInactive
			}
		}

		exists, err := l.repo.Principals().ExistsTx(ctx, tx, principal.Username, principal.Email, uuid.Nil)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}

		if _, err := l.repo.Principals().CreateTx(ctx, tx, principal); err != nil {
			return err
		}

		role, err := l.repo.Roles().GetOrCreateByNameTx(ctx, tx, roleName, now)
		if err != nil {
			return err
		}

		if err := l.repo.Roles().AssignTx(ctx, tx, principal.ID, []uuid.UUID{role.ID}, now); err != nil {
			return err
		}
		principal.Roles = []*Role{role}
		return nil
	})
	if err != nil {
		return nil, asRichError(err, "registration transaction failed")
	}

	n := notificationFor(NotificationVerification, principal, now)
	n.Code = code
	l.notify(ctx, n)

	l.record(ctx, ActivityEvent{
		EventType:   ActivityEventRegistered,
		Actor:       registrationActor(kind, ownerID, principal),
		PrincipalID: principal.ID.String(),
		ToState:     StatePendingVerification,
		Metadata:    map[string]any{"kind": kind},
		OccurredAt:  now,
	})

	return principal, nil
}

// Verify consumes the pending verification code. A wrong code returns false
// and leaves the account untouched.
func (l *AccountLifecycle) Verify(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	if err := l.limiter.Allow(ctx, ScopeVerify, id.String()); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	now := l.now()
	var verified *Principal
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p, err := l.repo.Principals().GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}

		if !p.HasPendingVerification() {
			return ErrAlreadyVerified
		}

		pending := *p.VerificationCode
		if !secretsEqual(pending, code) {
			return nil
		}

		ok, err := l.repo.Principals().ActivateTx(ctx, tx, id, pending, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyVerified
		}

		p.Active = true
		p.VerificationCode = nil
		p.UpdatedAt = now
		verified = p
		return nil
	})
	if err != nil {
		return false, asRichError(err, "verification transaction failed")
	}

	if verified == nil {
		l.logger.Debug("verification code mismatch", "principal", id.String())
		return false, nil
	}

	if err := l.limiter.Reset(ctx, ScopeVerify, id.String()); err != nil {
		l.logger.Warn("failed to reset verification limiter", "principal", id.String(), "error", err)
	}

	l.notify(ctx, notificationFor(NotificationWelcome, verified, now))
	l.record(ctx, ActivityEvent{
		EventType:   ActivityEventVerified,
		Actor:       ActorRef{ID: verified.ID.String(), Type: string(verified.Kind)},
		PrincipalID: verified.ID.String(),
		FromState:   StatePendingVerification,
		ToState:     StateActive,
		OccurredAt:  now,
	})

	return true, nil
}

// RequestVerification issues a fresh code for a pending account. Unknown
// identifiers succeed silently.
func (l *AccountLifecycle) RequestVerification(ctx context.Context, identifier string) error {
	key := strings.ToLower(strings.TrimSpace(identifier))
	if err := l.limiter.Allow(ctx, ScopeVerificationResend, key); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	now := l.now()
	code := newSecret(l.config.GetVerificationCodeSize())
	var target *Principal
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p, err := l.repo.Principals().GetByIdentifierTx(ctx, tx, identifier)
		if err != nil {
			return err
		}

		switch p.State() {
		case StateActive:
			return ErrAlreadyVerified
		case StateDeleted:
			return ErrAccountInactive
		}

		ok, err := l.repo.Principals().SetVerificationCodeTx(ctx, tx, p.ID, code, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyVerified
		}
		target = p
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			l.logger.Debug("verification requested for unknown identifier")
			return nil
		}
		return asRichError(err, "verification request transaction failed")
	}

	n := notificationFor(NotificationVerification, target, now)
	n.Code = code
	l.notify(ctx, n)
	return nil
}

// SoftDelete moves an active principal to the recycle bin and ends its
// refresh session.
func (l *AccountLifecycle) SoftDelete(ctx context.Context, actor ActorRef, id uuid.UUID) (*Principal, error) {
	now := l.now()
	out, err := l.transition(ctx, actor, id, StateDeleted, func(ctx context.Context, tx bun.Tx, p *Principal) error {
		ok, err := l.repo.Principals().SoftDeleteTx(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyDeleted
		}
		if err := l.repo.RefreshTokens().DeleteForPrincipalTx(ctx, tx, id); err != nil {
			return err
		}
		p.Active = false
		p.Deleted = true
		p.DeletedOn = &now
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Restore brings a soft deleted principal back to Active.
func (l *AccountLifecycle) Restore(ctx context.Context, actor ActorRef, id uuid.UUID) (*Principal, error) {
	now := l.now()
	return l.transition(ctx, actor, id, StateActive, func(ctx context.Context, tx bun.Tx, p *Principal) error {
		ok, err := l.repo.Principals().RestoreTx(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotDeleted
		}
		p.Active = true
		p.Deleted = false
		p.DeletedOn = nil
		p.UpdatedAt = now
		return nil
	})
}

// HardDelete purges a soft deleted principal. An owner can only be purged
// once none of its workers is live; its soft deleted workers are purged with
// it.
func (l *AccountLifecycle) HardDelete(ctx context.Context, actor ActorRef, id uuid.UUID) error {
	var purgedWorkers []*Principal
	_, err := l.transition(ctx, actor, id, StatePurged, func(ctx context.Context, tx bun.Tx, p *Principal) error {
		if p.IsOwner() {
			live, err := l.repo.Principals().ListByOwnerTx(ctx, tx, p.ID, false)
			if err != nil {
				return err
			}
			if len(live) > 0 {
				return ErrNotYetSoftDeleted
			}

			deleted, err := l.repo.Principals().ListByOwnerTx(ctx, tx, p.ID, true)
			if err != nil {
				return err
			}
			for _, w := range deleted {
				if _, err := l.repo.Principals().PurgeTx(ctx, tx, w.ID); err != nil {
					return err
				}
			}
			purgedWorkers = deleted
		}
		ok, err := l.repo.Principals().PurgeTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotYetSoftDeleted
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, w := range purgedWorkers {
		l.record(ctx, ActivityEvent{
			EventType:   ActivityEventPurged,
			Actor:       actor,
			PrincipalID: w.ID.String(),
			FromState:   StateDeleted,
			ToState:     StatePurged,
			OccurredAt:  l.now(),
		})
	}
	return nil
}

type transitionFunc func(ctx context.Context, tx bun.Tx, p *Principal) error

func (l *AccountLifecycle) transition(ctx context.Context, actor ActorRef, id uuid.UUID, target PrincipalState, apply transitionFunc) (*Principal, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "transition cancelled")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var (
		out  *Principal
		from PrincipalState
	)
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p, err := l.repo.Principals().GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorizeActor(actor, p); err != nil {
			return err
		}

		from = p.State()
		if err := transitionError(p, target); err != nil {
			return err
		}

		if err := apply(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, asRichError(err, "lifecycle transaction failed")
	}

	eventType := ActivityEventStateChanged
	if target == StatePurged {
		eventType = ActivityEventPurged
	}
	l.record(ctx, ActivityEvent{
		EventType:   eventType,
		Actor:       actor,
		PrincipalID: id.String(),
		FromState:   from,
		ToState:     target,
		OccurredAt:  l.now(),
	})

	return out, nil
}

// RecycleBin lists the soft deleted workers of ownerID.
func (l *AccountLifecycle) RecycleBin(ctx context.Context, ownerID uuid.UUID) ([]*Principal, error) {
	out, err := l.repo.Principals().ListByOwnerTx(ctx, l.repo.DB(), ownerID, true)
	if err != nil {
		return nil, asRichError(err, "failed to list recycle bin")
	}
	return out, nil
}

// EmptyRecycleBin purges every soft deleted worker of ownerID and returns
// how many were removed.
func (l *AccountLifecycle) EmptyRecycleBin(ctx context.Context, ownerID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var purged []*Principal
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		bin, err := l.repo.Principals().ListByOwnerTx(ctx, tx, ownerID, true)
		if err != nil {
			return err
		}
		if len(bin) == 0 {
			return ErrEmptyRecycleBin
		}
		for _, p := range bin {
			ok, err := l.repo.Principals().PurgeTx(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			if ok {
				purged = append(purged, p)
			}
		}
		return nil
	})
	if err != nil {
		return 0, asRichError(err, "failed to empty recycle bin")
	}

	actor := ActorRef{ID: ownerID.String(), Type: ActorTypeOwner}
	for _, p := range purged {
		l.record(ctx, ActivityEvent{
			EventType:   ActivityEventPurged,
			Actor:       actor,
			PrincipalID: p.ID.String(),
			FromState:   StateDeleted,
			ToState:     StatePurged,
			OccurredAt:  l.now(),
		})
	}

	return len(purged), nil
}

// ActiveWorkers lists the workers of ownerID that are not deleted.
func (l *AccountLifecycle) ActiveWorkers(ctx context.Context, ownerID uuid.UUID) ([]*Principal, error) {
	out, err := l.repo.Principals().ListByOwnerTx(ctx, l.repo.DB(), ownerID, false)
	if err != nil {
		return nil, asRichError(err, "failed to list workers")
	}
	return out, nil
}

// Get returns the principal with its assigned roles loaded.
func (l *AccountLifecycle) Get(ctx context.Context, id uuid.UUID) (*Principal, error) {
	db := l.repo.DB()
	p, err := l.repo.Principals().GetByIDTx(ctx, db, id)
	if err != nil {
		return nil, asRichError(err, "failed to load account")
	}
	roles, err := l.repo.Roles().ForPrincipalTx(ctx, db, id)
	if err != nil {
		return nil, asRichError(err, "failed to load account roles")
	}
	p.Roles = roles
	return p, nil
}

// UpdateProfile applies the non-nil fields of update. Username and email stay
// unique across both principal kinds.
func (l *AccountLifecycle) UpdateProfile(ctx context.Context, actor ActorRef, id uuid.UUID, update ProfileUpdate) (*Principal, error) {
	if err := update.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid profile update")
	}

	phone := ""
	if update.Phone != nil {
		normalized, err := NormalizePhone(*update.Phone)
		if err != nil {
			return nil, err
		}
		phone = normalized
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	now := l.now()
	var out *Principal
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p, err := l.repo.Principals().GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorizeActor(actor, p); err != nil {
			return err
		}
		if p.Deleted {
			return ErrAlreadyDeleted
		}

		identityChanged := false
		if update.Name != nil {
			p.Name = strings.TrimSpace(*update.Name)
		}
		if update.Username != nil && strings.TrimSpace(*update.Username) != p.Username {
			p.Username = strings.TrimSpace(*update.Username)
			identityChanged = true
		}
		if update.Email != nil && strings.ToLower(strings.TrimSpace(*update.Email)) != p.Email {
			p.Email = strings.ToLower(strings.TrimSpace(*update.Email))
			identityChanged = true
		}
		if update.Phone != nil {
			p.Phone = phone
		}

		if identityChanged {
			exists, err := l.repo.Principals().ExistsTx(ctx, tx, p.Username, p.Email, p.ID)
			if err != nil {
				return err
			}
			if exists {
				return ErrAlreadyExists
			}
		}

		if err := l.repo.Principals().UpdateProfileTx(ctx, tx, p, now); err != nil {
			return err
		}

		if identityChanged {
			if err := l.repo.RefreshTokens().RenameIdentityTx(ctx, tx, p.ID, p.Username, p.Email, now); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, asRichError(err, "profile update transaction failed")
	}

	l.record(ctx, ActivityEvent{
		EventType:   ActivityEventProfileUpdated,
		Actor:       actor,
		PrincipalID: id.String(),
		OccurredAt:  now,
	})
	return out, nil
}

// authorizeActor allows the system, the principal itself and, for workers,
// the owning account.
func authorizeActor(actor ActorRef, target *Principal) error {
	if actor.IsSystem() {
		return nil
	}
	if actor.ID != "" && actor.ID == target.ID.String() {
		return nil
	}
	if target.IsWorker() && target.OwnerID != nil && actor.ID == target.OwnerID.String() {
		return nil
	}
	return ErrNotOwner
}

func registrationActor(kind PrincipalKind, ownerID *uuid.UUID, p *Principal) ActorRef {
	if kind == KindWorker && ownerID != nil {
		return ActorRef{ID: ownerID.String(), Type: ActorTypeOwner}
	}
	return ActorRef{ID: p.ID.String(), Type: ActorTypeOwner}
}

func (l *AccountLifecycle) notify(ctx context.Context, n Notification) {
	if err := l.notifier.Notify(ctx, n); err != nil {
		l.logger.Warn("notifier failed", "kind", n.Kind, "principal", n.PrincipalID, "error", err)
	}
}

func (l *AccountLifecycle) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, l.sink, l.logger, event)
}
