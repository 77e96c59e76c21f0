package accounts

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// validatePassword enforces the configured minimum length. bcrypt ignores
// everything past 72 bytes.
func (l *AccountLifecycle) validatePassword(password string) error {
	if err := validation.Validate(password, validation.Required, validation.Length(l.config.GetMinPasswordLength(), 72)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password")
	}
	return nil
}

// ChangePassword replaces the password of id after checking the current one.
// The refresh session of the principal is revoked.
func (l *AccountLifecycle) ChangePassword(ctx context.Context, actor ActorRef, id uuid.UUID, current, next string) error {
	if !actor.IsSystem() && actor.ID != id.String() {
		return ErrNotOwner
	}
	if err := l.validatePassword(next); err != nil {
		return err
	}

	p, err := l.repo.Principals().GetByID(ctx, id)
	if err != nil {
		return asRichError(err, "failed to load account")
	}
	if !p.Active {
		return ErrAccountInactive
	}
	if err := l.hasher.ComparePasswordAndHash(current, p.PasswordHash); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := l.hasher.HashPassword(next)
	if err != nil {
		return asRichError(err, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	now := l.now()
	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		ok, err := l.repo.Principals().UpdatePasswordTx(ctx, tx, id, p.PasswordHash, hash, now)
		if err != nil {
			return err
		}
		if !ok {
			// changed concurrently
			return ErrInvalidCredentials
		}
		return l.repo.RefreshTokens().DeleteForPrincipalTx(ctx, tx, id)
	})
	if err != nil {
		return asRichError(err, "password change transaction failed")
	}

	l.notify(ctx, notificationFor(NotificationPasswordChanged, p, now))
	l.record(ctx, ActivityEvent{
		EventType:   ActivityEventPasswordChanged,
		Actor:       actor,
		PrincipalID: id.String(),
		OccurredAt:  now,
	})
	return nil
}

// InitiatePasswordReset stores a single-use reset token and sends it to the
// principal. Unknown or deleted accounts succeed silently.
func (l *AccountLifecycle) InitiatePasswordReset(ctx context.Context, identifier string) error {
	key := strings.ToLower(strings.TrimSpace(identifier))
	if err := l.limiter.Allow(ctx, ScopePasswordReset, key); err != nil {
		return err
	}

	p, err := l.repo.Principals().GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			l.logger.Debug("password reset requested for unknown identifier")
			return nil
		}
		return asRichError(err, "failed to load account")
	}
	if p.Deleted {
		l.logger.Debug("password reset requested for deleted account", "principal", p.ID.String())
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	now := l.now()
	token := newSecret(32)
	expiresAt := now.Add(l.config.GetResetTokenTTL())
	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return l.repo.Principals().SetResetTokenTx(ctx, tx, p.ID, token, expiresAt, now)
	})
	if err != nil {
		return asRichError(err, "password reset transaction failed")
	}

	n := notificationFor(NotificationPasswordReset, p, now)
	n.Code = token
	n.ExpiresAt = &expiresAt
	l.notify(ctx, n)
	l.record(ctx, ActivityEvent{
		EventType:   ActivityEventPasswordResetStart,
		Actor:       ActorRef{ID: p.ID.String(), Type: string(p.Kind)},
		PrincipalID: p.ID.String(),
		OccurredAt:  now,
	})
	return nil
}

// FinalizePasswordReset consumes token and sets the new password. The swap,
// the token clearing and the refresh session revocation commit together.
func (l *AccountLifecycle) FinalizePasswordReset(ctx context.Context, token, password string) error {
	if err := l.validatePassword(password); err != nil {
		return err
	}
	if token == "" {
		return ErrResetTokenInvalid
	}
	if err := l.limiter.Allow(ctx, ScopePasswordReset, "token:"+HashToken(token)); err != nil {
		return err
	}

	hash, err := l.hasher.HashPassword(password)
	if err != nil {
		return asRichError(err, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	now := l.now()
	var target *Principal
	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p, err := l.repo.Principals().GetByResetTokenTx(ctx, tx, token)
		if err != nil {
			return err
		}
		if p.PasswordResetExpiresAt == nil || now.After(*p.PasswordResetExpiresAt) {
			return ErrResetTokenInvalid
		}
		if p.Deleted {
			return ErrAccountInactive
		}

		ok, err := l.repo.Principals().ConsumeResetTokenTx(ctx, tx, p.ID, token, hash, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrResetTokenInvalid
		}

		if err := l.repo.RefreshTokens().DeleteForPrincipalTx(ctx, tx, p.ID); err != nil {
			return err
		}
		target = p
		return nil
	})
	if err != nil {
		return asRichError(err, "password reset finalize transaction failed")
	}

	l.notify(ctx, notificationFor(NotificationPasswordChanged, target, now))
	l.record(ctx, ActivityEvent{
		EventType:   ActivityEventPasswordReset,
		Actor:       ActorRef{ID: target.ID.String(), Type: string(target.Kind)},
		PrincipalID: target.ID.String(),
		OccurredAt:  now,
	})
	return nil
}
