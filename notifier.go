package accounts

import (
	"context"
	"time"
)

// NotificationKind names an outbound message intent.
type NotificationKind string

const (
	NotificationVerification    NotificationKind = "verification"
	NotificationWelcome         NotificationKind = "welcome"
	NotificationPasswordReset   NotificationKind = "password_reset"
	NotificationPasswordChanged NotificationKind = "password_changed"
)

// Notification is an intent to message a principal. Delivery (email, SMS)
// belongs to the Notifier.
type Notification struct {
	Kind        NotificationKind `json:"kind"`
	PrincipalID string           `json:"principal_id"`
	Name        string           `json:"name"`
	Username    string           `json:"username"`
	Email       string           `json:"email"`
	Code        string           `json:"code,omitempty"`
	ExpiresAt   *time.Time       `json:"expires_at,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

func notificationFor(kind NotificationKind, p *Principal, at time.Time) Notification {
	return Notification{
		Kind:        kind,
		PrincipalID: p.ID.String(),
		Name:        p.Name,
		Username:    p.Username,
		Email:       p.Email,
		OccurredAt:  at,
	}
}
