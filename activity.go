package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered         ActivityEventType = "account.registered"
	ActivityEventVerified           ActivityEventType = "account.verified"
	ActivityEventStateChanged       ActivityEventType = "account.state.changed"
	ActivityEventPurged             ActivityEventType = "account.purged"
	ActivityEventProfileUpdated     ActivityEventType = "account.profile.updated"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventTokenRefreshed     ActivityEventType = "auth.token.refreshed"
	ActivityEventLogout             ActivityEventType = "auth.logout"
	ActivityEventPasswordChanged    ActivityEventType = "auth.password.changed"
	ActivityEventPasswordResetStart ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordReset      ActivityEventType = "auth.password.reset"
	ActivityEventRolesChanged       ActivityEventType = "role.assignment.changed"
	ActivityEventRoleChanged        ActivityEventType = "role.changed"
)

// ActorRef identifies who triggered an action. Actor is always passed
// explicitly; nothing reads the acting principal from ambient state.
type ActorRef struct {
	ID   string
	Type string
}

const (
	ActorTypeOwner  = string(KindOwner)
	ActorTypeWorker = string(KindWorker)
	ActorTypeSystem = "system"
)

// SystemActor is used by trusted callers such as the CLI.
var SystemActor = ActorRef{ID: "system", Type: ActorTypeSystem}

// ActorFromClaims builds the actor for the holder of claims.
func ActorFromClaims(claims SessionClaims) ActorRef {
	return ActorRef{ID: claims.Subject, Type: string(claims.Kind)}
}

func (a ActorRef) IsSystem() bool {
	return a.Type == ActorTypeSystem
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType   ActivityEventType
	Actor       ActorRef
	PrincipalID string
	FromState   PrincipalState
	ToState     PrincipalState
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink.
type MultiActivitySink []ActivitySink

func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", event.EventType, "principal", event.PrincipalID, "error", err)
	}
}
