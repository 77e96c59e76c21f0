// Package activitymap flattens accounts.ActivityEvent into a record that
// audit pipelines and message brokers can consume without the accounts types.
package activitymap

import (
	"maps"
	"strings"
	"time"

	accounts "github.com/goliatone/go-accounts"
)

const (
	MetadataKeyActorType = "actor_type"
	MetadataKeyFromState = "from_state"
	MetadataKeyToState   = "to_state"
)

const (
	defaultChannel    = "accounts"
	defaultObjectType = "principal"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*options)

type options struct {
	channel       string
	objectType    string
	actorFallback string
}

// Normalize converts event. The event's metadata map is copied, never
// modified.
func Normalize(event accounts.ActivityEvent, opts ...Option) Normalized {
	o := options{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	objectType := o.objectType
	if event.EventType == accounts.ActivityEventRoleChanged {
		objectType = "role"
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.Actor.ID), strings.TrimSpace(event.PrincipalID), o.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   strings.TrimSpace(event.PrincipalID),
		Channel:    o.channel,
		Metadata:   metadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

func WithChannel(channel string) Option {
	return func(o *options) {
		o.channel = strings.TrimSpace(channel)
	}
}

func WithObjectType(objectType string) Option {
	return func(o *options) {
		o.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when neither the actor nor the
// principal is known, as for a failed login on an unknown identifier.
func WithActorFallback(actorID string) Option {
	return func(o *options) {
		o.actorFallback = strings.TrimSpace(actorID)
	}
}

func metadata(event accounts.ActivityEvent) map[string]any {
	out := maps.Clone(event.Metadata)
	set := func(key string, value string) {
		if value == "" {
			return
		}
		if out == nil {
			out = map[string]any{}
		}
		out[key] = value
	}

	if _, exists := out[MetadataKeyActorType]; !exists {
		set(MetadataKeyActorType, strings.TrimSpace(event.Actor.Type))
	}
	set(MetadataKeyFromState, string(event.FromState))
	set(MetadataKeyToState, string(event.ToState))
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
