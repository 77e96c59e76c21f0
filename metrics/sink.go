// Package metrics exposes account activity as Prometheus counters.
package metrics

import (
	"context"

	accounts "github.com/goliatone/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "accounts"

// Sink counts activity events. It implements accounts.ActivitySink and
// never fails.
type Sink struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ accounts.ActivitySink = (*Sink)(nil)

// NewSink creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewSink(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Account activity events by type and actor type.",
		}, []string{"event", "actor_type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Principal lifecycle transitions by source and target state.",
		}, []string{"from", "to"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{s.events, s.transitions} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Sink) Record(_ context.Context, event accounts.ActivityEvent) error {
	actorType := event.Actor.Type
	if actorType == "" {
		actorType = "anonymous"
	}
	s.events.WithLabelValues(string(event.EventType), actorType).Inc()

	if event.ToState != "" {
		s.transitions.WithLabelValues(string(event.FromState), string(event.ToState)).Inc()
	}
	return nil
}

// Events returns the event counter, mainly for tests.
func (s *Sink) Events() *prometheus.CounterVec {
	return s.events
}

func (s *Sink) Transitions() *prometheus.CounterVec {
	return s.transitions
}
