// Package kafkanotify publishes notification intents and activity records
// to Kafka topics. Delivery to end users is left to the topic consumers.
package kafkanotify

import (
	"context"
	"encoding/json"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultNotificationTopic = "accounts.notifications"
	DefaultActivityTopic     = "accounts.activity"

	headerKind = "kind"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher implements accounts.Notifier and accounts.ActivitySink.
type Publisher struct {
	writer            MessageWriter
	notificationTopic string
	activityTopic     string
	writeTimeout      time.Duration
}

type Option func(*Publisher)

func WithNotificationTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.notificationTopic = topic
		}
	}
}

func WithActivityTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.activityTopic = topic
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

var (
	_ accounts.Notifier     = (*Publisher)(nil)
	_ accounts.ActivitySink = (*Publisher)(nil)
)

func New(writer MessageWriter, opts ...Option) *Publisher {
	p := &Publisher{
		writer:            writer,
		notificationTopic: DefaultNotificationTopic,
		activityTopic:     DefaultActivityTopic,
		writeTimeout:      5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// NewWriter returns a writer keyed by principal id, so all messages for one
// principal land on one partition in order. Topics are set per message.
func NewWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func (p *Publisher) Notify(ctx context.Context, n accounts.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode notification")
	}
	return p.write(ctx, kafka.Message{
		Topic:   p.notificationTopic,
		Key:     []byte(n.PrincipalID),
		Value:   payload,
		Headers: []kafka.Header{{Key: headerKind, Value: []byte(n.Kind)}},
		Time:    n.OccurredAt,
	})
}

func (p *Publisher) Record(ctx context.Context, event accounts.ActivityEvent) error {
	record := activitymap.Normalize(event)
	payload, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity")
	}
	return p.write(ctx, kafka.Message{
		Topic:   p.activityTopic,
		Key:     []byte(record.ObjectID),
		Value:   payload,
		Headers: []kafka.Header{{Key: headerKind, Value: []byte(record.Verb)}},
		Time:    record.OccurredAt,
	})
}

func (p *Publisher) write(ctx context.Context, msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "kafka write failed").
			WithMetadata(map[string]any{"topic": msg.Topic})
	}
	return nil
}
