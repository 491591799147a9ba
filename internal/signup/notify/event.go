package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"selfsignup/internal/signup/models"
)

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Event is the JSON payload published for downstream delivery services
// (SMS gateways, external mailers).
type Event struct {
	Template   Template          `json:"template"`
	Channel    models.Channel    `json:"channel"`
	Recipient  string            `json:"recipient"`
	Code       string            `json:"code"`
	ExpiresAt  time.Time         `json:"expires_at"`
	UserID     string            `json:"user_id"`
	Domain     string            `json:"domain"`
	Principal  string            `json:"principal"`
	Properties map[string]string `json:"properties,omitempty"`
	Link       string            `json:"link,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// EventNotifier publishes notifications to a Kafka topic. Records are keyed
// by user id so every notification for one user lands on one partition in
// order.
type EventNotifier struct {
	producer Producer
	topic    string
	clock    func() time.Time
	logger   *slog.Logger
}

func NewEventNotifier(producer Producer, topic string, logger *slog.Logger) *EventNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventNotifier{producer: producer, topic: topic, clock: time.Now, logger: logger}
}

func (e *EventNotifier) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(newEvent(n, e.clock()))
	if err != nil {
		return fmt.Errorf("encode notification event: %w", err)
	}

	record := &kgo.Record{
		Topic: e.topic,
		Key:   []byte(n.UserID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "template", Value: []byte(n.Template)},
			{Key: "channel", Value: []byte(n.Channel)},
		},
	}
	if err := e.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish notification event",
			"topic", e.topic,
			"channel", n.Channel,
			"error", err,
		)
		return fmt.Errorf("publish notification event: %w", err)
	}
	return nil
}

func newEvent(n Notification, now time.Time) Event {
	var props map[string]string
	if len(n.Properties) > 0 {
		props = make(map[string]string, len(n.Properties))
		for _, p := range n.Properties {
			if _, seen := props[p.Key]; !seen {
				props[p.Key] = p.Value
			}
		}
	}
	return Event{
		Template:   n.Template,
		Channel:    n.Channel,
		Recipient:  n.Recipient,
		Code:       n.Code,
		ExpiresAt:  n.ExpiresAt,
		UserID:     n.UserID.String(),
		Domain:     n.Domain,
		Principal:  n.Principal,
		Properties: props,
		Link:       ConfirmationLink(n),
		OccurredAt: now,
	}
}

// EnsureTopic creates the notification topic when it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// NewKafkaClient builds a franz-go client producing to topic.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}
