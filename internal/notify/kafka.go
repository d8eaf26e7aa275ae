package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coastsense/floodwatch/internal/model"
	"github.com/segmentio/kafka-go"
)

// envelope is the wire shape published to the alert topic.
type envelope struct {
	Event     string      `json:"event"` // raised, escalated, resolved
	Timestamp time.Time   `json:"timestamp"`
	Alert     model.Alert `json:"alert"`
}

// KafkaNotifier publishes alert events to a Kafka topic, keyed by dedup
// key so all events for one condition land in the same partition in
// order.
type KafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (n *KafkaNotifier) Close() error { return n.writer.Close() }

func (n *KafkaNotifier) AlertRaised(ctx context.Context, a model.Alert) error {
	return n.publish(ctx, "raised", a)
}

func (n *KafkaNotifier) AlertEscalated(ctx context.Context, a model.Alert) error {
	return n.publish(ctx, "escalated", a)
}

func (n *KafkaNotifier) AlertResolved(ctx context.Context, a model.Alert) error {
	return n.publish(ctx, "resolved", a)
}

func (n *KafkaNotifier) publish(ctx context.Context, event string, a model.Alert) error {
	payload, err := json.Marshal(envelope{Event: event, Timestamp: time.Now().UTC(), Alert: a})
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.DedupKey),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish alert %s event: %w", event, err)
	}
	return nil
}
