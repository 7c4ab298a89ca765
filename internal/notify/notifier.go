package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// OrderEvent is the confirmation/cancellation message published for
// downstream consumers (email, push, kitchen displays).
type OrderEvent struct {
	OrderExternalID string    `json:"order_external_id"`
	OrderNumber     int64     `json:"order_number"`
	TotalCents      int64     `json:"total_cents"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier sends are best-effort everywhere they are called from the payment
// path: a failed send is logged by the caller and never undoes a transition.
type Notifier interface {
	OrderConfirmed(ctx context.Context, ev OrderEvent) error
	OrderCancelled(ctx context.Context, ev OrderEvent) error
}

type kafkaNotifier struct {
	writer *kafka.Writer
}

func NewKafkaNotifier(brokers []string, topic string) Notifier {
	return &kafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
		},
	}
}

func (n *kafkaNotifier) OrderConfirmed(ctx context.Context, ev OrderEvent) error {
	return n.publish(ctx, "order.confirmed", ev)
}

func (n *kafkaNotifier) OrderCancelled(ctx context.Context, ev OrderEvent) error {
	return n.publish(ctx, "order.cancelled", ev)
}

func (n *kafkaNotifier) publish(ctx context.Context, eventType string, ev OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.OrderExternalID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	return n.writer.WriteMessages(ctx, msg)
}

func (n *kafkaNotifier) Close() error {
	return n.writer.Close()
}

// Nop is used when no brokers are configured and in tests.
type Nop struct{}

func (Nop) OrderConfirmed(ctx context.Context, ev OrderEvent) error { return nil }
func (Nop) OrderCancelled(ctx context.Context, ev OrderEvent) error { return nil }
