// Package kafka provides a Kafka-backed EventSink. Delivery is at-least-once;
// consumers deduplicate on event id. Transport reliability beyond the write
// acknowledgement is the broker's concern, not this package's.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"buildcore/pkg/domain"
)

var _ domain.EventSink = (*Sink)(nil)

// Sink publishes events to Kafka topics. One writer serves all topics; the
// topic travels per message.
type Sink struct {
	writer *kafka.Writer
}

// NewSink constructs a sink for the given broker addresses.
func NewSink(brokers []string) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish encodes the payload as JSON and writes it to the topic.
func (s *Sink) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
