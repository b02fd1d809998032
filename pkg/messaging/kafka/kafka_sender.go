package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

// KafkaEventSender implements EventSender using Kafka
type KafkaEventSender struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaEventSender creates a new Kafka event sender
func NewKafkaEventSender(brokerAddr, topic string) (*KafkaEventSender, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &KafkaEventSender{
		writer: writer,
		topic:  topic,
	}, nil
}

// SendBookEvent publishes a book event to Kafka, keyed by product so a
// product's events land on one partition in order
func (k *KafkaEventSender) SendBookEvent(ctx context.Context, event *messaging.BookEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal book event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.ProductID),
		Value: data,
		Time:  time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = k.writer.WriteMessages(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka writer
func (k *KafkaEventSender) Close() error {
	return k.writer.Close()
}

// Ensure KafkaEventSender implements EventSender
var _ messaging.EventSender = (*KafkaEventSender)(nil)
