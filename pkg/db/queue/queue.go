// Package queue publishes sequence-gap alerts to Kafka through sarama.
// Alerts are low-volume and operationally important, so they get a dedicated
// synchronous producer instead of sharing the batched book-event writer.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/tradekit/bookfeed/pkg/messaging"
)

var (
	brokerList = []string{"localhost:9092"}
	topic      = "bookfeed-gap-alerts"
)

const maxRetry = 5

// SetBrokerList overrides the default Kafka broker list
func SetBrokerList(brokers []string) {
	if len(brokers) > 0 {
		brokerList = brokers
	}
}

// SetTopic overrides the default alert topic
func SetTopic(t string) {
	if t != "" {
		topic = t
	}
}

// GapAlert is the payload published when a product's feed skips sequences
type GapAlert struct {
	ProductID string                        `json:"productId"`
	Time      time.Time                     `json:"time"`
	Skipped   messaging.SkippedMessageEvent `json:"skipped"`
}

// AlertSender publishes gap alerts
type AlertSender interface {
	SendGapAlert(alert *GapAlert) error
	Close() error
}

// QueueAlertSender implements AlertSender on a sarama sync producer
type QueueAlertSender struct {
	producer sarama.SyncProducer
}

// NewQueueAlertSender creates a sender with its own producer connection
func NewQueueAlertSender() (*QueueAlertSender, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = maxRetry
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokerList, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %v", err)
	}

	return &QueueAlertSender{producer: producer}, nil
}

// SendGapAlert publishes the alert, keyed by product
func (q *QueueAlertSender) SendGapAlert(alert *GapAlert) error {
	messageBytes, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal gap alert: %v", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(alert.ProductID),
		Value: sarama.ByteEncoder(messageBytes),
	}

	_, _, err = q.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to Kafka: %v", err)
	}

	return nil
}

// Close shuts down the underlying producer
func (q *QueueAlertSender) Close() error {
	return q.producer.Close()
}

// Ensure QueueAlertSender implements AlertSender
var _ AlertSender = (*QueueAlertSender)(nil)
