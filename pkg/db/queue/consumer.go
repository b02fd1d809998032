package queue

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// QueueAlertConsumer reads gap alerts back off the Kafka topic
type QueueAlertConsumer struct {
	consumer sarama.Consumer
}

// NewQueueAlertConsumer connects a consumer to the configured brokers
func NewQueueAlertConsumer() (*QueueAlertConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokerList, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %v", err)
	}

	return &QueueAlertConsumer{consumer: consumer}, nil
}

// ConsumeGapAlerts reads alerts from partition 0 and passes each to handler.
// It blocks until the partition consumer is closed or handler returns an error.
func (q *QueueAlertConsumer) ConsumeGapAlerts(handler func(alert *GapAlert) error) error {
	partitionConsumer, err := q.consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %v", err)
	}
	defer partitionConsumer.Close()

	for msg := range partitionConsumer.Messages() {
		var alert GapAlert
		if err := json.Unmarshal(msg.Value, &alert); err != nil {
			// A bad record shouldn't wedge the consumer
			fmt.Printf("Error decoding gap alert: %v\n", err)
			continue
		}
		if err := handler(&alert); err != nil {
			return err
		}
	}

	return nil
}

// Close shuts down the consumer
func (q *QueueAlertConsumer) Close() error {
	return q.consumer.Close()
}
