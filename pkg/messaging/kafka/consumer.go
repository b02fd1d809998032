package kafka

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tradekit/bookfeed/pkg/db/queue"
)

// SetupAlertConsumer initializes and starts the Kafka consumer for gap alerts
func SetupAlertConsumer(ctx context.Context, logger zerolog.Logger) (*queue.QueueAlertConsumer, error) {
	alertConsumer, err := queue.NewQueueAlertConsumer()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to create Kafka consumer - continuing without Kafka support")
		return nil, err
	}

	// Start Kafka consumer in a goroutine
	go func() {
		logger.Info().Msg("Starting gap alert consumer")
		err := alertConsumer.ConsumeGapAlerts(func(alert *queue.GapAlert) error {
			logger.Warn().
				Str("product_id", alert.ProductID).
				Int64("expected_sequence", alert.Skipped.ExpectedSequence).
				Int64("sequence", alert.Skipped.Sequence).
				Time("time", alert.Time).
				Msg("Received gap alert")
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return alertConsumer, nil
}
