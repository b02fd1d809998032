package queue

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	senderPool   chan AlertSender
	poolInitOnce sync.Once
	maxPoolSize  = 8 // gap alerts are rare; a small pool is plenty
)

// initSenderPool initializes the sender pool
func initSenderPool() {
	poolInitOnce.Do(func() {
		senderPool = make(chan AlertSender, maxPoolSize)
		// Pre-populate the entire pool
		for i := 0; i < maxPoolSize; i++ {
			sender, err := NewQueueAlertSender()
			if err != nil {
				log.Error().Err(err).Msg("Failed to create pooled alert sender")
				continue
			}
			if sender != nil {
				senderPool <- sender
			}
		}
	})
}

// GetSender gets a sender from the pool
func GetSender() AlertSender {
	initSenderPool()

	select {
	case sender := <-senderPool:
		return sender
	default:
		// If pool is empty, something is wrong - log and return nil
		log.Warn().Msg("Alert sender pool is empty")
		return nil
	}
}

// ReturnSender returns a sender to the pool
func ReturnSender(sender AlertSender) {
	if sender == nil {
		return
	}

	select {
	case senderPool <- sender:
	default:
		// If pool is full, something is wrong - log and close
		log.Warn().Msg("Alert sender pool is full")
		_ = sender.Close()
	}
}

// SendAlert publishes a gap alert using a pooled sender
func SendAlert(alert *GapAlert) error {
	sender := GetSender()
	if sender == nil {
		return fmt.Errorf("failed to get alert sender from pool")
	}
	defer ReturnSender(sender)

	err := sender.SendGapAlert(alert)
	if err != nil {
		log.Error().Err(err).Str("product_id", alert.ProductID).
			Msg("Failed to send gap alert")
		// If we get a connection error, don't return this sender to the pool
		_ = sender.Close()
		return err
	}

	return nil
}

// PooledAlertSender is an AlertSender that borrows a producer from the shared
// pool per alert, so one slow broker call never serializes every product.
type PooledAlertSender struct{}

var _ AlertSender = (*PooledAlertSender)(nil)

// NewPooledAlertSender warms the pool and fails when no sender could connect
func NewPooledAlertSender() (*PooledAlertSender, error) {
	initSenderPool()
	if len(senderPool) == 0 {
		return nil, fmt.Errorf("no kafka alert senders available")
	}
	return &PooledAlertSender{}, nil
}

// SendGapAlert implements AlertSender on top of the pool
func (p *PooledAlertSender) SendGapAlert(alert *GapAlert) error {
	return SendAlert(alert)
}

// Close drains the pool and closes every idle sender
func (p *PooledAlertSender) Close() error {
	var firstErr error
	for {
		select {
		case sender := <-senderPool:
			if err := sender.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}
