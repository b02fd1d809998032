package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/zap"

	"github.com/tradekit/bookfeed/config"
	"github.com/tradekit/bookfeed/pkg/db/queue"
	"github.com/tradekit/bookfeed/pkg/exchange"
	"github.com/tradekit/bookfeed/pkg/exchange/binance"
	"github.com/tradekit/bookfeed/pkg/exchange/bittrex"
	"github.com/tradekit/bookfeed/pkg/logging"
	"github.com/tradekit/bookfeed/pkg/messaging"
	"github.com/tradekit/bookfeed/pkg/messaging/kafka"
	redismirror "github.com/tradekit/bookfeed/pkg/mirror/redis"
	"github.com/tradekit/bookfeed/pkg/orderbook"
	"github.com/tradekit/bookfeed/pkg/otel"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logging
	logging.Setup(logging.Config{
		Level:  cfg.Feed.LogLevel,
		Pretty: cfg.Feed.LogFormat == "pretty",
	})
	logger := log.Logger

	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	defer cancel()

	// Initialize OpenTelemetry
	cleanup, err := otel.Init(otel.Config{
		ServiceVersion:   "1.0.0",
		Endpoint:         cfg.Otel.Endpoint,
		CollectorEnabled: cfg.Otel.Enabled,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
	}
	defer cleanup()
	if cfg.Otel.Enabled {
		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Runtime metrics unavailable")
		}
	}

	// Event sink: Kafka when configured, otherwise keep events in-process
	var sender messaging.EventSender
	if cfg.Kafka.Enabled {
		kafkaSender, err := kafka.NewKafkaEventSender(cfg.Kafka.BrokerAddr, cfg.Kafka.EventTopic)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create Kafka event sender")
		}
		defer kafkaSender.Close()
		sender = kafkaSender

		// Optional: echo gap alerts back into the log for operators
		if alertConsumer, err := kafka.SetupAlertConsumer(ctx, logger); err == nil && alertConsumer != nil {
			defer alertConsumer.Close()
		}
	} else {
		sender = messaging.NewMockEventSender()
	}

	// Optional Redis projection
	var mirror orderbook.Mirror
	if cfg.Redis.Enabled {
		redismirror.SetDefaultRedisOptions(&redismirror.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		zapLogger, err := zap.NewProduction()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create mirror logger")
		}
		defer zapLogger.Sync()
		mirror = redismirror.NewMirror(redismirror.GetRedisClient(), cfg.Redis.KeyPrefix, zapLogger)
	}

	// Optional Kafka gap alerts, published through the shared sender pool
	var alerts queue.AlertSender
	if cfg.Kafka.Enabled {
		alertSender, err := queue.NewPooledAlertSender()
		if err != nil {
			logger.Warn().Err(err).Msg("Gap alerts unavailable - continuing without them")
		} else {
			defer alertSender.Close()
			alerts = alertSender
		}
	}

	// Build the exchange adapter
	feedCfg := &exchange.FeedConfig{
		Exchange:     cfg.Feed.Exchange,
		Products:     cfg.Feed.Products,
		WSURL:        cfg.Feed.WSURL,
		RESTURL:      cfg.Feed.RESTURL,
		StaleTimeout: 60 * time.Second,
		HTTPTimeout:  5 * time.Second,
		MaxRetries:   3,
	}

	var feed exchange.Feed
	switch cfg.Feed.Exchange {
	case "binance":
		feed = binance.NewFeed(feedCfg, logger)
	case "bittrex":
		feed = bittrex.NewFeed(feedCfg, logger)
	default:
		logger.Fatal().Str("exchange", cfg.Feed.Exchange).Msg("Unknown exchange")
	}

	manager := orderbook.NewManager(orderbook.Config{
		Sender:      sender,
		Mirror:      mirror,
		Alerts:      alerts,
		Resync:      feed.Resync,
		Logger:      logger,
		BufferLimit: cfg.Feed.BufferLimit,
	})

	// Pump canonical messages into the per-product engines
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-feed.Messages():
				manager.Ingest(ctx, msg)
			}
		}
	}()

	// Run the feed with backoff restarts
	go exchange.Supervise(ctx, feed, logger)

	logger.Info().
		Str("exchange", cfg.Feed.Exchange).
		Strs("products", cfg.Feed.Products).
		Msg("Bookfeed started")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	cancel()
	logger.Info().Msg("Shutdown complete")
}
