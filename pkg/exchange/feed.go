// Package exchange defines the adapter contract between raw exchange feeds
// and the canonical message stream, plus the shared connection plumbing the
// adapters build on.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/tradekit/bookfeed/pkg/messaging"
)

// Feed is one exchange adapter. Run connects and pumps canonical messages
// into Messages until the context is cancelled; it returns an error when the
// session died and should be restarted. Resync asks the adapter to fetch a
// fresh snapshot for one product.
type Feed interface {
	Name() string
	Run(ctx context.Context) error
	Messages() <-chan messaging.StreamMessage
	Resync(productID string)
}

// FeedConfig holds the settings shared by all adapters
type FeedConfig struct {
	Exchange string
	// Products in generic form, e.g. "BTC-USD"
	Products []string
	// ProductSymbols maps generic products to exchange symbols. Adapters
	// fall back to their own convention for products not listed.
	ProductSymbols map[string]string

	WSURL   string
	RESTURL string

	// StaleTimeout is how long without any inbound frame before the
	// connection is declared dead.
	StaleTimeout time.Duration
	HTTPTimeout  time.Duration
	MaxRetries   int
}

// LoadFeedConfig loads adapter configuration from environment variables
func LoadFeedConfig() (*FeedConfig, error) {
	v := viper.New()

	v.SetDefault("EXCHANGE", "binance")
	v.SetDefault("PRODUCTS", "BTC-USD")
	v.SetDefault("FEED_WS_URL", "")
	v.SetDefault("FEED_REST_URL", "")
	v.SetDefault("STALE_TIMEOUT_SECONDS", 60)
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 5)
	v.SetDefault("MAX_RETRIES", 3)

	v.AutomaticEnv()

	cfg := &FeedConfig{
		Exchange:     v.GetString("EXCHANGE"),
		Products:     splitProducts(v.GetString("PRODUCTS")),
		WSURL:        v.GetString("FEED_WS_URL"),
		RESTURL:      v.GetString("FEED_REST_URL"),
		StaleTimeout: time.Duration(v.GetInt("STALE_TIMEOUT_SECONDS")) * time.Second,
		HTTPTimeout:  time.Duration(v.GetInt("HTTP_TIMEOUT_SECONDS")) * time.Second,
		MaxRetries:   v.GetInt("MAX_RETRIES"),
	}
	if len(cfg.Products) == 0 {
		return nil, fmt.Errorf("no products configured")
	}
	return cfg, nil
}

func splitProducts(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Supervise runs the feed, restarting it with exponential backoff whenever a
// session dies. It returns when the context is cancelled.
func Supervise(ctx context.Context, feed Feed, logger zerolog.Logger) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = 0 // retry forever

	operation := func() error {
		if err := feed.Run(ctx); err != nil {
			logger.Error().Err(err).Str("exchange", feed.Name()).Msg("Feed session ended")
			return err
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).
			Str("exchange", feed.Name()).Msg("Restarting feed")
	}

	for {
		err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// A clean return means the session finished without a cancel;
			// start over with a fresh backoff window.
			policy.Reset()
		}
	}
}
