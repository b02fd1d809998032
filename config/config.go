package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tradekit/bookfeed/pkg/db/queue"
)

// Config represents the application configuration
type Config struct {
	Feed struct {
		Exchange    string   `yaml:"exchange"`
		Products    []string `yaml:"products"`
		WSURL       string   `yaml:"ws_url"`
		RESTURL     string   `yaml:"rest_url"`
		BufferLimit int      `yaml:"buffer_limit"`
		LogLevel    string   `yaml:"log_level"`
		LogFormat   string   `yaml:"log_format"`
	} `yaml:"feed"`

	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled    bool   `yaml:"enabled"`
		BrokerAddr string `yaml:"broker_addr"`
		EventTopic string `yaml:"event_topic"`
		AlertTopic string `yaml:"alert_topic"`
	} `yaml:"kafka"`

	Otel struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"otel"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	exchange   = flag.String("exchange", "binance", "Exchange to stream: binance, bittrex")
	products   = flag.String("products", "BTC-USD", "Comma-separated generic products")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally from a config file
func LoadConfig() (*Config, error) {
	// Parse command line flags
	flag.Parse()

	// Create default configuration
	config := &Config{}
	config.Feed.Exchange = *exchange
	config.Feed.Products = splitList(*products)
	config.Feed.LogLevel = *logLevel
	config.Feed.LogFormat = *logFormat
	config.Redis.Addr = "localhost:6379"
	config.Redis.KeyPrefix = "bookfeed"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.EventTopic = "bookfeed-events"
	config.Kafka.AlertTopic = "bookfeed-gap-alerts"
	config.Otel.Endpoint = "localhost:4317"

	// Load configuration from file if specified
	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Parse YAML configuration
		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Log loaded configuration
		log.Printf("Loaded configuration from %s", *configFile)
	}

	if len(config.Feed.Products) == 0 {
		return nil, fmt.Errorf("no products configured")
	}

	// Override Kafka configuration in package variables
	queue.SetBrokerList([]string{config.Kafka.BrokerAddr})
	queue.SetTopic(config.Kafka.AlertTopic)

	return config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
