package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/quantfabric/matchbook/pkg/db/queue"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		HTTPAddr  string `yaml:"http_addr"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"server"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		BrokerAddr string `yaml:"broker_addr"`
		Topic      string `yaml:"topic"`
		// Driver selects the sender implementation: "kafka-go" or
		// "sarama".
		Driver string `yaml:"driver"`
	} `yaml:"kafka"`

	Book struct {
		Instrument string `yaml:"instrument"`
		TickSize   string `yaml:"tick_size"`
		// SessionClose is the local close time as "HH:MM".
		SessionClose string `yaml:"session_close"`
		SweepSlackMS int    `yaml:"sweep_slack_ms"`
	} `yaml:"book"`
}

// Default configuration values
var (
	configFile = flag.String("config", "", "Path to config file (YAML)")
	httpPort   = flag.Int("http_port", 8080, "The HTTP server port")
	logLevel   = flag.String("log_level", "info", "Log level: debug, info, warn, error")
	logFormat  = flag.String("log_format", "pretty", "Log format: json, pretty")
)

// LoadConfig loads the configuration from command line flags and optionally from a config file
func LoadConfig() (*Config, error) {
	flag.Parse()

	config := &Config{}
	config.Server.HTTPAddr = fmt.Sprintf(":%d", *httpPort)
	config.Server.LogLevel = *logLevel
	config.Server.LogFormat = *logFormat
	config.Redis.Addr = "localhost:6379"
	config.Kafka.BrokerAddr = "localhost:9092"
	config.Kafka.Topic = "executions"
	config.Kafka.Driver = "kafka-go"
	config.Book.Instrument = "DEFAULT"
	config.Book.TickSize = "0.01"
	config.Book.SessionClose = "16:00"
	config.Book.SweepSlackMS = 100

	if *configFile != "" {
		yamlFile, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(yamlFile, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		log.Info().Str("path", *configFile).Msg("loaded configuration file")
	}

	// Propagate broker settings to the sarama sender pool.
	queue.SetBrokerList(config.Kafka.BrokerAddr)
	queue.SetTopic(config.Kafka.Topic)

	return config, nil
}

// SessionClose parses the configured "HH:MM" close time.
func (c *Config) SessionClose() (hour, minute int, err error) {
	parts := strings.SplitN(c.Book.SessionClose, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid session close %q", c.Book.SessionClose)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid session close hour %q", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid session close minute %q", parts[1])
	}
	return hour, minute, nil
}
