package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfabric/matchbook/config"
	"github.com/quantfabric/matchbook/pkg/core"
	"github.com/quantfabric/matchbook/pkg/db/queue"
	"github.com/quantfabric/matchbook/pkg/depthcache"
	"github.com/quantfabric/matchbook/pkg/messaging"
	"github.com/quantfabric/matchbook/pkg/messaging/kafka"
	"github.com/quantfabric/matchbook/pkg/otel"
	"github.com/quantfabric/matchbook/pkg/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Server.LogFormat == "pretty" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	ctx := logger.WithContext(context.Background())

	scale, err := messaging.NewPriceScale(cfg.Book.TickSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid tick size")
	}

	closeHour, closeMinute, err := cfg.SessionClose()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid session close")
	}
	bookOpts := []core.Option{
		core.WithSessionClose(closeHour, closeMinute),
		core.WithSweepSlack(time.Duration(cfg.Book.SweepSlackMS) * time.Millisecond),
	}

	manager := server.NewOrderBookManager()
	defer manager.Close()

	sender := newSender(cfg, logger)
	defer sender.Close()

	// Development consumer pretty-prints the execution feed.
	kafkaConsumer, err := kafka.SetupConsumer(ctx, logger)
	if err == nil && kafkaConsumer != nil {
		defer kafkaConsumer.Close()
	}

	cleanup, err := otel.Init(otel.Config{
		ServiceName:    "matchbook",
		ServiceVersion: "1.0.0",
		Endpoint:       "localhost:4317",
	})
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}
	defer cleanup()

	depthcache.SetDefaultRedisOptions(&depthcache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	depthPublisher := depthcache.NewPublisher(depthcache.GetRedisClient(), logger)

	httpServer := server.NewServer(manager, sender, scale, logger,
		server.WithDepthPublisher(depthPublisher),
		server.WithBookOptions(bookOpts...),
	)

	if _, err := httpServer.CreateBook(ctx, cfg.Book.Instrument, cfg.Book.Instrument); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create default order book")
	}
	logger.Info().Str("name", cfg.Book.Instrument).Msg("Created default order book")

	go func() {
		if err := httpServer.Start(cfg.Server.HTTPAddr); err != nil {
			logger.Info().Err(err).Msg("HTTP server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("Server shutdown complete")
}

// newSender picks the configured execution feed driver. The sarama
// driver keeps a pooled sender per message; kafka-go keeps one writer.
func newSender(cfg *config.Config, logger zerolog.Logger) messaging.MessageSender {
	switch cfg.Kafka.Driver {
	case "sarama":
		return poolSender{}
	default:
		sender, err := kafka.NewKafkaMessageSender(cfg.Kafka.BrokerAddr, cfg.Kafka.Topic)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to create Kafka sender, using mock sender")
			return messaging.NewMockMessageSender()
		}
		return sender
	}
}

// poolSender adapts the sarama sender pool to the MessageSender
// interface.
type poolSender struct{}

func (poolSender) SendExecutionMessage(ctx context.Context, msg *messaging.ExecutionMessage) error {
	return queue.SendMessage(ctx, msg)
}

func (poolSender) Close() error { return nil }
