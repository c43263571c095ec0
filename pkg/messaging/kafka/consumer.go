package kafka

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/quantfabric/matchbook/pkg/db/queue"
	"github.com/quantfabric/matchbook/pkg/messaging"
)

// SetupConsumer starts a development consumer that logs every
// execution message on the topic. Returns the consumer so the caller
// can close it on shutdown.
func SetupConsumer(ctx context.Context, logger zerolog.Logger) (*queue.QueueMessageConsumer, error) {
	consumer, err := queue.NewQueueMessageConsumer()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to create Kafka consumer, continuing without consumer")
		return nil, err
	}

	go func() {
		logger.Info().Msg("starting Kafka consumer")
		err := consumer.ConsumeExecutionMessages(ctx, func(msg *messaging.ExecutionMessage) error {
			logger.Info().
				Str("book", msg.Book).
				Str("order_id", msg.OrderID).
				Str("executed_qty", msg.ExecutedQty).
				Str("remaining_qty", msg.RemainingQty).
				Strs("canceled", msg.Canceled).
				Bool("stored", msg.Stored).
				Interface("trades", msg.Trades).
				Msg("execution message")
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	return consumer, nil
}
