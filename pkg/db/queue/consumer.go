package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/quantfabric/matchbook/pkg/messaging"
)

// QueueMessageConsumer reads execution messages back off the topic.
// Used by the development consumer and integration tooling.
type QueueMessageConsumer struct {
	consumer sarama.Consumer
	topic    string
}

// NewQueueMessageConsumer connects a consumer to the configured
// broker.
func NewQueueMessageConsumer() (*QueueMessageConsumer, error) {
	broker, t := currentSettings()

	cfg := sarama.NewConfig()
	cfg.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer([]string{broker}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &QueueMessageConsumer{consumer: consumer, topic: t}, nil
}

// ConsumeExecutionMessages reads from the newest offset of every
// partition and invokes the handler per message until the context is
// canceled.
func (c *QueueMessageConsumer) ConsumeExecutionMessages(ctx context.Context, handler func(*messaging.ExecutionMessage) error) error {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	msgs := make(chan *sarama.ConsumerMessage)
	for _, p := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, p, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("failed to consume partition %d: %w", p, err)
		}
		go func(pc sarama.PartitionConsumer) {
			defer pc.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case m := <-pc.Messages():
					msgs <- m
				}
			}
		}(pc)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-msgs:
			var msg messaging.ExecutionMessage
			if err := json.Unmarshal(m.Value, &msg); err != nil {
				continue
			}
			if err := handler(&msg); err != nil {
				return err
			}
		}
	}
}

// Close shuts down the underlying consumer.
func (c *QueueMessageConsumer) Close() error {
	return c.consumer.Close()
}
