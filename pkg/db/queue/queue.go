package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/quantfabric/matchbook/pkg/messaging"
)

const maxRetry = 5

// newSyncProducer is swapped out in tests.
var newSyncProducer = sarama.NewSyncProducer

var (
	settingsMu sync.RWMutex
	brokerList = "localhost:9092"
	topic      = "executions"
)

// SetBrokerList overrides the Kafka broker address. Called from config
// loading before any sender is created.
func SetBrokerList(addr string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	brokerList = addr
}

// SetTopic overrides the Kafka topic.
func SetTopic(t string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	topic = t
}

func currentSettings() (string, string) {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return brokerList, topic
}

// QueueMessageSender implements the MessageSender interface on top of
// a sarama synchronous producer.
type QueueMessageSender struct {
	producer sarama.SyncProducer
	topic    string
}

// NewQueueMessageSender connects a synchronous producer to the
// configured broker.
func NewQueueMessageSender() (*QueueMessageSender, error) {
	broker, t := currentSettings()

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = maxRetry

	producer, err := newSyncProducer([]string{broker}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &QueueMessageSender{producer: producer, topic: t}, nil
}

// SendExecutionMessage publishes the message as JSON, keyed by order
// id.
func (q *QueueMessageSender) SendExecutionMessage(_ context.Context, msg *messaging.ExecutionMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal execution message: %w", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: q.topic,
		Key:   sarama.StringEncoder(msg.OrderID),
		Value: sarama.ByteEncoder(data),
	}

	if _, _, err := q.producer.SendMessage(pm); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}

	return nil
}

// Close shuts down the underlying producer.
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}

// Ensure QueueMessageSender implements MessageSender
var _ messaging.MessageSender = (*QueueMessageSender)(nil)
