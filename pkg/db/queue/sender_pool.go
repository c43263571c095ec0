package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantfabric/matchbook/pkg/messaging"
)

var (
	senderPool   chan messaging.MessageSender
	poolInitOnce sync.Once
	maxPoolSize  = 32
)

// initSenderPool initializes the sender pool
func initSenderPool() {
	poolInitOnce.Do(func() {
		senderPool = make(chan messaging.MessageSender, maxPoolSize)
		for i := 0; i < maxPoolSize; i++ {
			sender, err := NewQueueMessageSender()
			if err != nil {
				log.Error().Err(err).Msg("failed to create pooled sender")
				continue
			}
			senderPool <- sender
		}
	})
}

// GetSender gets a sender from the pool
func GetSender() messaging.MessageSender {
	initSenderPool()

	select {
	case sender := <-senderPool:
		return sender
	default:
		log.Warn().Msg("sender pool is empty")
		return nil
	}
}

// ReturnSender returns a sender to the pool
func ReturnSender(sender messaging.MessageSender) {
	if sender == nil {
		return
	}

	select {
	case senderPool <- sender:
	default:
		log.Warn().Msg("sender pool is full")
		_ = sender.Close()
	}
}

// SendMessage sends a message using a pooled sender. A sender that
// fails is closed instead of returning to the pool.
func SendMessage(ctx context.Context, msg *messaging.ExecutionMessage) error {
	sender := GetSender()
	if sender == nil {
		return fmt.Errorf("failed to get message sender from pool")
	}

	if err := sender.SendExecutionMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("order_id", msg.OrderID).Msg("failed to send execution message")
		_ = sender.Close()
		return err
	}

	ReturnSender(sender)
	return nil
}
