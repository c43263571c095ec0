package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaMessageSenderValidation(t *testing.T) {
	_, err := NewKafkaMessageSender("", "executions")
	assert.Error(t, err)

	_, err = NewKafkaMessageSender("localhost:9092", "")
	assert.Error(t, err)
}

func TestNewKafkaMessageSender(t *testing.T) {
	sender, err := NewKafkaMessageSender("localhost:9092", "executions")
	require.NoError(t, err)
	require.NotNil(t, sender)
	require.NoError(t, sender.Close())
}
