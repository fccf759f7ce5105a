package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/spawner/service/messaging"
)

type event struct {
	TaskID string
	Output string
}

func TestQueue(t *testing.T) {
	config := DefaultConfig()
	config.RetryDelay = 10 * time.Millisecond
	queue := NewQueue[event](config)

	ctx := context.Background()
	payload := event{TaskID: "t1", Output: "done"}

	require.NoError(t, queue.Publish(ctx, &payload))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.NotEmpty(t, message.ID())
	assert.Equal(t, payload, *message.T())

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
}

func TestQueue_Nack(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[event](config)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, queue.Publish(ctx, &event{TaskID: "retry"}))
	for i := 0; i <= config.MaxRetries; i++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, "retry", message.T().TaskID)
		require.NoError(t, message.Nack(fmt.Errorf("attempt %d", i)))
	}
	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_Close(t *testing.T) {
	queue := NewQueue[event](DefaultConfig())
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &event{TaskID: "buffered"}))
	require.NoError(t, queue.Close())
	require.NoError(t, queue.Close())

	assert.ErrorIs(t, queue.Publish(ctx, &event{TaskID: "late"}), messaging.ErrClosed)

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "buffered", message.T().TaskID)

	_, err = queue.Consume(ctx)
	assert.ErrorIs(t, err, messaging.ErrClosed)
}

func TestQueue_Concurrency(t *testing.T) {
	queue := NewQueue[event](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	producers, perProducer := 8, 10
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, queue.Publish(ctx, &event{TaskID: fmt.Sprintf("p%d-%d", p, i)}))
			}
		}(p)
	}

	seen := make(map[string]bool)
	for len(seen) < producers*perProducer {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		seen[message.T().TaskID] = true
		require.NoError(t, message.Ack())
	}
	wg.Wait()
	assert.Len(t, seen, producers*perProducer)
}
