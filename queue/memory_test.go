package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/club-events/models"
)

func TestMemoryQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)

	require.NoError(t, q.Enqueue(ctx, models.Notification{ID: "a"}))
	require.NoError(t, q.Enqueue(ctx, models.Notification{ID: "b"}))
	assert.Equal(t, 2, q.Len())

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)

	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestMemoryQueueRejectsWhenFull(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(1)

	require.NoError(t, q.Enqueue(ctx, models.Notification{ID: "a"}))
	assert.ErrorIs(t, q.Enqueue(ctx, models.Notification{ID: "b"}), ErrFull)
}

func TestMemoryQueueClose(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(2)
	require.NoError(t, q.Enqueue(ctx, models.Notification{ID: "a"}))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(ctx, models.Notification{ID: "b"}), ErrClosed)

	n, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", n.ID)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryQueueDequeueHonoursContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueueConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				assert.NoError(t, q.Enqueue(ctx, models.Notification{Subject: "hi"}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, q.Len())
}
