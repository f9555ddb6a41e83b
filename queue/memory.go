package queue

import (
	"context"
	"sync"

	"github.com/Dosada05/club-events/models"
)

const defaultMemoryCapacity = 256

// MemoryQueue implements Queue using a buffered channel.
type MemoryQueue struct {
	items  chan models.Notification
	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryQueue{items: make(chan models.Notification, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, n models.Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.items <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (models.Notification, error) {
	select {
	case n, ok := <-q.items:
		if !ok {
			return models.Notification{}, ErrClosed
		}
		return n, nil
	case <-ctx.Done():
		return models.Notification{}, ctx.Err()
	}
}

// Len returns the number of queued notifications.
func (q *MemoryQueue) Len() int {
	return len(q.items)
}

// Close stops accepting notifications. Already queued ones can still be
// dequeued; after that Dequeue returns ErrClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}
