// Package queue holds outgoing notifications between the request that
// produced them and the workers that deliver them.
package queue

import (
	"context"
	"errors"

	"github.com/Dosada05/club-events/models"
)

var (
	ErrFull   = errors.New("notification queue is full")
	ErrClosed = errors.New("notification queue is closed")
)

// Queue accepts notifications without waiting for delivery and hands them to
// consumers one at a time.
type Queue interface {
	// Enqueue stores n. It returns ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, n models.Notification) error
	// Dequeue blocks until a notification is available, ctx is done or the
	// queue is closed.
	Dequeue(ctx context.Context) (models.Notification, error)
	Close() error
}
