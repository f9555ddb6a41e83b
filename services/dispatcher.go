package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dosada05/club-events/metrics"
	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/queue"
)

const (
	defaultNotifyWorkers = 2
	defaultNotifyTimeout = 15 * time.Second
)

type DispatcherConfig struct {
	Workers int
	Timeout time.Duration
}

// Dispatcher decouples notification delivery from the operations that produce
// notifications. Enqueue returns as soon as the queue accepted the message;
// workers deliver it later. Delivery failures are logged and counted only.
type Dispatcher struct {
	queue    queue.Queue
	notifier Notifier
	workers  int
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func NewDispatcher(q queue.Queue, notifier Notifier, cfg DispatcherConfig, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultNotifyWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultNotifyTimeout
	}
	return &Dispatcher{
		queue:    q,
		notifier: notifier,
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
		logger:   logger,
		metrics:  m,
	}
}

// Enqueue assigns an ID to n when it has none and hands it to the queue. The
// returned error wraps ErrNotificationFailed.
func (d *Dispatcher) Enqueue(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := d.queue.Enqueue(ctx, n); err != nil {
		d.metrics.IncNotification("rejected")
		d.logger.WarnContext(ctx, "notification rejected by queue",
			slog.String("notification_id", n.ID),
			slog.String("subject", n.Subject),
			slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return nil
}

// Start launches the workers. They run until the queue is closed or ctx is
// done; Wait blocks until all of them returned.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.work(ctx, id)
		}(i)
	}
	d.logger.Info("notification dispatcher started", slog.Int("workers", d.workers))
}

func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for {
		n, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			d.logger.Error("notification dequeue failed", slog.Int("worker", id), slog.Any("error", err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n models.Notification) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	if err := d.notifier.Send(sendCtx, n); err != nil {
		d.metrics.IncNotification("failed")
		d.logger.Error("notification delivery failed",
			slog.String("notification_id", n.ID),
			slog.Any("to", n.To),
			slog.String("subject", n.Subject),
			slog.Any("error", fmt.Errorf("%w: %v", ErrNotificationFailed, err)))
		return
	}
	d.metrics.IncNotification("sent")
}
