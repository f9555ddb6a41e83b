package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/club-events/metrics"
	"github.com/Dosada05/club-events/repositories"
)

const (
	defaultSchedulerConcurrency  = 4
	defaultSchedulerEventTimeout = 30 * time.Second
)

// Allocator runs the deadline step of one event.
type Allocator interface {
	Allocate(ctx context.Context, eventID int) (*AllocationResult, error)
}

type SchedulerConfig struct {
	// RunAt is the daily wall clock time, HH:MM, in Location.
	RunAt        string
	Location     *time.Location
	Concurrency  int
	EventTimeout time.Duration
}

// RunSummary counts what one scheduler pass did.
type RunSummary struct {
	Due       int
	Processed int
	Conflicts int
	Failed    int
}

// DeadlineScheduler finds events whose deadline has passed and hands each of
// them to the Allocator. Events are independent: one failing or slow event
// does not hold up the others, and a failed event stays due for the next run.
type DeadlineScheduler struct {
	events    repositories.EventRepository
	allocator Allocator
	cfg       SchedulerConfig
	hour      int
	minute    int
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	mu        sync.Mutex
}

func NewDeadlineScheduler(events repositories.EventRepository, allocator Allocator, cfg SchedulerConfig, logger *slog.Logger, m *metrics.Metrics) (*DeadlineScheduler, error) {
	if cfg.RunAt == "" {
		cfg.RunAt = "06:00"
	}
	at, err := time.Parse("15:04", cfg.RunAt)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler run time %q: %w", cfg.RunAt, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultSchedulerConcurrency
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = defaultSchedulerEventTimeout
	}
	return &DeadlineScheduler{
		events:    events,
		allocator: allocator,
		cfg:       cfg,
		hour:      at.Hour(),
		minute:    at.Minute(),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Now returns the current time in the scheduler's location.
func (s *DeadlineScheduler) Now() time.Time {
	return s.now().In(s.cfg.Location)
}

// Start runs one pass immediately and then once a day at RunAt until ctx is
// done.
func (s *DeadlineScheduler) Start(ctx context.Context) {
	s.logger.Info("deadline scheduler started",
		slog.String("run_at", s.cfg.RunAt),
		slog.String("location", s.cfg.Location.String()),
		slog.Int("concurrency", s.cfg.Concurrency))

	s.runLogged(ctx)
	for {
		next := s.NextRun(s.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("deadline scheduler stopped")
			return
		case <-timer.C:
			s.runLogged(ctx)
		}
	}
}

func (s *DeadlineScheduler) runLogged(ctx context.Context) {
	summary, err := s.RunOnce(ctx, s.Now())
	if err != nil {
		s.logger.Error("deadline scheduler run failed", slog.Any("error", err))
		return
	}
	s.logger.Info("deadline scheduler run finished",
		slog.Int("due", summary.Due),
		slog.Int("processed", summary.Processed),
		slog.Int("conflicts", summary.Conflicts),
		slog.Int("failed", summary.Failed))
}

// NextRun returns the first RunAt strictly after now.
func (s *DeadlineScheduler) NextRun(now time.Time) time.Time {
	now = now.In(s.cfg.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.cfg.Location)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, s.hour, s.minute, 0, 0, s.cfg.Location)
	}
	return next
}

// RunOnce processes every event due on the day of now. Passes do not overlap
// within one process; across processes the allocation transaction decides
// which run wins.
func (s *DeadlineScheduler) RunOnce(ctx context.Context, now time.Time) (RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := time.Now()
	defer func() { s.metrics.ObserveSchedulerRun(time.Since(started)) }()

	today := now.In(s.cfg.Location)
	due, err := s.events.ListDueForAllocation(ctx, today)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to list due events: %w", err)
	}

	summary := RunSummary{Due: len(due)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, event := range due {
		eventID := event.ID
		g.Go(func() error {
			eventCtx, cancel := context.WithTimeout(ctx, s.cfg.EventTimeout)
			defer cancel()

			_, err := s.allocator.Allocate(eventCtx, eventID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				summary.Processed++
			case errors.Is(err, ErrAllocationAlreadyProcessed):
				summary.Conflicts++
				s.logger.Info("event already processed by another run", slog.Int("event_id", eventID))
			default:
				summary.Failed++
				s.logger.Error("event allocation failed, will retry on next run",
					slog.Int("event_id", eventID),
					slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return summary, nil
}
