package services

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/club-events/metrics"
	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

// Shuffler permutes n elements through swap.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// lockedRand is a PCG source safe for concurrent allocation runs.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// NewSeededShuffler returns a deterministic Shuffler.
func NewSeededShuffler(seed1, seed2 uint64) Shuffler {
	return &lockedRand{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewRandomShuffler returns a Shuffler seeded from crypto/rand.
func NewRandomShuffler() Shuffler {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return NewSeededShuffler(uint64(time.Now().UnixNano()), 0)
	}
	return NewSeededShuffler(binary.LittleEndian.Uint64(seed[:8]), binary.LittleEndian.Uint64(seed[8:]))
}

// SelectCandidates picks up to remaining members, preferring lower scores.
// Members are taken in whole score bands from the lowest score upwards; the
// band that does not fit completely is shuffled and cut to the places left.
func SelectCandidates(candidates []models.Member, remaining int, shuffler Shuffler) []models.Member {
	if remaining <= 0 || len(candidates) == 0 {
		return nil
	}

	sorted := make([]models.Member, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	selected := make([]models.Member, 0, min(remaining, len(sorted)))
	for start := 0; start < len(sorted) && len(selected) < remaining; {
		end := start
		for end < len(sorted) && sorted[end].Score == sorted[start].Score {
			end++
		}
		band := sorted[start:end]
		left := remaining - len(selected)
		if len(band) > left {
			shuffler.Shuffle(len(band), func(i, j int) { band[i], band[j] = band[j], band[i] })
			band = band[:left]
		}
		selected = append(selected, band...)
		start = end
	}
	return selected
}

// RosterArchiver stores the final roster of an event once its deadline passed.
type RosterArchiver interface {
	Archive(ctx context.Context, event *models.Event, participants []models.Participation) (string, error)
}

type AllocationResult struct {
	Event      *models.Event          `json:"event"`
	Selected   []models.Participation `json:"selected"`
	Skipped    []string               `json:"skipped,omitempty"`
	Roster     []models.Participation `json:"roster"`
	ArchiveURL string                 `json:"archive_url,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

type AllocationOption func(*AllocationService)

// WithAllocationClock sets the clock deciding whether a deadline has passed.
// It should return times in the club's time zone.
func WithAllocationClock(now func() time.Time) AllocationOption {
	return func(s *AllocationService) {
		s.now = now
	}
}

// AllocationService fills free places of an event by lottery once its
// deadline has passed and marks the event processed, in one transaction.
type AllocationService struct {
	db           repositories.Database
	registration *RegistrationService
	shuffler     Shuffler
	notifier     NotificationSender
	roster       RosterPublisher
	archiver     RosterArchiver
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewAllocationService(
	db repositories.Database,
	registration *RegistrationService,
	shuffler Shuffler,
	notifier NotificationSender,
	roster RosterPublisher,
	archiver RosterArchiver,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...AllocationOption,
) *AllocationService {
	s := &AllocationService{
		db:           db,
		registration: registration,
		shuffler:     shuffler,
		notifier:     notifier,
		roster:       roster,
		archiver:     archiver,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allocate runs the deadline step for one event. It fails with
// ErrAllocationAlreadyProcessed when a previous run committed, and with
// ErrAllocationNotDue before the deadline day. Nothing is sent unless the
// transaction committed.
func (s *AllocationService) Allocate(ctx context.Context, eventID int) (*AllocationResult, error) {
	result := &AllocationResult{}
	selected := make(map[string]*models.Member)
	today := s.now()

	err := s.db.RunInTx(ctx, func(store repositories.Store) error {
		event, err := store.Events().GetByIDForUpdate(ctx, eventID)
		if err != nil {
			return mapRepositoryError(err)
		}
		switch event.AllocationState(today) {
		case models.AllocationProcessed:
			return ErrAllocationAlreadyProcessed
		case models.AllocationPending:
			return ErrAllocationNotDue
		}
		result.Event = event

		if event.AutoAllocate && event.HasCapacity() {
			if err := s.fill(ctx, store, event, result, selected); err != nil {
				return err
			}
		}

		if err := store.Events().MarkAllocationProcessed(ctx, eventID); err != nil {
			return mapRepositoryError(err)
		}
		event.AllocationProcessed = true

		result.Roster, err = store.Participations().ListByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAllocationAlreadyProcessed):
			s.metrics.IncAllocationRun("conflict")
			return nil, err
		case errors.Is(err, ErrAllocationNotDue), errors.Is(err, ErrEventNotFound):
			return nil, err
		}
		s.metrics.IncAllocationRun("error")
		return nil, fmt.Errorf("failed to allocate event %d: %w", eventID, err)
	}

	s.metrics.IncAllocationRun("processed")
	s.metrics.AddAllocatedMembers(len(result.Selected))
	s.logger.InfoContext(ctx, "event allocation processed",
		slog.Int("event_id", eventID),
		slog.Int("selected", len(result.Selected)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("participants", len(result.Roster)))

	for i := range result.Roster {
		if result.Roster[i].Member != nil {
			result.Roster[i].Member.PasswordHash = ""
		}
	}
	s.afterCommit(ctx, result, selected)
	return result, nil
}

func (s *AllocationService) fill(ctx context.Context, store repositories.Store, event *models.Event, result *AllocationResult, members map[string]*models.Member) error {
	count, err := store.Participations().CountByEvent(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to count participants: %w", err)
	}
	remaining := event.Capacity - count
	if remaining <= 0 {
		return nil
	}

	candidates, err := store.Members().ListAllocationCandidates(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to list allocation candidates: %w", err)
	}

	for _, m := range SelectCandidates(candidates, remaining, s.shuffler) {
		p, _, err := s.registration.joinInTx(ctx, store, event, m.Username, models.OriginAutoAllocated)
		if errors.Is(err, ErrAlreadyRegistered) || errors.Is(err, ErrMemberNotFound) {
			s.logger.WarnContext(ctx, "skipping allocation candidate",
				slog.Int("event_id", event.ID),
				slog.String("username", m.Username),
				slog.Any("reason", err))
			result.Skipped = append(result.Skipped, m.Username)
			continue
		}
		if err != nil {
			return err
		}
		member := m
		members[m.Username] = &member
		result.Selected = append(result.Selected, *p)
	}
	return nil
}

func (s *AllocationService) afterCommit(ctx context.Context, result *AllocationResult, members map[string]*models.Member) {
	event := result.Event

	if event.NotifyOnDeadline {
		if derefString(event.ContactEmail) != "" {
			if err := s.notifier.Enqueue(ctx, rosterNotification(event, result.Roster)); err != nil {
				result.Warnings = append(result.Warnings, err.Error())
			}
		}
		now := s.now()
		for _, p := range result.Selected {
			m, ok := members[p.Username]
			if !ok {
				continue
			}
			if err := s.notifier.Enqueue(ctx, confirmationNotification(event, m, models.OriginAutoAllocated, now)); err != nil {
				result.Warnings = append(result.Warnings, err.Error())
			}
		}
	}

	if s.roster != nil {
		s.roster.PublishRoster(event.ID, result.Roster)
	}

	if s.archiver != nil {
		url, err := s.archiver.Archive(ctx, event, result.Roster)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to archive roster", slog.Int("event_id", event.ID), slog.Any("error", err))
			result.Warnings = append(result.Warnings, fmt.Sprintf("roster archive failed: %v", err))
		} else {
			result.ArchiveURL = url
		}
	}
}
