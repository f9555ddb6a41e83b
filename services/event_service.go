package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

const timeOfDayLayout = "15:04"

// EventInput is the editable part of an event. Dates use models.DateLayout,
// times of day use HH:MM.
type EventInput struct {
	Title            string  `json:"title"`
	Description      *string `json:"description"`
	EventDate        string  `json:"event_date"`
	StartsAt         *string `json:"starts_at"`
	EndsAt           *string `json:"ends_at"`
	Capacity         int     `json:"capacity"`
	Deadline         *string `json:"deadline"`
	ContactName      *string `json:"contact_name"`
	ContactEmail     *string `json:"contact_email"`
	ScoreValue       int     `json:"score_value"`
	AutoAllocate     bool    `json:"auto_allocate"`
	NotifyOnDeadline bool    `json:"notify_on_deadline"`
}

type EventService struct {
	db     repositories.Database
	ledger *ScoreLedger
	roster RosterPublisher
	logger *slog.Logger
}

func NewEventService(db repositories.Database, ledger *ScoreLedger, roster RosterPublisher, logger *slog.Logger) *EventService {
	return &EventService{db: db, ledger: ledger, roster: roster, logger: logger}
}

func (s *EventService) Create(ctx context.Context, input EventInput) (*models.Event, error) {
	event := &models.Event{}
	if err := applyEventInput(event, input); err != nil {
		return nil, err
	}
	if err := s.db.Events().Create(ctx, event); err != nil {
		if mapped := mapRepositoryError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	s.logger.InfoContext(ctx, "event created", slog.Int("event_id", event.ID), slog.String("title", event.Title))
	return event, nil
}

// Get returns the event with its participants.
func (s *EventService) Get(ctx context.Context, id int) (*models.Event, error) {
	event, err := s.db.Events().GetByID(ctx, id)
	if err != nil {
		if mapped := mapRepositoryError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	if err := s.loadParticipants(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *EventService) List(ctx context.Context) ([]models.Event, error) {
	events, err := s.db.Events().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	for i := range events {
		if err := s.loadParticipants(ctx, &events[i]); err != nil {
			return nil, err
		}
	}
	return events, nil
}

// Update replaces the editable fields. The allocation flag and the score
// already credited to participants stay as they are.
func (s *EventService) Update(ctx context.Context, id int, input EventInput) (*models.Event, error) {
	var event *models.Event
	err := s.db.RunInTx(ctx, func(store repositories.Store) error {
		var err error
		event, err = store.Events().GetByIDForUpdate(ctx, id)
		if err != nil {
			return mapRepositoryError(err)
		}
		if err := applyEventInput(event, input); err != nil {
			return err
		}
		return mapRepositoryError(store.Events().Update(ctx, event))
	})
	if err != nil {
		if isEventError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update event %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "event updated", slog.Int("event_id", id))
	if err := s.loadParticipants(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Delete removes the event and debits every participant by the score the
// event credited them.
func (s *EventService) Delete(ctx context.Context, id int) error {
	var removed []models.Participation
	err := s.db.RunInTx(ctx, func(store repositories.Store) error {
		if _, err := store.Events().GetByIDForUpdate(ctx, id); err != nil {
			return mapRepositoryError(err)
		}
		var err error
		removed, err = store.Participations().ListByEvent(ctx, id)
		if err != nil {
			return err
		}
		// Debit in username order so concurrent deletions lock member rows in
		// the same order.
		slices.SortFunc(removed, func(a, b models.Participation) int {
			return strings.Compare(a.Username, b.Username)
		})
		for _, p := range removed {
			if _, err := s.ledger.Debit(ctx, store, p.Username, p.ScoreCredited); err != nil {
				return err
			}
		}
		return mapRepositoryError(store.Events().Delete(ctx, id))
	})
	if err != nil {
		if isEventError(err) {
			return err
		}
		return fmt.Errorf("failed to delete event %d: %w", id, err)
	}

	s.logger.InfoContext(ctx, "event deleted", slog.Int("event_id", id), slog.Int("participants", len(removed)))
	if s.roster != nil {
		s.roster.PublishRoster(id, []models.Participation{})
	}
	return nil
}

func (s *EventService) loadParticipants(ctx context.Context, event *models.Event) error {
	participants, err := s.db.Participations().ListByEvent(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to list participants of event %d: %w", event.ID, err)
	}
	event.Participants = models.PublicRoster(participants)
	return nil
}

func isEventError(err error) bool {
	return isRegistrationError(err) || isValidationError(err)
}

func applyEventInput(event *models.Event, input EventInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ErrEventTitleRequired
	}
	if strings.TrimSpace(input.EventDate) == "" {
		return ErrEventDateRequired
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(input.EventDate))
	if err != nil {
		return fmt.Errorf("%w: event_date must be %s", ErrValidationFailed, models.DateLayout)
	}
	if input.Capacity < 0 {
		return ErrEventInvalidCapacity
	}
	if input.ScoreValue < 0 {
		return ErrEventInvalidScore
	}

	startsAt, err := normalizeTimeOfDay(input.StartsAt)
	if err != nil {
		return err
	}
	endsAt, err := normalizeTimeOfDay(input.EndsAt)
	if err != nil {
		return err
	}
	if endsAt != nil && startsAt == nil {
		return fmt.Errorf("%w: ends_at requires starts_at", ErrEventInvalidTime)
	}
	if startsAt != nil && endsAt != nil && *endsAt <= *startsAt {
		return fmt.Errorf("%w: ends_at must be after starts_at", ErrEventInvalidTime)
	}

	contactEmail := trimOptional(input.ContactEmail)
	if contactEmail != nil {
		if err := validateEmail(*contactEmail); err != nil {
			return err
		}
	}

	var deadline *time.Time
	if input.Deadline != nil && strings.TrimSpace(*input.Deadline) != "" {
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(*input.Deadline))
		if err != nil {
			return fmt.Errorf("%w: deadline must be %s", ErrValidationFailed, models.DateLayout)
		}
		deadline = &d
	}

	event.Title = title
	event.Description = trimOptional(input.Description)
	event.EventDate = date
	event.StartsAt = startsAt
	event.EndsAt = endsAt
	event.Capacity = input.Capacity
	event.Deadline = deadline
	event.ContactName = trimOptional(input.ContactName)
	event.ContactEmail = contactEmail
	event.ScoreValue = input.ScoreValue
	event.AutoAllocate = input.AutoAllocate
	event.NotifyOnDeadline = input.NotifyOnDeadline
	return nil
}

func normalizeTimeOfDay(s *string) (*string, error) {
	v := trimOptional(s)
	if v == nil {
		return nil, nil
	}
	t, err := time.Parse(timeOfDayLayout, *v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not HH:MM", ErrEventInvalidTime, *v)
	}
	formatted := t.Format(timeOfDayLayout)
	return &formatted, nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
