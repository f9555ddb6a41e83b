package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/club-events/metrics"
	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

// RosterPublisher receives the participant list of an event after it changed.
type RosterPublisher interface {
	PublishRoster(eventID int, participants []models.Participation)
}

type JoinOptions struct {
	Origin models.ParticipationOrigin
	// Force lets an admin add a member to an event that is already full.
	Force bool
}

type JoinResult struct {
	Participation *models.Participation `json:"participation"`
	Score         int                   `json:"score"`
	Warnings      []string              `json:"warnings,omitempty"`
}

// RegistrationService owns the (event, member) participation ledger. Every
// change to it credits or debits the member's score in the same transaction.
type RegistrationService struct {
	db       repositories.Database
	ledger   *ScoreLedger
	notifier NotificationSender
	roster   RosterPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRegistrationService(
	db repositories.Database,
	ledger *ScoreLedger,
	notifier NotificationSender,
	roster RosterPublisher,
	logger *slog.Logger,
	m *metrics.Metrics,
) *RegistrationService {
	return &RegistrationService{
		db:       db,
		ledger:   ledger,
		notifier: notifier,
		roster:   roster,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Join registers username for the event. The event row is locked for the
// whole transaction, so concurrent joins to one event are serialised and the
// capacity check cannot be raced. A duplicate join fails with
// ErrAlreadyRegistered without touching the score.
func (s *RegistrationService) Join(ctx context.Context, eventID int, username string, opts JoinOptions) (*JoinResult, error) {
	if opts.Origin == "" {
		opts.Origin = models.OriginManual
	}

	var (
		event  *models.Event
		member *models.Member
		result = &JoinResult{}
	)
	err := s.db.RunInTx(ctx, func(store repositories.Store) error {
		var err error
		event, err = store.Events().GetByIDForUpdate(ctx, eventID)
		if err != nil {
			return mapRepositoryError(err)
		}
		member, err = store.Members().GetByUsername(ctx, username)
		if err != nil {
			return mapRepositoryError(err)
		}

		p, score, err := s.joinInTx(ctx, store, event, username, opts.Origin)
		if err != nil {
			return err
		}
		if event.HasCapacity() && !opts.Force {
			count, err := store.Participations().CountByEvent(ctx, eventID)
			if err != nil {
				return fmt.Errorf("failed to count participants: %w", err)
			}
			// The new row is already counted; going over means the event was full.
			if count > event.Capacity {
				return ErrCapacityExceeded
			}
		}
		result.Participation = p
		result.Score = score
		return nil
	})
	if err != nil {
		s.metrics.IncRegistration(string(opts.Origin), registrationOutcome(err))
		if isRegistrationError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to join event %d: %w", eventID, err)
	}
	s.metrics.IncRegistration(string(opts.Origin), "ok")

	s.logger.InfoContext(ctx, "member joined event",
		slog.Int("event_id", eventID),
		slog.String("username", username),
		slog.String("origin", string(opts.Origin)),
		slog.Bool("forced", opts.Force))

	if err := s.notifier.Enqueue(ctx, confirmationNotification(event, member, opts.Origin, s.now())); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
	}
	s.publishRoster(ctx, eventID)
	return result, nil
}

// joinInTx inserts the participation and credits the event's score value. It
// must run inside a transaction that holds the event row lock.
func (s *RegistrationService) joinInTx(ctx context.Context, store repositories.Store, event *models.Event, username string, origin models.ParticipationOrigin) (*models.Participation, int, error) {
	p := &models.Participation{
		EventID:       event.ID,
		Username:      username,
		Origin:        origin,
		ScoreCredited: event.ScoreValue,
	}
	if err := store.Participations().Create(ctx, p); err != nil {
		return nil, 0, mapRepositoryError(err)
	}
	score, err := s.ledger.Credit(ctx, store, username, p.ScoreCredited)
	if err != nil {
		return nil, 0, err
	}
	return p, score, nil
}

// Withdraw removes the participation and debits exactly the score it credited.
// ErrNotRegistered is returned when there is nothing to remove.
func (s *RegistrationService) Withdraw(ctx context.Context, eventID int, username string) error {
	err := s.db.RunInTx(ctx, func(store repositories.Store) error {
		if _, err := store.Events().GetByIDForUpdate(ctx, eventID); err != nil {
			return mapRepositoryError(err)
		}
		removed, err := store.Participations().Delete(ctx, eventID, username)
		if err != nil {
			return mapRepositoryError(err)
		}
		_, err = s.ledger.Debit(ctx, store, username, removed.ScoreCredited)
		return err
	})
	if err != nil {
		s.metrics.IncWithdrawal(registrationOutcome(err))
		if isRegistrationError(err) {
			return err
		}
		return fmt.Errorf("failed to withdraw from event %d: %w", eventID, err)
	}
	s.metrics.IncWithdrawal("ok")

	s.logger.InfoContext(ctx, "member withdrew from event",
		slog.Int("event_id", eventID),
		slog.String("username", username))
	s.publishRoster(ctx, eventID)
	return nil
}

// ListParticipants returns the event's participants in join order.
func (s *RegistrationService) ListParticipants(ctx context.Context, eventID int) ([]models.Participation, error) {
	if _, err := s.db.Events().GetByID(ctx, eventID); err != nil {
		if mapped := mapRepositoryError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to load event %d: %w", eventID, err)
	}
	participants, err := s.db.Participations().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of event %d: %w", eventID, err)
	}
	for i := range participants {
		if participants[i].Member != nil {
			participants[i].Member.PasswordHash = ""
		}
	}
	return participants, nil
}

// ListMemberEvents returns the events username is registered for.
func (s *RegistrationService) ListMemberEvents(ctx context.Context, username string) ([]models.Event, error) {
	if _, err := s.db.Members().GetByUsername(ctx, username); err != nil {
		if mapped := mapRepositoryError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("failed to load member %s: %w", username, err)
	}
	events, err := s.db.Events().ListByMember(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list events of %s: %w", username, err)
	}
	return events, nil
}

// RemoveMember deletes the member together with all of their participations.
func (s *RegistrationService) RemoveMember(ctx context.Context, username string) error {
	var affected []models.Participation
	err := s.db.RunInTx(ctx, func(store repositories.Store) error {
		if _, err := store.Members().GetByUsername(ctx, username); err != nil {
			return mapRepositoryError(err)
		}
		var err error
		affected, err = store.Participations().ListByMember(ctx, username)
		if err != nil {
			return err
		}
		if _, err := store.Participations().DeleteByMember(ctx, username); err != nil {
			return err
		}
		return mapRepositoryError(store.Members().Delete(ctx, username))
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return err
		}
		return fmt.Errorf("failed to remove member %s: %w", username, err)
	}

	s.logger.InfoContext(ctx, "member removed",
		slog.String("username", username),
		slog.Int("participations", len(affected)))
	for _, p := range affected {
		s.publishRoster(ctx, p.EventID)
	}
	return nil
}

func (s *RegistrationService) publishRoster(ctx context.Context, eventID int) {
	if s.roster == nil {
		return
	}
	participants, err := s.ListParticipants(ctx, eventID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load roster for live update", slog.Int("event_id", eventID), slog.Any("error", err))
		return
	}
	s.roster.PublishRoster(eventID, participants)
}

func isRegistrationError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrNotRegistered) ||
		errors.Is(err, ErrCapacityExceeded)
}

func registrationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrMemberNotFound):
		return "not_found"
	default:
		return "error"
	}
}
