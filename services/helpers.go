package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dosada05/club-events/ical"
	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// mapRepositoryError translates repository sentinels into service errors.
// Unknown errors are returned unchanged for the caller to wrap.
func mapRepositoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrEventNotFound),
		errors.Is(err, repositories.ErrParticipationEventInvalid):
		return ErrEventNotFound
	case errors.Is(err, repositories.ErrMemberNotFound),
		errors.Is(err, repositories.ErrParticipationMemberInvalid):
		return ErrMemberNotFound
	case errors.Is(err, repositories.ErrParticipationConflict):
		return ErrAlreadyRegistered
	case errors.Is(err, repositories.ErrParticipationNotFound):
		return ErrNotRegistered
	case errors.Is(err, repositories.ErrMemberConflict):
		return ErrUsernameConflict
	case errors.Is(err, repositories.ErrEventInvalid):
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	default:
		return err
	}
}

func describeSchedule(e *models.Event) string {
	var sb strings.Builder
	sb.WriteString(e.EventDate.Format(models.DateLayout))
	if e.StartsAt != nil && *e.StartsAt != "" {
		sb.WriteString(" from ")
		sb.WriteString(*e.StartsAt)
		if e.EndsAt != nil && *e.EndsAt != "" {
			sb.WriteString(" to ")
			sb.WriteString(*e.EndsAt)
		}
	}
	return sb.String()
}

// confirmationNotification is sent to a member who joined an event, manually
// or by allocation. The calendar invite is best effort.
func confirmationNotification(e *models.Event, m *models.Member, origin models.ParticipationOrigin, now time.Time) models.Notification {
	var body strings.Builder
	if origin == models.OriginAutoAllocated {
		fmt.Fprintf(&body, "You have been assigned to %q on %s.\n", e.Title, describeSchedule(e))
	} else {
		fmt.Fprintf(&body, "You are registered for %q on %s.\n", e.Title, describeSchedule(e))
	}
	if contact := derefString(e.ContactName); contact != "" {
		fmt.Fprintf(&body, "Contact: %s %s\n", contact, derefString(e.ContactEmail))
	}
	body.WriteString("Thank you!\n")

	n := models.Notification{
		To:      []string{m.Email},
		Subject: fmt.Sprintf("Confirmation: %s", e.Title),
		Body:    body.String(),
	}
	if invite, err := ical.FromEvent(e, now); err == nil {
		n.Attachment = invite.Attachment()
	}
	return n
}

// rosterNotification tells the event contact who takes part after the
// deadline has passed.
func rosterNotification(e *models.Event, roster []models.Participation) models.Notification {
	var body strings.Builder
	fmt.Fprintf(&body, "The registration deadline for %q (%s) has passed.\n\n", e.Title, describeSchedule(e))
	if e.HasCapacity() {
		fmt.Fprintf(&body, "Participants: %d of %d\n", len(roster), e.Capacity)
	} else {
		fmt.Fprintf(&body, "Participants: %d\n", len(roster))
	}
	for _, p := range roster {
		email := ""
		if p.Member != nil {
			email = p.Member.Email
		}
		fmt.Fprintf(&body, "- %s <%s> (%s)\n", p.Username, email, p.Origin)
	}

	return models.Notification{
		To:      []string{derefString(e.ContactEmail)},
		Subject: fmt.Sprintf("Participants for %s", e.Title),
		Body:    body.String(),
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrEventTitleRequired) ||
		errors.Is(err, ErrEventDateRequired) ||
		errors.Is(err, ErrEventInvalidCapacity) ||
		errors.Is(err, ErrEventInvalidScore) ||
		errors.Is(err, ErrEventInvalidTime) ||
		errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrUsernameRequired) ||
		errors.Is(err, ErrEmailRequired) ||
		errors.Is(err, ErrInvalidRole)
}
