package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the layout used for event dates and deadlines.
const DateLayout = "2006-01-02"

// AllocationState describes where an event is in the deadline allocation lifecycle.
type AllocationState string

const (
	AllocationPending   AllocationState = "pending"
	AllocationDue       AllocationState = "due"
	AllocationProcessed AllocationState = "processed"
)

// Event is a scheduled activity members can sign up for.
type Event struct {
	ID           int        `json:"id" db:"id"`
	Title        string     `json:"title" db:"title"`
	Description  *string    `json:"description,omitempty" db:"description"`
	EventDate    time.Time  `json:"event_date" db:"event_date"`
	StartsAt     *string    `json:"starts_at,omitempty" db:"starts_at"`
	EndsAt       *string    `json:"ends_at,omitempty" db:"ends_at"`
	Capacity     int        `json:"capacity" db:"capacity"` // 0 means unlimited
	Deadline     *time.Time `json:"deadline,omitempty" db:"deadline"`
	ContactName  *string    `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail *string    `json:"contact_email,omitempty" db:"contact_email"`
	ScoreValue   int        `json:"score_value" db:"score_value"`

	AutoAllocate        bool `json:"auto_allocate" db:"auto_allocate"`
	NotifyOnDeadline    bool `json:"notify_on_deadline" db:"notify_on_deadline"`
	AllocationProcessed bool `json:"allocation_processed" db:"allocation_processed"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Participants []PublicParticipant `json:"participants,omitempty" db:"-"`
}

type eventAlias Event

// eventJSON carries the calendar days of an event as DateLayout strings, the
// same form the event input accepts.
type eventJSON struct {
	eventAlias
	EventDate string  `json:"event_date"`
	Deadline  *string `json:"deadline,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		eventAlias: eventAlias(e),
		EventDate:  e.EventDate.Format(DateLayout),
	}
	if e.Deadline != nil {
		d := e.Deadline.Format(DateLayout)
		out.Deadline = &d
	}
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event(in.eventAlias)
	e.EventDate = time.Time{}
	e.Deadline = nil
	if in.EventDate != "" {
		d, err := time.Parse(DateLayout, in.EventDate)
		if err != nil {
			return fmt.Errorf("event_date: %w", err)
		}
		e.EventDate = d
	}
	if in.Deadline != nil {
		d, err := time.Parse(DateLayout, *in.Deadline)
		if err != nil {
			return fmt.Errorf("deadline: %w", err)
		}
		e.Deadline = &d
	}
	return nil
}

// HasCapacity reports whether the event limits the number of participants.
func (e *Event) HasCapacity() bool {
	return e.Capacity > 0
}

// AllocationState derives the allocation lifecycle state for the given day.
func (e *Event) AllocationState(today time.Time) AllocationState {
	if e.AllocationProcessed {
		return AllocationProcessed
	}
	if e.Deadline == nil || truncateDay(today).Before(truncateDay(*e.Deadline)) {
		return AllocationPending
	}
	return AllocationDue
}

// WantsDeadlineRun reports whether the deadline scheduler has anything to do for the event.
func (e *Event) WantsDeadlineRun() bool {
	return e.AutoAllocate || e.NotifyOnDeadline
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
