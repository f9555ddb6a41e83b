// Package ical serialises club events as RFC 5545 calendar invites.
package ical

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dosada05/club-events/models"
)

const (
	ContentType = "text/calendar; charset=utf-8; method=PUBLISH"
	prodID      = "-//club-events//EN"
	lineLimit   = 75

	dateFormat     = "20060102"
	localFormat    = "20060102T150405"
	utcFormat      = "20060102T150405Z"
	clockLayout    = "15:04"
	defaultMinutes = 60
)

// Invite is one VEVENT wrapped in a VCALENDAR.
type Invite struct {
	UID          string
	Summary      string
	Description  string
	Start        time.Time
	End          time.Time
	AllDay       bool
	Organizer    string
	OrganizerTag string
	Stamp        time.Time
}

// FromEvent builds an invite for e. Events without a start time become all-day
// entries; a start without an end lasts one hour.
func FromEvent(e *models.Event, now time.Time) (*Invite, error) {
	if e == nil {
		return nil, fmt.Errorf("event is nil")
	}
	if e.EventDate.IsZero() {
		return nil, fmt.Errorf("event %d has no date", e.ID)
	}

	inv := &Invite{
		UID:     fmt.Sprintf("%s@club-events", uuid.NewString()),
		Summary: e.Title,
		Stamp:   now.UTC(),
	}
	if e.Description != nil {
		inv.Description = *e.Description
	}
	if e.ContactEmail != nil && *e.ContactEmail != "" {
		inv.Organizer = *e.ContactEmail
		if e.ContactName != nil {
			inv.OrganizerTag = *e.ContactName
		}
	}

	day := time.Date(e.EventDate.Year(), e.EventDate.Month(), e.EventDate.Day(), 0, 0, 0, 0, time.UTC)
	if e.StartsAt == nil || *e.StartsAt == "" {
		inv.AllDay = true
		inv.Start = day
		inv.End = day.AddDate(0, 0, 1)
		return inv, nil
	}

	start, err := atClock(day, *e.StartsAt)
	if err != nil {
		return nil, fmt.Errorf("event %d start time: %w", e.ID, err)
	}
	inv.Start = start
	inv.End = start.Add(defaultMinutes * time.Minute)
	if e.EndsAt != nil && *e.EndsAt != "" {
		end, err := atClock(day, *e.EndsAt)
		if err != nil {
			return nil, fmt.Errorf("event %d end time: %w", e.ID, err)
		}
		if end.After(start) {
			inv.End = end
		}
	}
	return inv, nil
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// Bytes renders the invite. Start and end are written as floating local times
// since the club works in a single time zone.
func (inv *Invite) Bytes() []byte {
	var sb strings.Builder
	w := func(line string) {
		sb.WriteString(fold(line))
		sb.WriteString("\r\n")
	}

	w("BEGIN:VCALENDAR")
	w("VERSION:2.0")
	w("PRODID:" + prodID)
	w("CALSCALE:GREGORIAN")
	w("METHOD:PUBLISH")
	w("BEGIN:VEVENT")
	w("UID:" + inv.UID)
	w("DTSTAMP:" + inv.Stamp.UTC().Format(utcFormat))
	if inv.AllDay {
		w("DTSTART;VALUE=DATE:" + inv.Start.Format(dateFormat))
		w("DTEND;VALUE=DATE:" + inv.End.Format(dateFormat))
	} else {
		w("DTSTART:" + inv.Start.Format(localFormat))
		w("DTEND:" + inv.End.Format(localFormat))
	}
	w("SUMMARY:" + escape(inv.Summary))
	if inv.Description != "" {
		w("DESCRIPTION:" + escape(inv.Description))
	}
	if inv.Organizer != "" {
		if inv.OrganizerTag != "" {
			w(fmt.Sprintf("ORGANIZER;CN=%s:mailto:%s", quoteParam(inv.OrganizerTag), inv.Organizer))
		} else {
			w("ORGANIZER:mailto:" + inv.Organizer)
		}
	}
	w("END:VEVENT")
	w("END:VCALENDAR")
	return []byte(sb.String())
}

// Attachment wraps the rendered invite for a notification.
func (inv *Invite) Attachment() *models.Attachment {
	return &models.Attachment{
		Filename:    "event.ics",
		ContentType: ContentType,
		Content:     inv.Bytes(),
	}
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escape(s string) string {
	return textEscaper.Replace(s)
}

func quoteParam(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	if strings.ContainsAny(s, ";:,") {
		return `"` + s + `"`
	}
	return s
}

// fold splits a content line into 75-octet chunks, continuation lines starting
// with a single space. Multi-byte runes are never split.
func fold(line string) string {
	if len(line) <= lineLimit {
		return line
	}

	var sb strings.Builder
	width := 0
	limit := lineLimit
	for _, r := range line {
		size := len(string(r))
		if width+size > limit {
			sb.WriteString("\r\n ")
			width = 0
			limit = lineLimit - 1
		}
		sb.WriteRune(r)
		width += size
	}
	return sb.String()
}
