package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/club-events/models"
)

const rosterContentType = "application/json"

// RosterSnapshot is the document written for an event once its deadline
// allocation has run.
type RosterSnapshot struct {
	Event        models.Event           `json:"event"`
	Participants []models.Participation `json:"participants"`
	ArchivedAt   time.Time              `json:"archived_at"`
}

// RosterArchive writes final rosters to object storage.
type RosterArchive struct {
	uploader FileUploader
	now      func() time.Time
}

func NewRosterArchive(uploader FileUploader) *RosterArchive {
	return &RosterArchive{uploader: uploader, now: time.Now}
}

// RosterKey is the object key of an event's roster archived at t.
func RosterKey(eventID int, t time.Time) string {
	return fmt.Sprintf("rosters/event-%d/%s.json", eventID, t.UTC().Format("20060102T150405Z"))
}

// Archive uploads the roster and returns its public URL, which is empty when
// the bucket has no public base URL.
func (a *RosterArchive) Archive(ctx context.Context, event *models.Event, participants []models.Participation) (string, error) {
	now := a.now()
	snapshot := RosterSnapshot{
		Event:        *event,
		Participants: participants,
		ArchivedAt:   now.UTC(),
	}
	snapshot.Event.Participants = nil

	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to encode roster of event %d: %w", event.ID, err)
	}

	result, err := a.uploader.Upload(ctx, RosterKey(event.ID, now), rosterContentType, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	return result.Location, nil
}
