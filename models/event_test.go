package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONUsesDateLayout(t *testing.T) {
	deadline := time.Date(2026, 5, 25, 0, 0, 0, 0, time.UTC)
	event := Event{
		ID:        3,
		Title:     "Field cleanup",
		EventDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		Deadline:  &deadline,
		Capacity:  4,
		CreatedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "2026-06-01", fields["event_date"])
	assert.Equal(t, "2026-05-25", fields["deadline"])
	assert.Equal(t, "2026-05-01T09:30:00Z", fields["created_at"])
	assert.Equal(t, "Field cleanup", fields["title"])

	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, event.EventDate.Equal(back.EventDate))
	require.NotNil(t, back.Deadline)
	assert.True(t, deadline.Equal(*back.Deadline))
	assert.Equal(t, 4, back.Capacity)
}

func TestEventJSONWithoutDeadline(t *testing.T) {
	raw, err := json.Marshal(&Event{ID: 1, EventDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "deadline")

	var back Event
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Nil(t, back.Deadline)

	assert.Error(t, json.Unmarshal([]byte(`{"event_date":"01.06.2026"}`), &back))
}

func TestPublicRosterDropsMember(t *testing.T) {
	at := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	roster := PublicRoster([]Participation{{
		EventID:       3,
		Username:      "anna",
		Origin:        OriginAutoAllocated,
		ScoreCredited: 5,
		CreatedAt:     at,
		Member:        &Member{Username: "anna", Email: "anna@private.test"},
	}})

	require.Len(t, roster, 1)
	assert.Equal(t, PublicParticipant{Username: "anna", Origin: OriginAutoAllocated, CreatedAt: at}, roster[0])
	assert.NotNil(t, PublicRoster(nil))
}
