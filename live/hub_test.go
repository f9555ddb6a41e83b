package live

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/club-events/models"
)

func TestHubPublishRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run(ctx)

	upgrader := &websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, hub.Serve(upgrader, w, r, RoomForEvent(3)))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount("event_3") == 1 }, time.Second, 10*time.Millisecond)

	hub.PublishRoster(3, []models.Participation{{
		EventID:       3,
		Username:      "anna",
		Origin:        models.OriginManual,
		ScoreCredited: 4,
		Member:        &models.Member{Username: "anna", Email: "anna@private.test", Score: 12},
	}})
	hub.PublishRoster(4, []models.Participation{{EventID: 4, Username: "bert"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string        `json:"type"`
		RoomID  string        `json:"room_id"`
		Payload RosterPayload `json:"payload"`
	}
	assert.NotContains(t, string(raw), "anna@private.test")
	assert.NotContains(t, string(raw), "member")
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeRosterUpdated, msg.Type)
	assert.Equal(t, "event_3", msg.RoomID)
	require.Len(t, msg.Payload.Participants, 1)
	assert.Equal(t, "anna", msg.Payload.Participants[0].Username)
	assert.Equal(t, models.OriginManual, msg.Payload.Participants[0].Origin)
}

func TestHubBroadcastToEmptyRoom(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NotPanics(t, func() { hub.PublishRoster(1, nil) })
	assert.Zero(t, hub.ClientCount(RoomForEvent(1)))
}
