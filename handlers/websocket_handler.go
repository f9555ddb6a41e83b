package handlers

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/Dosada05/club-events/live"
	"github.com/Dosada05/club-events/services"
)

type WebSocketHandler struct {
	hub          *live.Hub
	eventService *services.EventService
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// NewWebSocketHandler accepts connections from allowedOrigins only; an entry
// "*" allows every origin.
func NewWebSocketHandler(hub *live.Hub, eventService *services.EventService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:          hub,
		eventService: eventService,
		logger:       logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeWs handles GET /ws/events/{eventID}. The client receives the roster
// every time it changes.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if _, err := h.eventService.Get(r.Context(), eventID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	room := live.RoomForEvent(eventID)
	if err := h.hub.Serve(&h.upgrader, w, r, room); err != nil {
		h.logger.Warn("websocket connection failed", slog.Int("event_id", eventID), slog.Any("error", err))
		return
	}
	h.logger.Debug("websocket client subscribed", slog.String("room", room))
}
