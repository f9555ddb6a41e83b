package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dosada05/club-events/middleware"
	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/services"
)

type ParticipationHandler struct {
	registrations *services.RegistrationService
}

func NewParticipationHandler(registrations *services.RegistrationService) *ParticipationHandler {
	return &ParticipationHandler{registrations: registrations}
}

type addParticipantInput struct {
	Username string `json:"username"`
	Force    bool   `json:"force"`
}

// Join handles POST /api/events/{eventID}/participation for the caller.
func (h *ParticipationHandler) Join(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required to join an event")
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.registrations.Join(r.Context(), eventID, principal.Username, services.JoinOptions{Origin: models.OriginManual})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Withdraw handles DELETE /api/events/{eventID}/participation for the caller.
func (h *ParticipationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required to leave an event")
		return
	}
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.registrations.Withdraw(r.Context(), eventID, principal.Username); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/events/{eventID}/participants.
func (h *ParticipationHandler) List(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	participants, err := h.registrations.ListParticipants(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participants": participants}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Add handles POST /api/events/{eventID}/participants. Admins may add any
// member and, with force, go over capacity.
func (h *ParticipationHandler) Add(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input addParticipantInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" {
		badRequestResponse(w, r, errors.New("username is required"))
		return
	}

	result, err := h.registrations.Join(r.Context(), eventID, input.Username, services.JoinOptions{
		Origin: models.OriginManual,
		Force:  input.Force,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, result, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Remove handles DELETE /api/events/{eventID}/participants/{username}.
func (h *ParticipationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	username := chi.URLParam(r, "username")
	if username == "" {
		badRequestResponse(w, r, errors.New("missing username in URL path"))
		return
	}

	if err := h.registrations.Withdraw(r.Context(), eventID, username); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
