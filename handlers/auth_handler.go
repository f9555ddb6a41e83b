package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/club-events/middleware"
	"github.com/Dosada05/club-events/services"
)

type AuthHandler struct {
	authService   *services.AuthService
	memberService *services.MemberService
	registrations *services.RegistrationService
}

func NewAuthHandler(authService *services.AuthService, memberService *services.MemberService, registrations *services.RegistrationService) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		memberService: memberService,
		registrations: registrations,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	member, err := h.authService.Register(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"user": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.Username == "" || input.Password == "" {
		badRequestResponse(w, r, errors.New("username and password are required"))
		return
	}

	member, token, err := h.authService.Login(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token, "user": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Profile handles GET /api/profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	member, err := h.memberService.Profile(r.Context(), principal.Username)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": member}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ProfileEvents handles GET /api/profile/events.
func (h *AuthHandler) ProfileEvents(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	events, err := h.registrations.ListMemberEvents(r.Context(), principal.Username)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"events": events}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
