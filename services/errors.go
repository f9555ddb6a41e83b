package services

import "errors"

var (
	ErrNotFound = errors.New("requested resource not found")

	ErrEventNotFound  = errors.New("event not found")
	ErrMemberNotFound = errors.New("member not found")

	// Registration outcomes.
	ErrAlreadyRegistered = errors.New("member is already registered for this event")
	ErrNotRegistered     = errors.New("member is not registered for this event")
	ErrCapacityExceeded  = errors.New("event has no free places left")

	// ErrNotificationFailed is attached as a warning; it never fails the
	// operation that produced the notification.
	ErrNotificationFailed = errors.New("notification could not be queued")

	// ErrAllocationAlreadyProcessed means another run already handled the
	// event's deadline.
	ErrAllocationAlreadyProcessed = errors.New("event allocation already processed")
	ErrAllocationNotDue           = errors.New("event allocation is not due yet")

	// Validation.
	ErrValidationFailed     = errors.New("validation failed")
	ErrPasswordTooShort     = errors.New("password is too short")
	ErrUsernameRequired     = errors.New("username is required")
	ErrEmailRequired        = errors.New("email is required")
	ErrInvalidRole          = errors.New("invalid member role")
	ErrEventTitleRequired   = errors.New("event title is required")
	ErrEventDateRequired    = errors.New("event date is required")
	ErrEventInvalidCapacity = errors.New("event capacity must not be negative")
	ErrEventInvalidScore    = errors.New("event score value must not be negative")
	ErrEventInvalidTime     = errors.New("event times must use HH:MM")

	// Conflicts.
	ErrUsernameConflict = errors.New("username is already in use")

	// Authentication and authorization.
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrForbiddenOperation   = errors.New("operation not allowed for the current user")
)
