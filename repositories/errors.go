package repositories

import "errors"

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrMemberConflict = errors.New("member username already exists")

	ErrEventNotFound = errors.New("event not found")
	ErrEventInvalid  = errors.New("event violates a check constraint")

	ErrParticipationNotFound      = errors.New("participation not found")
	ErrParticipationConflict      = errors.New("participation conflict: member already registered for this event")
	ErrParticipationMemberInvalid = errors.New("participation member does not exist")
	ErrParticipationEventInvalid  = errors.New("participation event does not exist")
)
