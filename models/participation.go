package models

import "time"

// ParticipationOrigin tells how a participation came to exist.
type ParticipationOrigin string

const (
	OriginManual        ParticipationOrigin = "manual"
	OriginAutoAllocated ParticipationOrigin = "auto-allocated"
)

// Participation links one member to one event. ScoreCredited is the amount
// added to the member's score when the participation was created; withdrawing
// subtracts exactly this amount.
type Participation struct {
	EventID       int                 `json:"event_id" db:"event_id"`
	Username      string              `json:"username" db:"username"`
	Origin        ParticipationOrigin `json:"origin" db:"origin"`
	ScoreCredited int                 `json:"score_credited" db:"score_credited"`
	CreatedAt     time.Time           `json:"created_at" db:"created_at"`

	Member *Member `json:"member,omitempty" db:"-"`
}

// PublicParticipant is the part of a participation shown to anyone who can
// see the event, signed in or not.
type PublicParticipant struct {
	Username  string              `json:"username"`
	Origin    ParticipationOrigin `json:"origin"`
	CreatedAt time.Time           `json:"created_at"`
}

// PublicRoster projects participations to what anonymous readers may see.
func PublicRoster(participants []Participation) []PublicParticipant {
	out := make([]PublicParticipant, 0, len(participants))
	for _, p := range participants {
		out = append(out, PublicParticipant{
			Username:  p.Username,
			Origin:    p.Origin,
			CreatedAt: p.CreatedAt,
		})
	}
	return out
}
