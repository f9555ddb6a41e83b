package models

import "time"

// MemberRole is the access level stored with a member.
type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Valid reports whether r is a known role.
func (r MemberRole) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Member is a registered club member. Score is the sum of the score credited
// by every event the member currently participates in.
type Member struct {
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         MemberRole `json:"role" db:"role"`
	Score        int        `json:"score" db:"score"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
