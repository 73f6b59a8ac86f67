package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSeeker Role = "seeker"
	RoleExpert Role = "expert"
)

func (r Role) Valid() bool {
	return r == RoleSeeker || r == RoleExpert
}

// Profile is the role-specific identity a user acts under. Handles are the
// pseudonyms shown to the other participant.
type Profile struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"-"`
	Role       Role      `json:"role"`
	Handle     string    `json:"handle"`
	Reputation int       `json:"reputation"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is the verified (user, role, profile) triple supplied by the
// identity provider for every external call.
type Identity struct {
	UserID    uuid.UUID
	Role      Role
	ProfileID uuid.UUID
}

// Participant is an authorized member of a specific channel.
type Participant struct {
	ChannelID uuid.UUID
	UserID    uuid.UUID
	ProfileID uuid.UUID
	Role      Role
	Handle    string
}
