package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the access-controlled conversation between one seeker and one
// expert, opened when the expert accepts the seeker's request.
type Channel struct {
	ID        uuid.UUID      `json:"id"`
	RequestID uuid.UUID      `json:"request_id"`
	SeekerID  uuid.UUID      `json:"-"`
	ExpertID  uuid.UUID      `json:"-"`
	Active    bool           `json:"is_active"`
	ExpiresAt time.Time      `json:"expires_at"`
	HasRated  bool           `json:"has_rated"`
	Rating    *RatingOutcome `json:"rating,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IsOpen reports whether new messages may be appended at now. An explicit
// close always wins over the expiry timestamp.
func (c *Channel) IsOpen(now time.Time) bool {
	return c.Active && now.Before(c.ExpiresAt)
}

// ParticipantID returns the profile holding role in this channel.
func (c *Channel) ParticipantID(role Role) uuid.UUID {
	switch role {
	case RoleSeeker:
		return c.SeekerID
	case RoleExpert:
		return c.ExpertID
	}
	return uuid.Nil
}

type RatingOutcome string

const (
	RatingUpvote   RatingOutcome = "upvote"
	RatingDownvote RatingOutcome = "downvote"
)

func (o RatingOutcome) Valid() bool {
	return o == RatingUpvote || o == RatingDownvote
}

// Delta is the reputation change applied to the expert.
func (o RatingOutcome) Delta() int {
	if o == RatingUpvote {
		return 1
	}
	return -1
}
