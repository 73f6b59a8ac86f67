package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrChannelInactive = errors.New("channel is not active")
	ErrAlreadyRated    = errors.New("channel already rated")
)

// Lookups return (nil, nil) when the record does not exist.
type ProfileRepository interface {
	Create(ctx context.Context, profile *domain.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
}

// ChannelRepository owns channel records and their message logs. Every
// mutation is atomic: it either fully applies or leaves no trace.
type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	ListByParticipant(ctx context.Context, profileID uuid.UUID, role domain.Role) ([]domain.Channel, error)

	// Close marks the channel inactive. Closing a closed channel succeeds.
	Close(ctx context.Context, id uuid.UUID) error
	// CloseExpired deactivates every active channel whose expiry is not after now.
	CloseExpired(ctx context.Context, now time.Time) (int64, error)

	// AppendMessage checks that the channel is open at msg.CreatedAt, assigns
	// msg.Seq as the next position in the log and stores msg. Returns
	// ErrNotFound or ErrChannelInactive.
	AppendMessage(ctx context.Context, msg *domain.Message) error
	// ListMessages returns the log in append order, content still encrypted.
	ListMessages(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error)
	// MarkRead adds role to ReadBy of each listed message. Unknown ids and
	// messages sent by role are skipped.
	MarkRead(ctx context.Context, channelID uuid.UUID, ids []domain.MessageID, role domain.Role) error

	// RecordRating stores outcome and applies its delta to the expert's
	// reputation, floored at zero, in one unit. Returns the new reputation,
	// ErrNotFound or ErrAlreadyRated.
	RecordRating(ctx context.Context, channelID uuid.UUID, outcome domain.RatingOutcome) (int, error)

	// CountUnread returns, for each channel where profileID holds role, the
	// number of messages sent by the other role that role has not read.
	CountUnread(ctx context.Context, profileID uuid.UUID, role domain.Role) (map[uuid.UUID]int, error)
}
