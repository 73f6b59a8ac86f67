package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/codec"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/idgen"
	"github.com/vedran77/consult/internal/lockmap"
	"github.com/vedran77/consult/internal/metrics"
	"github.com/vedran77/consult/internal/repository"
)

// DefaultChannelTTL is how long a channel stays open when the caller does
// not say otherwise.
const DefaultChannelTTL = 7 * 24 * time.Hour

// Notifier broadcasts real-time events to connected clients. Calls happen
// while the channel is locked, so implementations must only enqueue.
type Notifier interface {
	NotifyMessage(msg *domain.Message)
	NotifyRead(channelID uuid.UUID, reader domain.Role, ids []domain.MessageID)
}

// ChannelService owns the channel lifecycle and its message log. Writes to
// one channel are serialized through locks; distinct channels run in
// parallel.
type ChannelService struct {
	channels repository.ChannelRepository
	profiles repository.ProfileRepository
	guard    *AccessGuard
	codec    *codec.Codec
	ids      *idgen.Generator
	locks    *lockmap.Map
	metrics  *metrics.Metrics
	notifier Notifier
	ttl      time.Duration
	now      func() time.Time
}

func NewChannelService(
	channels repository.ChannelRepository,
	profiles repository.ProfileRepository,
	guard *AccessGuard,
	c *codec.Codec,
	ids *idgen.Generator,
	ttl time.Duration,
) *ChannelService {
	if ttl <= 0 {
		ttl = DefaultChannelTTL
	}
	return &ChannelService{
		channels: channels,
		profiles: profiles,
		guard:    guard,
		codec:    c,
		ids:      ids,
		locks:    lockmap.New(),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier sets the real-time notifier (optional dependency).
func (s *ChannelService) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *ChannelService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

type CreateChannelInput struct {
	RequestID uuid.UUID     `json:"request_id"`
	SeekerID  uuid.UUID     `json:"seeker_id"`
	ExpertID  uuid.UUID     `json:"expert_id"`
	TTL       time.Duration `json:"-"`
}

// Create opens a channel for an accepted request. Both references must
// name profiles of the matching role.
func (s *ChannelService) Create(ctx context.Context, input CreateChannelInput) (*domain.Channel, error) {
	if input.RequestID == uuid.Nil {
		return nil, invalid("request_id", "request id is required")
	}
	for _, ref := range []struct {
		id   uuid.UUID
		role domain.Role
	}{{input.SeekerID, domain.RoleSeeker}, {input.ExpertID, domain.RoleExpert}} {
		p, err := s.profiles.GetByID(ctx, ref.id)
		if err != nil {
			return nil, translate("loading profile", err)
		}
		if p == nil || p.Role != ref.role {
			return nil, fmt.Errorf("%s %s: %w", ref.role, ref.id, ErrNotFound)
		}
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := s.now()
	ch := &domain.Channel{
		ID:        uuid.New(),
		RequestID: input.RequestID,
		SeekerID:  input.SeekerID,
		ExpertID:  input.ExpertID,
		Active:    true,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.channels.Create(ctx, ch); err != nil {
		return nil, translate("creating channel", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "ChannelService.Create",
		"channel_id": ch.ID,
		"expires_at": ch.ExpiresAt,
	}).Info("channel opened")
	return ch, nil
}

// Close deactivates the channel. Closing twice succeeds.
func (s *ChannelService) Close(ctx context.Context, channelID uuid.UUID) error {
	if err := s.channels.Close(ctx, channelID); err != nil {
		return translate("closing channel", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":   "ChannelService.Close",
		"channel_id": channelID,
	}).Info("channel closed")
	return nil
}

// Get returns the channel metadata for a participant. Active reports
// whether the channel is still open, expired or not.
func (s *ChannelService) Get(ctx context.Context, ident domain.Identity, channelID uuid.UUID) (*domain.Channel, error) {
	_, ch, err := s.guard.authorize(ctx, channelID, ident)
	if err != nil {
		return nil, err
	}
	ch.Active = ch.IsOpen(s.now())
	return ch, nil
}

// lock serializes writers on one channel.
func (s *ChannelService) lock(ctx context.Context, channelID uuid.UUID) (func(), error) {
	release, err := s.locks.Lock(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("locking channel: %w", err)
	}
	return release, nil
}
