package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
)

// AccessGuard decides whether an identity takes part in a channel. It
// fails closed: every lookup problem is reported as ErrAccessDenied.
type AccessGuard struct {
	channels repository.ChannelRepository
	profiles repository.ProfileRepository
}

func NewAccessGuard(channels repository.ChannelRepository, profiles repository.ProfileRepository) *AccessGuard {
	return &AccessGuard{channels: channels, profiles: profiles}
}

func (g *AccessGuard) Authorize(ctx context.Context, channelID uuid.UUID, ident domain.Identity) (*domain.Participant, error) {
	p, _, err := g.authorize(ctx, channelID, ident)
	return p, err
}

func (g *AccessGuard) authorize(ctx context.Context, channelID uuid.UUID, ident domain.Identity) (*domain.Participant, *domain.Channel, error) {
	log := logrus.WithFields(logrus.Fields{
		"function":   "AccessGuard.authorize",
		"channel_id": channelID,
		"user_id":    ident.UserID,
	})

	profile, err := g.profile(ctx, ident)
	if err != nil {
		log.WithField("error", err).Debug("identity rejected")
		return nil, nil, ErrAccessDenied
	}

	ch, err := g.channels.GetByID(ctx, channelID)
	if err != nil {
		log.WithField("error", err).Warn("channel lookup failed")
		return nil, nil, ErrAccessDenied
	}
	if ch == nil || ch.ParticipantID(ident.Role) != profile.ID {
		log.Debug("not a participant")
		return nil, nil, ErrAccessDenied
	}

	return &domain.Participant{
		ChannelID: ch.ID,
		UserID:    ident.UserID,
		ProfileID: profile.ID,
		Role:      ident.Role,
		Handle:    profile.Handle,
	}, ch, nil
}

// profile loads the caller's profile and checks it matches the claimed
// user and role.
func (g *AccessGuard) profile(ctx context.Context, ident domain.Identity) (*domain.Profile, error) {
	if !ident.Role.Valid() || ident.ProfileID == uuid.Nil {
		return nil, ErrAccessDenied
	}
	profile, err := g.profiles.GetByID(ctx, ident.ProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.UserID != ident.UserID || profile.Role != ident.Role {
		return nil, ErrAccessDenied
	}
	return profile, nil
}
