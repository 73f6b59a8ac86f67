package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/metrics"
	"github.com/vedran77/consult/internal/repository"
	"github.com/vedran77/consult/pkg/validator"
)

// RatingService lets the seeker rate the expert once per channel.
type RatingService struct {
	channels repository.ChannelRepository
	guard    *AccessGuard
	metrics  *metrics.Metrics
}

func NewRatingService(channels repository.ChannelRepository, guard *AccessGuard, m *metrics.Metrics) *RatingService {
	return &RatingService{channels: channels, guard: guard, metrics: m}
}

// Rate records outcome and adjusts the expert's reputation in one step.
// Closed or expired channels can still be rated.
func (s *RatingService) Rate(ctx context.Context, ident domain.Identity, channelID uuid.UUID, outcome domain.RatingOutcome) error {
	if err := firstError(validator.ValidateRating(string(outcome))); err != nil {
		return err
	}
	p, err := s.guard.Authorize(ctx, channelID, ident)
	if err != nil {
		return err
	}
	if p.Role != domain.RoleSeeker {
		return ErrAccessDenied
	}

	reputation, err := s.channels.RecordRating(ctx, channelID, outcome)
	if err != nil {
		return translate("recording rating", err)
	}

	s.metrics.Rating(string(outcome))
	logrus.WithFields(logrus.Fields{
		"function":   "RatingService.Rate",
		"channel_id": channelID,
		"outcome":    outcome,
		"reputation": reputation,
	}).Info("channel rated")
	return nil
}
