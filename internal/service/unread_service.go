package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
)

type UnreadSummary struct {
	Total      int               `json:"total"`
	PerChannel map[uuid.UUID]int `json:"channels"`
}

// UnreadService counts messages from the other role the caller has not read.
type UnreadService struct {
	channels repository.ChannelRepository
	guard    *AccessGuard
}

func NewUnreadService(channels repository.ChannelRepository, guard *AccessGuard) *UnreadService {
	return &UnreadService{channels: channels, guard: guard}
}

func (s *UnreadService) Count(ctx context.Context, ident domain.Identity) (*UnreadSummary, error) {
	if _, err := s.guard.profile(ctx, ident); err != nil {
		return nil, ErrAccessDenied
	}
	counts, err := s.channels.CountUnread(ctx, ident.ProfileID, ident.Role)
	if err != nil {
		return nil, translate("counting unread", err)
	}

	summary := &UnreadSummary{PerChannel: counts}
	if summary.PerChannel == nil {
		summary.PerChannel = map[uuid.UUID]int{}
	}
	for _, n := range counts {
		summary.Total += n
	}
	return summary, nil
}
