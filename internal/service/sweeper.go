package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/metrics"
	"github.com/vedran77/consult/internal/repository"
)

// ExpirySweeper periodically deactivates channels past their expiry.
// Appends check expiry themselves, so this only keeps the stored flag
// honest for listings and queries.
type ExpirySweeper struct {
	channels repository.ChannelRepository
	interval time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewExpirySweeper(channels repository.ChannelRepository, interval time.Duration, m *metrics.Metrics) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{channels: channels, interval: interval, metrics: m, now: time.Now}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *ExpirySweeper) Sweep(ctx context.Context) int64 {
	n, err := s.channels.CloseExpired(ctx, s.now())
	if err != nil {
		if ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{"function": "ExpirySweeper.Sweep", "error": err}).Warn("sweep failed")
		}
		return 0
	}
	if n > 0 {
		s.metrics.ChannelsExpired(n)
		logrus.WithFields(logrus.Fields{"function": "ExpirySweeper.Sweep", "closed": n}).Info("expired channels closed")
	}
	return n
}
