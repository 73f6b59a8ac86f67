package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
	"github.com/vedran77/consult/internal/repository/repotest"
)

func TestStore(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (repository.ChannelRepository, repository.ProfileRepository) {
		s := New()
		return s.Channels(), s.Profiles()
	})
}

func TestAppendHonoursCancelledContext(t *testing.T) {
	s := New()
	ch := domain.Channel{ID: uuid.New(), Active: true, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Channels().Create(context.Background(), &ch))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg := domain.Message{ID: 1, ChannelID: ch.ID, SenderRole: domain.RoleSeeker, Content: "x", CreatedAt: time.Now()}
	assert.ErrorIs(t, s.Channels().AppendMessage(ctx, &msg), context.Canceled)

	msgs, err := s.Channels().ListMessages(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestListMessagesReturnsCopies(t *testing.T) {
	s := New()
	ch := domain.Channel{ID: uuid.New(), Active: true, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.Channels().Create(context.Background(), &ch))
	msg := domain.Message{ID: 1, ChannelID: ch.ID, SenderRole: domain.RoleSeeker, Content: "x", CreatedAt: time.Now()}
	require.NoError(t, s.Channels().AppendMessage(context.Background(), &msg))

	msgs, err := s.Channels().ListMessages(context.Background(), ch.ID)
	require.NoError(t, err)
	msgs[0].ReadBy = append(msgs[0].ReadBy, domain.RoleExpert)
	msgs[0].Content = "changed"

	again, err := s.Channels().ListMessages(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", again[0].Content)
	assert.Empty(t, again[0].ReadBy)
}
