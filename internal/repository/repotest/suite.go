// Package repotest holds the behaviour every channel store adapter must
// satisfy. Adapter packages call Run from their own tests.
package repotest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
)

// Factory returns empty repositories backed by the same storage.
type Factory func(t *testing.T) (repository.ChannelRepository, repository.ProfileRepository)

var nextID atomic.Int64

func init() {
	nextID.Store(time.Now().UnixNano())
}

func newMessageID() domain.MessageID {
	return domain.MessageID(nextID.Add(1))
}

func Run(t *testing.T, factory Factory) {
	t.Run("ChannelLifecycle", func(t *testing.T) { testChannelLifecycle(t, factory) })
	t.Run("AppendOrder", func(t *testing.T) { testAppendOrder(t, factory) })
	t.Run("AppendRejectsClosed", func(t *testing.T) { testAppendRejectsClosed(t, factory) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, factory) })
	t.Run("MarkRead", func(t *testing.T) { testMarkRead(t, factory) })
	t.Run("RecordRating", func(t *testing.T) { testRecordRating(t, factory) })
	t.Run("ReputationFloor", func(t *testing.T) { testReputationFloor(t, factory) })
	t.Run("CountUnread", func(t *testing.T) { testCountUnread(t, factory) })
	t.Run("CloseExpired", func(t *testing.T) { testCloseExpired(t, factory) })
}

type fixture struct {
	channels repository.ChannelRepository
	profiles repository.ProfileRepository
	seeker   domain.Profile
	expert   domain.Profile
}

func setup(t *testing.T, factory Factory) *fixture {
	t.Helper()
	channels, profiles := factory(t)
	f := &fixture{channels: channels, profiles: profiles}
	f.seeker = f.profile(t, domain.RoleSeeker, 0)
	f.expert = f.profile(t, domain.RoleExpert, 0)
	return f
}

func (f *fixture) profile(t *testing.T, role domain.Role, reputation int) domain.Profile {
	t.Helper()
	id := uuid.New()
	p := domain.Profile{
		ID:         id,
		UserID:     uuid.New(),
		Role:       role,
		Handle:     string(role) + "-" + id.String()[:8],
		Reputation: reputation,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, f.profiles.Create(context.Background(), &p))
	return p
}

func (f *fixture) channel(t *testing.T, ttl time.Duration) domain.Channel {
	t.Helper()
	return f.channelFor(t, f.seeker, f.expert, ttl)
}

func (f *fixture) channelFor(t *testing.T, seeker, expert domain.Profile, ttl time.Duration) domain.Channel {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	ch := domain.Channel{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		SeekerID:  seeker.ID,
		ExpertID:  expert.ID,
		Active:    true,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	require.NoError(t, f.channels.Create(context.Background(), &ch))
	return ch
}

func (f *fixture) append(t *testing.T, channelID uuid.UUID, role domain.Role, content string) domain.Message {
	t.Helper()
	msg := newMessage(channelID, role, content)
	require.NoError(t, f.channels.AppendMessage(context.Background(), &msg))
	return msg
}

func newMessage(channelID uuid.UUID, role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:          newMessageID(),
		ChannelID:   channelID,
		SenderRole:  role,
		Content:     content,
		ContentType: domain.ContentText,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testChannelLifecycle(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	ch := f.channel(t, time.Hour)

	got, err := f.channels.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ch.SeekerID, got.SeekerID)
	assert.Equal(t, ch.ExpertID, got.ExpertID)
	assert.True(t, got.Active)
	assert.False(t, got.HasRated)
	assert.Nil(t, got.Rating)
	assert.WithinDuration(t, ch.ExpiresAt, got.ExpiresAt, time.Millisecond)

	missing, err := f.channels.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := f.channels.ListByParticipant(ctx, f.seeker.ID, domain.RoleSeeker)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ch.ID, list[0].ID)

	list, err = f.channels.ListByParticipant(ctx, f.seeker.ID, domain.RoleExpert)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, f.channels.Close(ctx, ch.ID))
	require.NoError(t, f.channels.Close(ctx, ch.ID))
	got, err = f.channels.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, f.channels.Close(ctx, uuid.New()), repository.ErrNotFound)

	p, err := f.profiles.GetByID(ctx, f.expert.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, f.expert.Handle, p.Handle)
	assert.Equal(t, domain.RoleExpert, p.Role)

	p, err = f.profiles.GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func testAppendOrder(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	ch := f.channel(t, time.Hour)

	empty, err := f.channels.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	ref := "uploads/abc.png"
	first := f.append(t, ch.ID, domain.RoleSeeker, "one")
	second := newMessage(ch.ID, domain.RoleExpert, "two")
	second.ContentType = domain.ContentImage
	second.AttachmentRef = &ref
	require.NoError(t, f.channels.AppendMessage(ctx, &second))
	third := f.append(t, ch.ID, domain.RoleSeeker, "three")

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, int64(3), third.Seq)

	msgs, err := f.channels.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{msgs[0].Content, msgs[1].Content, msgs[2].Content})
	assert.Equal(t, first.ID, msgs[0].ID)
	assert.Equal(t, domain.RoleExpert, msgs[1].SenderRole)
	assert.Equal(t, domain.ContentImage, msgs[1].ContentType)
	require.NotNil(t, msgs[1].AttachmentRef)
	assert.Equal(t, ref, *msgs[1].AttachmentRef)
	assert.Empty(t, msgs[0].ReadBy)

	msg := newMessage(uuid.New(), domain.RoleSeeker, "nowhere")
	assert.ErrorIs(t, f.channels.AppendMessage(ctx, &msg), repository.ErrNotFound)
}

func testAppendRejectsClosed(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)

	closed := f.channel(t, time.Hour)
	require.NoError(t, f.channels.Close(ctx, closed.ID))
	msg := newMessage(closed.ID, domain.RoleSeeker, "late")
	assert.ErrorIs(t, f.channels.AppendMessage(ctx, &msg), repository.ErrChannelInactive)

	expired := f.channel(t, -time.Minute)
	msg = newMessage(expired.ID, domain.RoleSeeker, "late")
	assert.ErrorIs(t, f.channels.AppendMessage(ctx, &msg), repository.ErrChannelInactive)

	msgs, err := f.channels.ListMessages(ctx, closed.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testConcurrentAppend(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)

	for _, n := range []int{1, 10, 100} {
		ch := f.channel(t, time.Hour)

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				role := domain.RoleSeeker
				if i%2 == 1 {
					role = domain.RoleExpert
				}
				msg := newMessage(ch.ID, role, "m")
				errs <- f.channels.AppendMessage(ctx, &msg)
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		msgs, err := f.channels.ListMessages(ctx, ch.ID)
		require.NoError(t, err)
		require.Len(t, msgs, n)
		ids := make(map[domain.MessageID]struct{}, n)
		for i, m := range msgs {
			assert.Equal(t, int64(i+1), m.Seq)
			ids[m.ID] = struct{}{}
		}
		assert.Len(t, ids, n)
	}
}

func testMarkRead(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	ch := f.channel(t, time.Hour)

	fromSeeker := f.append(t, ch.ID, domain.RoleSeeker, "hi")
	fromExpert := f.append(t, ch.ID, domain.RoleExpert, "hello")
	ids := []domain.MessageID{fromSeeker.ID, fromExpert.ID, newMessageID()}

	require.NoError(t, f.channels.MarkRead(ctx, ch.ID, ids, domain.RoleExpert))
	once, err := f.channels.ListMessages(ctx, ch.ID)
	require.NoError(t, err)

	require.NoError(t, f.channels.MarkRead(ctx, ch.ID, ids, domain.RoleExpert))
	twice, err := f.channels.ListMessages(ctx, ch.ID)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, []domain.Role{domain.RoleExpert}, twice[0].ReadBy)
	assert.Empty(t, twice[1].ReadBy, "sender role is never recorded")

	require.NoError(t, f.channels.MarkRead(ctx, ch.ID, ids, domain.RoleSeeker))
	msgs, err := f.channels.ListMessages(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleExpert}, msgs[0].ReadBy)
	assert.Equal(t, []domain.Role{domain.RoleSeeker}, msgs[1].ReadBy)

	assert.ErrorIs(t, f.channels.MarkRead(ctx, uuid.New(), ids, domain.RoleSeeker), repository.ErrNotFound)
}

func testRecordRating(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	expert := f.profile(t, domain.RoleExpert, 3)
	ch := f.channelFor(t, f.seeker, expert, time.Hour)

	rep, err := f.channels.RecordRating(ctx, ch.ID, domain.RatingUpvote)
	require.NoError(t, err)
	assert.Equal(t, 4, rep)

	_, err = f.channels.RecordRating(ctx, ch.ID, domain.RatingDownvote)
	assert.ErrorIs(t, err, repository.ErrAlreadyRated)

	got, err := f.channels.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.HasRated)
	require.NotNil(t, got.Rating)
	assert.Equal(t, domain.RatingUpvote, *got.Rating)

	p, err := f.profiles.GetByID(ctx, expert.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Reputation)

	_, err = f.channels.RecordRating(ctx, uuid.New(), domain.RatingUpvote)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func testReputationFloor(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	expert := f.profile(t, domain.RoleExpert, 1)

	for i := 0; i < 3; i++ {
		ch := f.channelFor(t, f.seeker, expert, time.Hour)
		rep, err := f.channels.RecordRating(ctx, ch.ID, domain.RatingDownvote)
		require.NoError(t, err)
		assert.Equal(t, 0, rep)
	}

	p, err := f.profiles.GetByID(ctx, expert.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Reputation)
}

func testCountUnread(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	a := f.channel(t, time.Hour)
	b := f.channel(t, time.Hour)

	m1 := f.append(t, a.ID, domain.RoleSeeker, "1")
	m2 := f.append(t, a.ID, domain.RoleSeeker, "2")
	f.append(t, a.ID, domain.RoleExpert, "3")
	f.append(t, b.ID, domain.RoleExpert, "4")

	counts, err := f.channels.CountUnread(ctx, f.expert.ID, domain.RoleExpert)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{a.ID: 2, b.ID: 0}, counts)

	counts, err = f.channels.CountUnread(ctx, f.seeker.ID, domain.RoleSeeker)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{a.ID: 1, b.ID: 1}, counts)

	require.NoError(t, f.channels.MarkRead(ctx, a.ID, []domain.MessageID{m1.ID, m2.ID}, domain.RoleExpert))
	counts, err = f.channels.CountUnread(ctx, f.expert.ID, domain.RoleExpert)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[a.ID])

	counts, err = f.channels.CountUnread(ctx, uuid.New(), domain.RoleSeeker)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func testCloseExpired(t *testing.T, factory Factory) {
	ctx := context.Background()
	f := setup(t, factory)
	live := f.channel(t, time.Hour)
	expired := f.channel(t, -time.Second)

	n, err := f.channels.CloseExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	got, err := f.channels.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	got, err = f.channels.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)
}
