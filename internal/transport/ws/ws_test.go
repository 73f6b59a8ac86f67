package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/codec"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/idgen"
	"github.com/vedran77/consult/internal/presence"
	"github.com/vedran77/consult/internal/repository/memory"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/transport/apierr"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type fixture struct {
	url      string
	store    *memory.Store
	auth     *service.AuthService
	channels *service.ChannelService
	tracker  *presence.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := codec.New("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	ids, err := idgen.New(3)
	require.NoError(t, err)

	store := memory.New()
	guard := service.NewAccessGuard(store.Channels(), store.Profiles())
	channels := service.NewChannelService(store.Channels(), store.Profiles(), guard, c, ids, time.Hour)
	auth := service.NewAuthService(store.Profiles(), "ws-test-secret")

	hub := NewHub()
	notifier := NewHubNotifier(hub)
	tracker := presence.NewTracker(notifier)
	channels.SetNotifier(notifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(ServeWS(hub, &Deps{
		Auth:           auth,
		Guard:          guard,
		Channels:       channels,
		Presence:       tracker,
		OriginPatterns: []string{"*"},
	}))
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return &fixture{
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		store:    store,
		auth:     auth,
		channels: channels,
		tracker:  tracker,
	}
}

func (f *fixture) profile(t *testing.T, role domain.Role) (domain.Identity, domain.Profile) {
	t.Helper()
	p := domain.Profile{ID: uuid.New(), UserID: uuid.New(), Role: role, Handle: string(role) + "-" + uuid.NewString()[:6]}
	require.NoError(t, f.store.Profiles().Create(context.Background(), &p))
	return domain.Identity{UserID: p.UserID, Role: role, ProfileID: p.ID}, p
}

func (f *fixture) dial(t *testing.T, ident domain.Identity) *websocket.Conn {
	t.Helper()
	token, err := f.auth.IssueToken(ident, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, f.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, channelID *uuid.UUID, payload any) {
	t.Helper()
	evt := Event{Type: eventType, ChannelID: channelID}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		evt.Payload = data
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, evt))
}

// next reads events until one of the given type arrives.
func next(t *testing.T, conn *websocket.Conn, eventType string) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var evt Event
		require.NoError(t, wsjson.Read(ctx, conn, &evt), "waiting for %s", eventType)
		if evt.Type == eventType {
			return evt
		}
	}
}

func decode[T any](t *testing.T, evt Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(evt.Payload, &v))
	return v
}

func TestRealtimeSession(t *testing.T) {
	f := newFixture(t)
	seeker, seekerP := f.profile(t, domain.RoleSeeker)
	expert, expertP := f.profile(t, domain.RoleExpert)
	ch, err := f.channels.Create(context.Background(), service.CreateChannelInput{
		RequestID: uuid.New(), SeekerID: seekerP.ID, ExpertID: expertP.ID,
	})
	require.NoError(t, err)

	sc := f.dial(t, seeker)
	send(t, sc, EventTypeJoin, &ch.ID, nil)
	joined := decode[PresencePayload](t, next(t, sc, EventTypeUserJoined))
	assert.Equal(t, domain.RoleSeeker, joined.User.Role)
	assert.Len(t, joined.Users, 1)

	ec := f.dial(t, expert)
	send(t, ec, EventTypeJoin, &ch.ID, nil)
	joined = decode[PresencePayload](t, next(t, sc, EventTypeUserJoined))
	assert.Equal(t, expertP.Handle, joined.User.Handle)
	assert.Len(t, joined.Users, 2)
	next(t, ec, EventTypeUserJoined)

	send(t, sc, EventTypeSend, nil, SendPayload{Content: "hello"})
	for _, conn := range []*websocket.Conn{sc, ec} {
		msg := decode[MessagePayload](t, next(t, conn, EventTypeMessage))
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, domain.RoleSeeker, msg.SenderRole)
		assert.Equal(t, ch.ID, msg.ChannelID)
	}

	send(t, ec, EventTypeTyping, nil, TypingPayload{IsTyping: true})
	typing := decode[PresencePayload](t, next(t, sc, EventTypeTyping))
	assert.True(t, typing.User.Typing)
	assert.Equal(t, domain.RoleExpert, typing.User.Role)

	ec.Close(websocket.StatusNormalClosure, "")
	left := decode[PresencePayload](t, next(t, sc, EventTypeUserLeft))
	assert.Equal(t, domain.RoleExpert, left.User.Role)
	require.Len(t, left.Users, 1)
	assert.Equal(t, domain.RoleSeeker, left.Users[0].Role)

	assert.Eventually(t, func() bool { return len(f.tracker.Snapshot(ch.ID)) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestJoinDeniedKeepsSession(t *testing.T) {
	f := newFixture(t)
	_, seekerP := f.profile(t, domain.RoleSeeker)
	_, expertP := f.profile(t, domain.RoleExpert)
	outsider, _ := f.profile(t, domain.RoleSeeker)
	ch, err := f.channels.Create(context.Background(), service.CreateChannelInput{
		RequestID: uuid.New(), SeekerID: seekerP.ID, ExpertID: expertP.ID,
	})
	require.NoError(t, err)

	conn := f.dial(t, outsider)
	send(t, conn, EventTypeJoin, &ch.ID, nil)
	e := decode[ErrorPayload](t, next(t, conn, EventTypeError))
	assert.Equal(t, apierr.CodeForbidden, e.Code)
	assert.Equal(t, EventTypeJoin, e.Op)

	send(t, conn, EventTypeSend, nil, SendPayload{Content: "sneaky"})
	e = decode[ErrorPayload](t, next(t, conn, EventTypeError))
	assert.Equal(t, "NOT_JOINED", e.Code)

	send(t, conn, EventTypePing, nil, nil)
	next(t, conn, EventTypePong)

	assert.Empty(t, f.tracker.Snapshot(ch.ID))
	hist, err := f.channels.History(context.Background(), domain.Identity{
		UserID: seekerP.UserID, Role: domain.RoleSeeker, ProfileID: seekerP.ID,
	}, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, hist.Messages)
}

func TestMalformedEnvelopeKeepsSession(t *testing.T) {
	f := newFixture(t)
	seeker, seekerP := f.profile(t, domain.RoleSeeker)
	_, expertP := f.profile(t, domain.RoleExpert)
	ch, err := f.channels.Create(context.Background(), service.CreateChannelInput{
		RequestID: uuid.New(), SeekerID: seekerP.ID, ExpertID: expertP.ID,
	})
	require.NoError(t, err)

	conn := f.dial(t, seeker)
	frames := []struct {
		raw string
		op  string
	}{
		{`{"type":"join","channel_id":"not-a-uuid"}`, EventTypeJoin},
		{`{"type":"message","payload":`, ""},
		{`[1,2,3]`, ""},
	}
	for _, fr := range frames {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(fr.raw)))
		cancel()

		e := decode[ErrorPayload](t, next(t, conn, EventTypeError))
		assert.Equal(t, "INVALID_PAYLOAD", e.Code, fr.raw)
		assert.Equal(t, fr.op, e.Op, fr.raw)
	}

	send(t, conn, EventTypePing, nil, nil)
	next(t, conn, EventTypePong)

	send(t, conn, EventTypeJoin, &ch.ID, nil)
	joined := decode[PresencePayload](t, next(t, conn, EventTypeUserJoined))
	assert.Len(t, joined.Users, 1)
}

func TestRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, f.url+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
