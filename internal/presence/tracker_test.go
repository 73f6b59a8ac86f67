package presence

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) BroadcastPresence(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func participant(role domain.Role, handle string) domain.Participant {
	return domain.Participant{UserID: uuid.New(), ProfileID: uuid.New(), Role: role, Handle: handle}
}

func handles(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Handle
	}
	return out
}

func TestJoinTypingLeave(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	ch := uuid.New()
	seeker := participant(domain.RoleSeeker, "curious-otter")
	expert := participant(domain.RoleExpert, "wise-owl")
	seekerConn, expertConn := uuid.New(), uuid.New()

	tr.Join(ch, seekerConn, seeker)
	tr.Join(ch, expertConn, expert)
	evt := rec.last()
	assert.Equal(t, EventUserJoined, evt.Kind)
	assert.Equal(t, "wise-owl", evt.Subject.Handle)
	assert.Equal(t, []string{"wise-owl", "curious-otter"}, handles(evt.Users))

	require.True(t, tr.SetTyping(ch, seeker.UserID, true))
	evt = rec.last()
	assert.Equal(t, EventTyping, evt.Kind)
	assert.True(t, evt.Subject.Typing)

	assert.False(t, tr.SetTyping(ch, uuid.New(), true), "unknown user is a no-op")
	assert.False(t, tr.SetTyping(uuid.New(), seeker.UserID, true))

	tr.Leave(ch, expert.UserID)
	evt = rec.last()
	assert.Equal(t, EventUserLeft, evt.Kind)
	assert.Equal(t, []string{"curious-otter"}, handles(evt.Users))

	assert.Equal(t, []EventKind{EventUserJoined, EventUserJoined, EventTyping, EventUserLeft}, rec.kinds())
}

func TestLeaveConnOnDisconnect(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	ch := uuid.New()
	seeker := participant(domain.RoleSeeker, "s")
	expert := participant(domain.RoleExpert, "e")
	conn := uuid.New()

	tr.Join(ch, conn, seeker)
	tr.Join(ch, uuid.New(), expert)

	tr.LeaveConn(conn)
	evt := rec.last()
	assert.Equal(t, EventUserLeft, evt.Kind)
	assert.Equal(t, "s", evt.Subject.Handle)
	assert.Equal(t, []string{"e"}, handles(tr.Snapshot(ch)))

	n := len(rec.kinds())
	tr.LeaveConn(conn)
	assert.Len(t, rec.kinds(), n, "second cleanup is a no-op")
}

func TestJoiningAnotherChannelLeavesThePrevious(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker(rec)
	first, second := uuid.New(), uuid.New()
	p := participant(domain.RoleExpert, "e")
	conn := uuid.New()

	tr.Join(first, conn, p)
	tr.Join(second, conn, p)

	assert.Empty(t, tr.Snapshot(first))
	assert.Equal(t, []string{"e"}, handles(tr.Snapshot(second)))
	assert.Equal(t, []EventKind{EventUserJoined, EventUserLeft, EventUserJoined}, rec.kinds())
}

func TestStaleConnectionDoesNotEvictNewer(t *testing.T) {
	tr := NewTracker(nil)
	ch := uuid.New()
	p := participant(domain.RoleSeeker, "s")
	oldConn, newConn := uuid.New(), uuid.New()

	tr.Join(ch, oldConn, p)
	tr.Join(ch, newConn, p)
	tr.LeaveConn(oldConn)

	snap := tr.Snapshot(ch)
	require.Len(t, snap, 1)
	assert.Equal(t, newConn, snap[0].ConnID)
}

func TestConcurrentJoinLeave(t *testing.T) {
	tr := NewTracker(&recorder{})
	ch := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := uuid.New()
			tr.Join(ch, conn, participant(domain.RoleSeeker, uuid.NewString()))
			tr.LeaveConn(conn)
		}()
	}
	wg.Wait()
	assert.Empty(t, tr.Snapshot(ch))
}
