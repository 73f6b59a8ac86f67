// Package presence tracks who is live in each channel. State is process
// local and advisory; nothing here gates authorization or delivery.
package presence

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
)

type EventKind string

const (
	EventUserJoined EventKind = "user_joined"
	EventUserLeft   EventKind = "user_left"
	EventTyping     EventKind = "typing"
)

// Entry is one connected participant. Only role, handle and typing state are
// visible to clients.
type Entry struct {
	ConnID uuid.UUID   `json:"-"`
	UserID uuid.UUID   `json:"-"`
	Role   domain.Role `json:"role"`
	Handle string      `json:"handle"`
	Typing bool        `json:"is_typing"`
}

// Event describes a presence change. Users is the channel's presence set
// after the change.
type Event struct {
	Kind      EventKind
	ChannelID uuid.UUID
	Subject   Entry
	Users     []Entry
}

// Broadcaster fans events out to a channel. Implementations must not block
// for long; they are called with a shard lock held so events for a channel
// leave in the order the changes happened.
type Broadcaster interface {
	BroadcastPresence(evt Event)
}

const shardCount = 32

type shard struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]*Entry // channel -> user -> entry
}

type membership struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

// Tracker holds one entry per user per channel. A connection is joined to at
// most one channel at a time.
type Tracker struct {
	shards [shardCount]shard
	out    Broadcaster

	connMu sync.Mutex
	conns  map[uuid.UUID]membership
}

func NewTracker(out Broadcaster) *Tracker {
	t := &Tracker{out: out, conns: make(map[uuid.UUID]membership)}
	for i := range t.shards {
		t.shards[i].rooms = make(map[uuid.UUID]map[uuid.UUID]*Entry)
	}
	return t
}

func (t *Tracker) shard(channelID uuid.UUID) *shard {
	return &t.shards[int(channelID[15])%shardCount]
}

// Join records p as live in channelID over connID, replacing any earlier
// entry for the same user, and leaves the channel connID was in before.
// The caller must have authorized p.
func (t *Tracker) Join(channelID, connID uuid.UUID, p domain.Participant) {
	t.connMu.Lock()
	prev, had := t.conns[connID]
	t.conns[connID] = membership{channelID: channelID, userID: p.UserID}
	t.connMu.Unlock()

	if had && (prev.channelID != channelID || prev.userID != p.UserID) {
		t.remove(prev.channelID, prev.userID, connID)
	}

	entry := &Entry{ConnID: connID, UserID: p.UserID, Role: p.Role, Handle: p.Handle}
	s := t.shard(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[channelID]
	if !ok {
		room = make(map[uuid.UUID]*Entry)
		s.rooms[channelID] = room
	}
	room[p.UserID] = entry
	t.emit(EventUserJoined, channelID, *entry, room)
}

// SetTyping flips the typing flag of a joined user and reports whether the
// user was joined.
func (t *Tracker) SetTyping(channelID, userID uuid.UUID, typing bool) bool {
	s := t.shard(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[channelID][userID]
	if !ok {
		return false
	}
	entry.Typing = typing
	t.emit(EventTyping, channelID, *entry, s.rooms[channelID])
	return true
}

// Leave removes the user from channelID whichever connection joined it.
func (t *Tracker) Leave(channelID, userID uuid.UUID) {
	t.connMu.Lock()
	for conn, m := range t.conns {
		if m.channelID == channelID && m.userID == userID {
			delete(t.conns, conn)
		}
	}
	t.connMu.Unlock()
	t.remove(channelID, userID, uuid.Nil)
}

// LeaveConn drops whatever connID had joined. Entries since taken over by
// another connection of the same user are left alone. Safe to call more
// than once.
func (t *Tracker) LeaveConn(connID uuid.UUID) {
	t.connMu.Lock()
	m, ok := t.conns[connID]
	delete(t.conns, connID)
	t.connMu.Unlock()
	if ok {
		t.remove(m.channelID, m.userID, connID)
	}
}

// Snapshot returns the channel's presence set ordered by role then handle.
func (t *Tracker) Snapshot(channelID uuid.UUID) []Entry {
	s := t.shard(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.rooms[channelID])
}

// remove deletes the entry when connID owns it or connID is uuid.Nil.
func (t *Tracker) remove(channelID, userID, connID uuid.UUID) {
	s := t.shard(channelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[channelID]
	entry, ok := room[userID]
	if !ok || (connID != uuid.Nil && entry.ConnID != connID) {
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(s.rooms, channelID)
	}
	t.emit(EventUserLeft, channelID, *entry, room)
}

func (t *Tracker) emit(kind EventKind, channelID uuid.UUID, subject Entry, room map[uuid.UUID]*Entry) {
	if t.out == nil {
		return
	}
	t.out.BroadcastPresence(Event{
		Kind:      kind,
		ChannelID: channelID,
		Subject:   subject,
		Users:     snapshot(room),
	})
}

func snapshot(room map[uuid.UUID]*Entry) []Entry {
	users := make([]Entry, 0, len(room))
	for _, e := range room {
		users = append(users, *e)
	}
	slices.SortFunc(users, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Role, b.Role), cmp.Compare(a.Handle, b.Handle))
	})
	return users
}
