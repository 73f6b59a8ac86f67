// Package memory is a process-local channel store used for development and
// tests. It honours the same atomicity contract as the database adapters.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
)

type channelRecord struct {
	mu       sync.RWMutex
	channel  domain.Channel
	messages []domain.Message
	index    map[domain.MessageID]int
}

// Store holds channels and profiles. Use Channels and Profiles for the
// repository views; they share state so ratings can update both atomically.
//
// Lock order: cmu, then a channel record's mu, then pmu.
type Store struct {
	cmu      sync.RWMutex
	channels map[uuid.UUID]*channelRecord

	pmu      sync.RWMutex
	profiles map[uuid.UUID]domain.Profile
}

func New() *Store {
	return &Store{
		channels: make(map[uuid.UUID]*channelRecord),
		profiles: make(map[uuid.UUID]domain.Profile),
	}
}

func (s *Store) Profiles() *Profiles {
	return &Profiles{s: s}
}

type Profiles struct {
	s *Store
}

var _ repository.ProfileRepository = (*Profiles)(nil)

func (p *Profiles) Create(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := p.s
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if _, ok := s.profiles[profile.ID]; ok {
		return fmt.Errorf("profile %s already exists", profile.ID)
	}
	for _, existing := range s.profiles {
		if existing.Handle == profile.Handle {
			return fmt.Errorf("handle %q already exists", profile.Handle)
		}
	}
	s.profiles[profile.ID] = *profile
	return nil
}

func (p *Profiles) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.pmu.RLock()
	defer p.s.pmu.RUnlock()
	profile, ok := p.s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (s *Store) Channels() *Channels {
	return &Channels{s: s}
}

type Channels struct {
	s *Store
}

var _ repository.ChannelRepository = (*Channels)(nil)

func (c *Channels) record(id uuid.UUID) *channelRecord {
	c.s.cmu.RLock()
	defer c.s.cmu.RUnlock()
	return c.s.channels[id]
}

func (c *Channels) Create(ctx context.Context, ch *domain.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.cmu.Lock()
	defer c.s.cmu.Unlock()
	if _, ok := c.s.channels[ch.ID]; ok {
		return fmt.Errorf("channel %s already exists", ch.ID)
	}
	c.s.channels[ch.ID] = &channelRecord{
		channel: *ch,
		index:   make(map[domain.MessageID]int),
	}
	return nil
}

func (c *Channels) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := c.record(id)
	if rec == nil {
		return nil, nil
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	ch := cloneChannel(rec.channel)
	return &ch, nil
}

func (c *Channels) ListByParticipant(ctx context.Context, profileID uuid.UUID, role domain.Role) ([]domain.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Channel
	for _, rec := range c.snapshot() {
		rec.mu.RLock()
		if rec.channel.ParticipantID(role) == profileID {
			out = append(out, cloneChannel(rec.channel))
		}
		rec.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b domain.Channel) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (c *Channels) Close(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := c.record(id)
	if rec == nil {
		return repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.channel.Active = false
	return nil
}

func (c *Channels) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	for _, rec := range c.snapshot() {
		rec.mu.Lock()
		if rec.channel.Active && !now.Before(rec.channel.ExpiresAt) {
			rec.channel.Active = false
			n++
		}
		rec.mu.Unlock()
	}
	return n, nil
}

func (c *Channels) AppendMessage(ctx context.Context, msg *domain.Message) error {
	rec := c.record(msg.ChannelID)
	if rec == nil {
		return repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	// Checked under the lock: a cancelled caller either commits fully or not at all.
	if err := ctx.Err(); err != nil {
		return err
	}
	if !rec.channel.IsOpen(msg.CreatedAt) {
		return repository.ErrChannelInactive
	}
	if _, dup := rec.index[msg.ID]; dup {
		return fmt.Errorf("message %s already exists", msg.ID)
	}

	msg.Seq = int64(len(rec.messages) + 1)
	if msg.ReadBy == nil {
		msg.ReadBy = []domain.Role{}
	}
	rec.index[msg.ID] = len(rec.messages)
	rec.messages = append(rec.messages, msg.Clone())
	return nil
}

func (c *Channels) ListMessages(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := c.record(channelID)
	if rec == nil {
		return nil, repository.ErrNotFound
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	out := make([]domain.Message, len(rec.messages))
	for i, m := range rec.messages {
		out[i] = m.Clone()
	}
	return out, nil
}

func (c *Channels) MarkRead(ctx context.Context, channelID uuid.UUID, ids []domain.MessageID, role domain.Role) error {
	rec := c.record(channelID)
	if rec == nil {
		return repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, id := range ids {
		if i, ok := rec.index[id]; ok {
			rec.messages[i].MarkReadBy(role)
		}
	}
	return nil
}

func (c *Channels) RecordRating(ctx context.Context, channelID uuid.UUID, outcome domain.RatingOutcome) (int, error) {
	rec := c.record(channelID)
	if rec == nil {
		return 0, repository.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if rec.channel.HasRated {
		return 0, repository.ErrAlreadyRated
	}

	c.s.pmu.Lock()
	defer c.s.pmu.Unlock()
	expert, ok := c.s.profiles[rec.channel.ExpertID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	expert.Reputation = max(0, expert.Reputation+outcome.Delta())
	c.s.profiles[expert.ID] = expert

	rec.channel.HasRated = true
	rec.channel.Rating = &outcome
	return expert.Reputation, nil
}

func (c *Channels) CountUnread(ctx context.Context, profileID uuid.UUID, role domain.Role) (map[uuid.UUID]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int)
	for _, rec := range c.snapshot() {
		rec.mu.RLock()
		if rec.channel.ParticipantID(role) == profileID {
			n := 0
			for i := range rec.messages {
				if rec.messages[i].UnreadFor(role) {
					n++
				}
			}
			counts[rec.channel.ID] = n
		}
		rec.mu.RUnlock()
	}
	return counts, nil
}

func (c *Channels) snapshot() []*channelRecord {
	c.s.cmu.RLock()
	defer c.s.cmu.RUnlock()
	recs := make([]*channelRecord, 0, len(c.s.channels))
	for _, rec := range c.s.channels {
		recs = append(recs, rec)
	}
	return recs
}

func cloneChannel(ch domain.Channel) domain.Channel {
	if ch.Rating != nil {
		r := *ch.Rating
		ch.Rating = &r
	}
	return ch
}
