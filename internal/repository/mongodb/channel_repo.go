package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
)

type channelDoc struct {
	ID        string       `bson:"_id"`
	RequestID string       `bson:"request_id"`
	SeekerID  string       `bson:"seeker_id"`
	ExpertID  string       `bson:"expert_id"`
	Active    bool         `bson:"active"`
	ExpiresAt time.Time    `bson:"expires_at"`
	HasRated  bool         `bson:"has_rated"`
	Rating    *string      `bson:"rating,omitempty"`
	NextSeq   int64        `bson:"next_seq"`
	Messages  []messageDoc `bson:"messages"`
	CreatedAt time.Time    `bson:"created_at"`
}

type messageDoc struct {
	ID            int64     `bson:"id"`
	Seq           int64     `bson:"seq"`
	SenderRole    string    `bson:"sender_role"`
	Content       string    `bson:"content"`
	ContentType   string    `bson:"content_type"`
	AttachmentRef *string   `bson:"attachment_ref,omitempty"`
	ReadBy        []string  `bson:"read_by"`
	CreatedAt     time.Time `bson:"created_at"`
}

// ChannelRepo keeps each channel and its message log in one document.
type ChannelRepo struct {
	client   *mdb.Client
	channels *mdb.Collection
	profiles *mdb.Collection
}

var _ repository.ChannelRepository = (*ChannelRepo)(nil)

// Projection that leaves out the message log.
var withoutMessages = b.M{"messages": 0}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	doc := channelDoc{
		ID:        ch.ID.String(),
		RequestID: ch.RequestID.String(),
		SeekerID:  ch.SeekerID.String(),
		ExpertID:  ch.ExpertID.String(),
		Active:    ch.Active,
		ExpiresAt: ch.ExpiresAt,
		HasRated:  ch.HasRated,
		Messages:  []messageDoc{},
		CreatedAt: ch.CreatedAt,
	}
	if ch.Rating != nil {
		rating := string(*ch.Rating)
		doc.Rating = &rating
	}
	_, err := r.channels.InsertOne(ctx, doc)
	return err
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	doc, err := r.find(ctx, id, withoutMessages)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.toDomain()
}

func (r *ChannelRepo) ListByParticipant(ctx context.Context, profileID uuid.UUID, role domain.Role) ([]domain.Channel, error) {
	field, err := participantField(role)
	if err != nil {
		return nil, err
	}
	opts := mdbopts.Find().SetProjection(withoutMessages).SetSort(b.M{"created_at": 1})
	cur, err := r.channels.Find(ctx, b.M{field: profileID.String()}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var channels []domain.Channel
	for cur.Next(ctx) {
		var doc channelDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ch, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, cur.Err()
}

func (r *ChannelRepo) Close(ctx context.Context, id uuid.UUID) error {
	res, err := r.channels.UpdateOne(ctx, b.M{"_id": id.String()}, b.M{"$set": b.M{"active": false}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ChannelRepo) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.channels.UpdateMany(ctx,
		b.M{"active": true, "expires_at": b.M{"$lte": now}},
		b.M{"$set": b.M{"active": false}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// AppendMessage claims the next sequence number with a compare-and-set on
// next_seq and pushes the message in the same update.
func (r *ChannelRepo) AppendMessage(ctx context.Context, msg *domain.Message) error {
	id := msg.ChannelID.String()
	state := b.M{"active": 1, "expires_at": 1, "next_seq": 1}

	for {
		doc, err := r.find(ctx, msg.ChannelID, state)
		if err != nil {
			return err
		}
		if doc == nil {
			return repository.ErrNotFound
		}
		if !doc.Active || !msg.CreatedAt.Before(doc.ExpiresAt) {
			return repository.ErrChannelInactive
		}

		seq := doc.NextSeq + 1
		entry := messageDoc{
			ID:            int64(msg.ID),
			Seq:           seq,
			SenderRole:    string(msg.SenderRole),
			Content:       msg.Content,
			ContentType:   string(msg.ContentType),
			AttachmentRef: msg.AttachmentRef,
			ReadBy:        []string{},
			CreatedAt:     msg.CreatedAt,
		}
		res, err := r.channels.UpdateOne(ctx,
			b.M{"_id": id, "next_seq": doc.NextSeq, "active": true, "expires_at": b.M{"$gt": msg.CreatedAt}},
			b.M{"$set": b.M{"next_seq": seq}, "$push": b.M{"messages": entry}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			msg.Seq = seq
			msg.ReadBy = []domain.Role{}
			return nil
		}
		// Lost the race or the channel closed; reload and decide again.
	}
}

func (r *ChannelRepo) ListMessages(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error) {
	doc, err := r.find(ctx, channelID, b.M{"messages": 1})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, repository.ErrNotFound
	}

	messages := make([]domain.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		messages[i] = m.toDomain(channelID)
	}
	return messages, nil
}

func (r *ChannelRepo) MarkRead(ctx context.Context, channelID uuid.UUID, ids []domain.MessageID, role domain.Role) error {
	if len(ids) == 0 {
		n, err := r.channels.CountDocuments(ctx, b.M{"_id": channelID.String()})
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		return nil
	}

	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	opts := mdbopts.Update().SetArrayFilters(mdbopts.ArrayFilters{
		Filters: []interface{}{b.M{"m.id": b.M{"$in": raw}, "m.sender_role": b.M{"$ne": string(role)}}},
	})
	res, err := r.channels.UpdateOne(ctx,
		b.M{"_id": channelID.String()},
		b.M{"$addToSet": b.M{"messages.$[m].read_by": string(role)}},
		opts,
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ChannelRepo) RecordRating(ctx context.Context, channelID uuid.UUID, outcome domain.RatingOutcome) (int, error) {
	sess, err := r.client.StartSession()
	if err != nil {
		return 0, err
	}
	defer sess.EndSession(ctx)

	result, err := sess.WithTransaction(ctx, func(sc mdb.SessionContext) (interface{}, error) {
		var rated struct {
			ExpertID string `bson:"expert_id"`
		}
		err := r.channels.FindOneAndUpdate(sc,
			b.M{"_id": channelID.String(), "has_rated": false},
			b.M{"$set": b.M{"has_rated": true, "rating": string(outcome)}},
			mdbopts.FindOneAndUpdate().SetProjection(b.M{"expert_id": 1}),
		).Decode(&rated)
		if errors.Is(err, mdb.ErrNoDocuments) {
			n, err := r.channels.CountDocuments(sc, b.M{"_id": channelID.String()})
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, repository.ErrNotFound
			}
			return nil, repository.ErrAlreadyRated
		}
		if err != nil {
			return nil, err
		}

		floor := mdb.Pipeline{{{Key: "$set", Value: b.M{
			"reputation": b.M{"$max": b.A{0, b.M{"$add": b.A{"$reputation", outcome.Delta()}}}},
		}}}}
		var expert struct {
			Reputation int `bson:"reputation"`
		}
		err = r.profiles.FindOneAndUpdate(sc,
			b.M{"_id": rated.ExpertID},
			floor,
			mdbopts.FindOneAndUpdate().SetReturnDocument(mdbopts.After),
		).Decode(&expert)
		if errors.Is(err, mdb.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return expert.Reputation, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (r *ChannelRepo) CountUnread(ctx context.Context, profileID uuid.UUID, role domain.Role) (map[uuid.UUID]int, error) {
	field, err := participantField(role)
	if err != nil {
		return nil, err
	}
	opts := mdbopts.Find().SetProjection(b.M{"messages.sender_role": 1, "messages.read_by": 1})
	cur, err := r.channels.Find(ctx, b.M{field: profileID.String()}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := make(map[uuid.UUID]int)
	for cur.Next(ctx) {
		var doc channelDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, m := range doc.Messages {
			if m.toDomain(id).UnreadFor(role) {
				n++
			}
		}
		counts[id] = n
	}
	return counts, cur.Err()
}

// find returns (nil, nil) when the channel does not exist.
func (r *ChannelRepo) find(ctx context.Context, id uuid.UUID, projection b.M) (*channelDoc, error) {
	var doc channelDoc
	err := r.channels.FindOne(ctx, b.M{"_id": id.String()}, mdbopts.FindOne().SetProjection(projection)).Decode(&doc)
	if errors.Is(err, mdb.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func participantField(role domain.Role) (string, error) {
	switch role {
	case domain.RoleSeeker:
		return "seeker_id", nil
	case domain.RoleExpert:
		return "expert_id", nil
	}
	return "", errors.New("unknown role " + string(role))
}

func (d *channelDoc) toDomain() (*domain.Channel, error) {
	ch := &domain.Channel{
		Active:    d.Active,
		ExpiresAt: d.ExpiresAt,
		HasRated:  d.HasRated,
		CreatedAt: d.CreatedAt,
	}
	for _, f := range []struct {
		dst *uuid.UUID
		src string
	}{{&ch.ID, d.ID}, {&ch.RequestID, d.RequestID}, {&ch.SeekerID, d.SeekerID}, {&ch.ExpertID, d.ExpertID}} {
		id, err := uuid.Parse(f.src)
		if err != nil {
			return nil, err
		}
		*f.dst = id
	}
	if d.Rating != nil {
		outcome := domain.RatingOutcome(*d.Rating)
		ch.Rating = &outcome
	}
	return ch, nil
}

func (m messageDoc) toDomain(channelID uuid.UUID) domain.Message {
	msg := domain.Message{
		ID:            domain.MessageID(m.ID),
		ChannelID:     channelID,
		Seq:           m.Seq,
		SenderRole:    domain.Role(m.SenderRole),
		Content:       m.Content,
		ContentType:   domain.ContentKind(m.ContentType),
		AttachmentRef: m.AttachmentRef,
		ReadBy:        make([]domain.Role, len(m.ReadBy)),
		CreatedAt:     m.CreatedAt,
	}
	for i, role := range m.ReadBy {
		msg.ReadBy[i] = domain.Role(role)
	}
	return msg
}
