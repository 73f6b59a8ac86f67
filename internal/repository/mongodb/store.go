// Package mongodb is a channel store adapter for MongoDB. A channel's message
// log lives inside the channel document so appends and read receipts are
// single-document updates. Ratings touch two collections and need a replica
// set for transactions.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
)

const (
	profilesCollection = "profiles"
	channelsCollection = "channels"
)

type Store struct {
	client *mdb.Client
	db     *mdb.Database
}

// Connect dials uri and ensures the indexes exist.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mdb.Connect(ctx, mdbopts.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		collection string
		model      mdb.IndexModel
	}{
		{profilesCollection, mdb.IndexModel{Keys: b.M{"handle": 1}, Options: mdbopts.Index().SetUnique(true)}},
		{channelsCollection, mdb.IndexModel{Keys: b.M{"seeker_id": 1}}},
		{channelsCollection, mdb.IndexModel{Keys: b.M{"expert_id": 1}}},
		{channelsCollection, mdb.IndexModel{Keys: b.D{{Key: "active", Value: 1}, {Key: "expires_at", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := s.db.Collection(idx.collection).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("creating index on %s: %w", idx.collection, err)
		}
	}
	return nil
}

func (s *Store) Profiles() *ProfileRepo {
	return &ProfileRepo{coll: s.db.Collection(profilesCollection)}
}

func (s *Store) Channels() *ChannelRepo {
	return &ChannelRepo{
		client:   s.client,
		channels: s.db.Collection(channelsCollection),
		profiles: s.db.Collection(profilesCollection),
	}
}

type profileDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Role       string    `bson:"role"`
	Handle     string    `bson:"handle"`
	Reputation int       `bson:"reputation"`
	CreatedAt  time.Time `bson:"created_at"`
}

type ProfileRepo struct {
	coll *mdb.Collection
}

var _ repository.ProfileRepository = (*ProfileRepo)(nil)

func (r *ProfileRepo) Create(ctx context.Context, p *domain.Profile) error {
	_, err := r.coll.InsertOne(ctx, profileDoc{
		ID:         p.ID.String(),
		UserID:     p.UserID.String(),
		Role:       string(p.Role),
		Handle:     p.Handle,
		Reputation: p.Reputation,
		CreatedAt:  p.CreatedAt,
	})
	return err
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	var doc profileDoc
	err := r.coll.FindOne(ctx, b.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mdb.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p := &domain.Profile{
		Role:       domain.Role(doc.Role),
		Handle:     doc.Handle,
		Reputation: doc.Reputation,
		CreatedAt:  doc.CreatedAt,
	}
	if p.ID, err = uuid.Parse(doc.ID); err != nil {
		return nil, err
	}
	if p.UserID, err = uuid.Parse(doc.UserID); err != nil {
		return nil, err
	}
	return p, nil
}
