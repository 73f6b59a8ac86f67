package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/consult/internal/config"
)

func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id          UUID PRIMARY KEY,
	user_id     UUID NOT NULL,
	role        TEXT NOT NULL CHECK (role IN ('seeker', 'expert')),
	handle      TEXT NOT NULL UNIQUE,
	reputation  INTEGER NOT NULL DEFAULT 0 CHECK (reputation >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_channels (
	id          UUID PRIMARY KEY,
	request_id  UUID NOT NULL,
	seeker_id   UUID NOT NULL REFERENCES profiles(id),
	expert_id   UUID NOT NULL REFERENCES profiles(id),
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	expires_at  TIMESTAMPTZ NOT NULL,
	has_rated   BOOLEAN NOT NULL DEFAULT FALSE,
	rating      TEXT CHECK (rating IN ('upvote', 'downvote')),
	next_seq    BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chat_channels_seeker_idx ON chat_channels (seeker_id);
CREATE INDEX IF NOT EXISTS chat_channels_expert_idx ON chat_channels (expert_id);

CREATE TABLE IF NOT EXISTS chat_messages (
	id              BIGINT PRIMARY KEY,
	channel_id      UUID NOT NULL REFERENCES chat_channels(id),
	seq             BIGINT NOT NULL,
	sender_role     TEXT NOT NULL CHECK (sender_role IN ('seeker', 'expert')),
	content         TEXT NOT NULL,
	content_type    TEXT NOT NULL CHECK (content_type IN ('text', 'image', 'file')),
	attachment_ref  TEXT,
	read_by         TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (channel_id, seq)
);
`
