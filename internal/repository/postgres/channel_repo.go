package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
)

// ChannelRepo stores channels in chat_channels and their logs in
// chat_messages. Writers to one channel serialize on its row lock.
type ChannelRepo struct {
	pool *pgxpool.Pool
}

var _ repository.ChannelRepository = (*ChannelRepo)(nil)

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelColumns = `id, request_id, seeker_id, expert_id, active, expires_at, has_rated, rating, created_at`

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `
		INSERT INTO chat_channels (id, request_id, seeker_id, expert_id, active, expires_at, has_rated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		ch.ID, ch.RequestID, ch.SeekerID, ch.ExpertID, ch.Active, ch.ExpiresAt, ch.HasRated, ch.CreatedAt,
	)
	return err
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM chat_channels WHERE id = $1`
	ch, err := scanChannel(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ch, err
}

func (r *ChannelRepo) ListByParticipant(ctx context.Context, profileID uuid.UUID, role domain.Role) ([]domain.Channel, error) {
	column, err := participantColumn(role)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + channelColumns + ` FROM chat_channels WHERE ` + column + ` = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepo) Close(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE chat_channels SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ChannelRepo) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_channels SET active = FALSE WHERE active AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *ChannelRepo) RecordRating(ctx context.Context, channelID uuid.UUID, outcome domain.RatingOutcome) (int, error) {
	var reputation int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var expertID uuid.UUID
		err := tx.QueryRow(ctx, `
			UPDATE chat_channels SET has_rated = TRUE, rating = $2
			WHERE id = $1 AND NOT has_rated
			RETURNING expert_id`, channelID, string(outcome),
		).Scan(&expertID)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chat_channels WHERE id = $1)`, channelID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrAlreadyRated
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			UPDATE profiles SET reputation = GREATEST(reputation + $2, 0)
			WHERE id = $1
			RETURNING reputation`, expertID, outcome.Delta(),
		).Scan(&reputation)
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return reputation, nil
}

// lockChannel takes the row lock that orders appends and read receipts on a
// channel and returns its open state.
func lockChannel(ctx context.Context, tx pgx.Tx, id uuid.UUID) (active bool, expiresAt time.Time, err error) {
	err = tx.QueryRow(ctx,
		`SELECT active, expires_at FROM chat_channels WHERE id = $1 FOR UPDATE`, id,
	).Scan(&active, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, time.Time{}, repository.ErrNotFound
	}
	return active, expiresAt, err
}

func participantColumn(role domain.Role) (string, error) {
	switch role {
	case domain.RoleSeeker:
		return "seeker_id", nil
	case domain.RoleExpert:
		return "expert_id", nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var (
		ch     domain.Channel
		rating *string
	)
	if err := row.Scan(
		&ch.ID, &ch.RequestID, &ch.SeekerID, &ch.ExpertID, &ch.Active,
		&ch.ExpiresAt, &ch.HasRated, &rating, &ch.CreatedAt,
	); err != nil {
		return nil, err
	}
	if rating != nil {
		outcome := domain.RatingOutcome(*rating)
		ch.Rating = &outcome
	}
	return &ch, nil
}
