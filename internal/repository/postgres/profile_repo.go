package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/consult/internal/domain"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

func (r *ProfileRepo) Create(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, user_id, role, handle, reputation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.UserID, string(p.Role), p.Handle, p.Reputation, p.CreatedAt,
	)
	return err
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	query := `SELECT id, user_id, role, handle, reputation, created_at FROM profiles WHERE id = $1`

	var (
		p    domain.Profile
		role string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UserID, &role, &p.Handle, &p.Reputation, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Role = domain.Role(role)
	return &p, nil
}
