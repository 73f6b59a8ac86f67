package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/database"
	"github.com/vedran77/consult/internal/repository"
	"github.com/vedran77/consult/internal/repository/repotest"
)

func TestRepositories(t *testing.T) {
	dsn := os.Getenv("CONSULT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CONSULT_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, database.Migrate(ctx, pool))

	repotest.Run(t, func(t *testing.T) (repository.ChannelRepository, repository.ProfileRepository) {
		return NewChannelRepo(pool), NewProfileRepo(pool)
	})
}
