package mongodb

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/consult/internal/repository"
	"github.com/vedran77/consult/internal/repository/repotest"
)

// Needs a replica set; rating runs in a transaction.
func TestStore(t *testing.T) {
	uri := os.Getenv("CONSULT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CONSULT_TEST_MONGO_URI not set")
	}

	ctx := context.Background()
	s, err := Connect(ctx, uri, "consult_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Drop(ctx)
		_ = s.Close(ctx)
	})

	repotest.Run(t, func(t *testing.T) (repository.ChannelRepository, repository.ProfileRepository) {
		return s.Channels(), s.Profiles()
	})
}
