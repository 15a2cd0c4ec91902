//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/pagination"
	"github.com/better404/better404/internal/testutil"
)

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func createSite(ctx context.Context, t *testing.T, repo *SiteRepository, name string, verified bool) *domain.Site {
	t.Helper()
	site := domain.NewSite(uuid.NewString(), name, "pk_"+uuid.NewString()[:28], time.Now().UTC().Truncate(time.Microsecond))
	site.Verified = verified
	require.NoError(t, repo.Create(ctx, site))
	return site
}

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func decodeForTest(cursor string) (*pagination.Cursor, error) {
	return pagination.DecodeCursor(cursor)
}
