//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better404/better404/internal/domain"
	"github.com/better404/better404/internal/service"
)

func TestTxRunner_CommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	sites := NewSiteRepository(pool)
	runner := NewTxRunner(pool)

	site := createSite(ctx, t, sites, "example.com", true)

	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		_, err := repos.IndexJobs().Enqueue(ctx, newJob(site.ID))
		return err
	})
	require.NoError(t, err)

	other := createSite(ctx, t, sites, "other.com", true)
	boom := errors.New("boom")
	err = runner.WithTx(ctx, func(repos service.TxRepositories) error {
		if _, err := repos.IndexJobs().Enqueue(ctx, newJob(other.ID)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM index_jobs`).Scan(&n))
	assert.Equal(t, 1, n)

	err = runner.WithTx(ctx, func(repos service.TxRepositories) error {
		_, err := repos.Sites().GetByName(ctx, "missing.com")
		return err
	})
	assert.Equal(t, domain.ErrSiteNotFound, err)
}

func TestTxRunner_ReadTxRejectsWrites(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	site := createSite(ctx, t, NewSiteRepository(pool), "example.com", true)

	err := NewTxRunner(pool).ReadTx(ctx, func(repos service.TxRepositories) error {
		if _, err := repos.Sites().GetByName(ctx, "example.com"); err != nil {
			return err
		}
		_, err := repos.IndexJobs().Enqueue(ctx, newJob(site.ID))
		return err
	})
	assert.Error(t, err)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM index_jobs`).Scan(&n))
	assert.Zero(t, n)
}
