package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/better404/better404/internal/service"
)

// TxRunner opens pool transactions and hands out repositories bound to them.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (r *TxRunner) WithTx(ctx context.Context, fn service.TxFunc) error {
	return r.run(ctx, pgx.TxOptions{}, fn)
}

func (r *TxRunner) ReadTx(ctx context.Context, fn service.TxFunc) error {
	return r.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (r *TxRunner) run(ctx context.Context, opts pgx.TxOptions, fn service.TxFunc) error {
	return pgx.BeginTxFunc(ctx, r.pool, opts, func(tx pgx.Tx) error {
		return fn(txRepos{tx: tx})
	})
}

type txRepos struct {
	tx pgx.Tx
}

func (r txRepos) Sites() service.SiteRepository {
	return NewSiteRepositoryWithTx(r.tx)
}

func (r txRepos) IndexJobs() service.IndexJobRepository {
	return NewIndexJobRepositoryWithTx(r.tx)
}
