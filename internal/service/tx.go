package service

import "context"

// TxRepositories are repositories bound to one open transaction.
type TxRepositories interface {
	Sites() SiteRepository
	IndexJobs() IndexJobRepository
}

// TxFunc runs against transaction-bound repositories. Returning an error
// rolls the transaction back.
type TxFunc func(repos TxRepositories) error

// TxRunner opens transactions around a TxFunc.
type TxRunner interface {
	WithTx(ctx context.Context, fn TxFunc) error
	// ReadTx runs fn in a read-only transaction.
	ReadTx(ctx context.Context, fn TxFunc) error
}
