package service

import "context"

type testTxRepos struct {
	sites     SiteRepository
	indexJobs IndexJobRepository
}

func (t *testTxRepos) Sites() SiteRepository {
	return t.sites
}

func (t *testTxRepos) IndexJobs() IndexJobRepository {
	return t.indexJobs
}

// testTxRunner hands its repos straight to fn and records which kind of
// transaction was asked for.
type testTxRunner struct {
	repos    TxRepositories
	err      error
	writes   int
	readOnly int
}

func (t *testTxRunner) WithTx(ctx context.Context, fn TxFunc) error {
	t.writes++
	return t.run(fn)
}

func (t *testTxRunner) ReadTx(ctx context.Context, fn TxFunc) error {
	t.readOnly++
	return t.run(fn)
}

func (t *testTxRunner) run(fn TxFunc) error {
	if t.err != nil {
		return t.err
	}
	return fn(t.repos)
}
