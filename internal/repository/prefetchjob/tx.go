package prefetchjob

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/minhokang/divtrack/internal/dps"
	"github.com/minhokang/divtrack/internal/prefetch"
	"github.com/minhokang/divtrack/internal/repository/dpscache"
)

// TxRunner runs a prefetch step inside one transaction so the cache rows a
// step fetched and the job row it updated commit together. If the step body
// fails, everything it wrote rolls back and the job stays where it was.
type TxRunner struct {
	db      *sql.DB
	fetcher dps.Fetcher
}

func NewTxRunner(db *sql.DB, fetcher dps.Fetcher) *TxRunner {
	return &TxRunner{db: db, fetcher: fetcher}
}

func (t *TxRunner) WithinTx(ctx context.Context, fn func(prefetch.Stores) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin step tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cache := dpscache.NewRepository(t.db).WithTx(tx)
	if err := fn(prefetch.Stores{
		Jobs:   NewRepository(t.db).WithTx(tx),
		Cache:  cache,
		Series: dps.NewService(cache, t.fetcher),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit step tx: %w", err)
	}
	return nil
}
