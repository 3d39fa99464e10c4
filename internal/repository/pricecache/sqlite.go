package pricecache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/minhokang/divtrack/internal/marketdata"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Save(ctx context.Context, q *marketdata.Quote) error {
	const query = `INSERT INTO price_cache (ticker, as_of, price, currency, source)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (ticker, as_of) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency,
			source = excluded.source,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

	_, err := r.db.ExecContext(ctx, query,
		q.Ticker, q.AsOf.UTC().Format(time.RFC3339), q.Price, q.Currency, q.Source,
	)
	if err != nil {
		return fmt.Errorf("save quote: %w", err)
	}
	return nil
}

func (r *Repository) Latest(ctx context.Context, ticker string) (*marketdata.Quote, error) {
	const query = `SELECT ticker, as_of, price, currency, source
		FROM price_cache WHERE ticker = ?
		ORDER BY as_of DESC LIMIT 1`

	q := &marketdata.Quote{}
	var asOfStr string
	err := r.db.QueryRowContext(ctx, query, ticker).Scan(
		&q.Ticker, &asOfStr, &q.Price, &q.Currency, &q.Source,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest quote: %w", err)
	}

	q.AsOf, _ = time.Parse(time.RFC3339, asOfStr)
	return q, nil
}
