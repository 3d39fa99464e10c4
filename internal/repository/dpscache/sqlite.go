package dpscache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/minhokang/divtrack/internal/dps"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db dbtx
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a copy of the repository bound to the transaction.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Has(ctx context.Context, ticker string, fiscalYear int, reprtCode string) (bool, error) {
	const query = `SELECT 1 FROM dividend_dps_cache
		WHERE ticker = ? AND fiscal_year = ? AND reprt_code = ?
		LIMIT 1`

	var one int
	err := r.db.QueryRowContext(ctx, query, ticker, fiscalYear, reprtCode).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has dps entry: %w", err)
	}
	return true, nil
}

func (r *Repository) ListRange(ctx context.Context, ticker, reprtCode string, startYear, endYear int) ([]domain.CacheEntry, error) {
	const query = `SELECT id, ticker, fiscal_year, reprt_code, currency, dps_cash,
		parser_version, raw_payload, created_at, updated_at
		FROM dividend_dps_cache
		WHERE ticker = ? AND reprt_code = ? AND fiscal_year >= ? AND fiscal_year <= ?
		ORDER BY fiscal_year ASC`

	rows, err := r.db.QueryContext(ctx, query, ticker, reprtCode, startYear, endYear)
	if err != nil {
		return nil, fmt.Errorf("list dps cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		var currency sql.NullString
		var amount sql.NullFloat64
		var payload sql.NullString
		var createdStr, updatedStr string

		if err := rows.Scan(&e.ID, &e.Ticker, &e.FiscalYear, &e.ReprtCode,
			&currency, &amount, &e.ParserVersion, &payload, &createdStr, &updatedStr,
		); err != nil {
			return nil, fmt.Errorf("scan dps entry: %w", err)
		}
		if currency.Valid {
			e.Currency = &currency.String
		}
		if amount.Valid {
			e.DPSCash = &amount.Float64
		}
		if payload.Valid {
			e.RawPayload = payload.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (r *Repository) UpsertValue(ctx context.Context, ticker string, fiscalYear int, reprtCode string, amount float64, currency, rawPayload string) error {
	const query = `INSERT INTO dividend_dps_cache
		(ticker, fiscal_year, reprt_code, currency, dps_cash, parser_version, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, fiscal_year, reprt_code) DO UPDATE SET
			currency = excluded.currency,
			dps_cash = excluded.dps_cash,
			parser_version = excluded.parser_version,
			raw_payload = excluded.raw_payload,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

	_, err := r.db.ExecContext(ctx, query, ticker, fiscalYear, reprtCode,
		currency, amount, domain.ParserVersion, rawPayload)
	if err != nil {
		return fmt.Errorf("upsert dps value: %w", err)
	}
	return nil
}

func (r *Repository) MarkNoData(ctx context.Context, ticker string, fiscalYear int, reprtCode string) error {
	payload, _ := json.Marshal(map[string]string{"status": domain.MarkerNoData})
	return r.mark(ctx, ticker, fiscalYear, reprtCode, string(payload))
}

func (r *Repository) MarkError(ctx context.Context, ticker string, fiscalYear int, reprtCode, message string) error {
	payload, _ := json.Marshal(map[string]string{"status": domain.MarkerError, "message": message})
	return r.mark(ctx, ticker, fiscalYear, reprtCode, string(payload))
}

// mark writes a valueless marker row. The WHERE on the conflict update keeps
// markers from clobbering rows that already hold a real figure.
func (r *Repository) mark(ctx context.Context, ticker string, fiscalYear int, reprtCode, payload string) error {
	const query = `INSERT INTO dividend_dps_cache
		(ticker, fiscal_year, reprt_code, currency, dps_cash, parser_version, raw_payload)
		VALUES (?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (ticker, fiscal_year, reprt_code) DO UPDATE SET
			parser_version = excluded.parser_version,
			raw_payload = excluded.raw_payload,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE dividend_dps_cache.dps_cash IS NULL`

	_, err := r.db.ExecContext(ctx, query, ticker, fiscalYear, reprtCode, nil, domain.ParserVersion, payload)
	if err != nil {
		return fmt.Errorf("mark dps entry: %w", err)
	}
	return nil
}
