package fxrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/minhokang/divtrack/internal/fx"
)

const dateFormat = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRates(ctx context.Context, rates []fx.Rate) (int64, error) {
	if len(rates) == 0 {
		return 0, nil
	}

	const batchSize = 500
	var total int64

	for i := 0; i < len(rates); i += batchSize {
		end := min(i+batchSize, len(rates))
		batch := rates[i:end]

		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*3)
		for j, rt := range batch {
			placeholders[j] = "(?, ?, ?)"
			args = append(args, rt.Pair, rt.Date.Format(dateFormat), rt.Rate)
		}

		query := fmt.Sprintf(
			"INSERT OR IGNORE INTO fx_rates (pair, date, rate) VALUES %s",
			strings.Join(placeholders, ", "),
		)

		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("save fx rates: %w", err)
		}

		n, _ := res.RowsAffected()
		total += n
	}

	return total, nil
}

func (r *Repository) ListRates(ctx context.Context, pair string, from, to time.Time) ([]fx.Rate, error) {
	const query = `SELECT id, pair, date, rate, created_at
		FROM fx_rates
		WHERE pair = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`

	rows, err := r.db.QueryContext(ctx, query,
		pair, from.Format(dateFormat), to.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("list fx rates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rates []fx.Rate
	for rows.Next() {
		var rt fx.Rate
		var dateStr, createdStr string
		if err := rows.Scan(&rt.ID, &rt.Pair, &dateStr, &rt.Rate, &createdStr); err != nil {
			return nil, fmt.Errorf("scan fx rate: %w", err)
		}
		rt.Date, _ = time.Parse(dateFormat, dateStr)
		rt.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		rates = append(rates, rt)
	}

	return rates, rows.Err()
}

func (r *Repository) ExistingDates(ctx context.Context, pair string, from, to time.Time) (map[time.Time]bool, error) {
	const query = `SELECT date FROM fx_rates
		WHERE pair = ? AND date >= ? AND date <= ?`

	rows, err := r.db.QueryContext(ctx, query,
		pair, from.Format(dateFormat), to.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("existing fx dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	dates := make(map[time.Time]bool)
	for rows.Next() {
		var dateStr string
		if err := rows.Scan(&dateStr); err != nil {
			return nil, fmt.Errorf("scan fx date: %w", err)
		}
		t, _ := time.Parse(dateFormat, dateStr)
		dates[t] = true
	}

	return dates, rows.Err()
}
