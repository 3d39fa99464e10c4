package holdings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/minhokang/divtrack/internal/dividend"
	domain "github.com/minhokang/divtrack/internal/holdings"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, ticker string, account dividend.AccountType) (*domain.Position, error) {
	const query = selectColumns + ` FROM holding_positions
		WHERE ticker = ? AND account_type = ?`

	p, err := scanPosition(r.db.QueryRowContext(ctx, query, ticker, string(account)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (r *Repository) Save(ctx context.Context, p *domain.Position) error {
	const query = `INSERT INTO holding_positions
		(ticker, account_type, quantity, avg_buy_price_krw, total_cost_krw,
		 realized_pnl_krw, note, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, account_type) DO UPDATE SET
			quantity = excluded.quantity,
			avg_buy_price_krw = excluded.avg_buy_price_krw,
			total_cost_krw = excluded.total_cost_krw,
			realized_pnl_krw = excluded.realized_pnl_krw,
			note = excluded.note,
			source = excluded.source,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

	source := p.Source
	if source == "" {
		source = "manual"
	}
	_, err := r.db.ExecContext(ctx, query,
		p.Ticker, string(p.AccountType), p.Quantity, p.AvgPriceKRW, p.CostKRW,
		p.RealizedKRW, nullIfEmpty(p.Note), source,
	)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, account dividend.AccountType) ([]domain.Position, error) {
	query := selectColumns + ` FROM holding_positions WHERE quantity > 0`

	var args []any
	if account != "" {
		query += " AND account_type = ?"
		args = append(args, string(account))
	}
	query += " ORDER BY ticker ASC, account_type ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, *p)
	}

	return positions, rows.Err()
}

const selectColumns = `SELECT id, ticker, account_type, quantity,
	avg_buy_price_krw, total_cost_krw, realized_pnl_krw, note, source, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	p := &domain.Position{}
	var account, updatedStr string
	var note sql.NullString

	err := row.Scan(
		&p.ID, &p.Ticker, &account, &p.Quantity,
		&p.AvgPriceKRW, &p.CostKRW, &p.RealizedKRW, &note, &p.Source, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	p.AccountType = dividend.AccountType(account)
	if note.Valid {
		p.Note = note.String
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
