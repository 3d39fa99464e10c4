package dividend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	domain "github.com/minhokang/divtrack/internal/dividend"
)

const dateFormat = "2006-01-02"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Upsert(ctx context.Context, e *domain.Event) (bool, error) {
	existing, err := r.GetByRowID(ctx, e.RowID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		const query = `INSERT INTO dividend_events
			(row_id, pay_date, year, month, ticker, currency, fx_rate,
			 gross_dividend, tax, net_dividend, krw_gross, krw_net,
			 account_type, source, archived, raw_text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		res, err := r.db.ExecContext(ctx, query,
			e.RowID, e.PayDate.Format(dateFormat), e.Year, e.Month,
			e.Ticker, e.Currency, e.FXRate,
			e.Gross, e.Tax, e.Net, e.KRWGross, e.KRWNet,
			string(e.AccountType), string(e.Source), boolToInt(e.Archived),
			nullIfEmpty(e.RawText),
		)
		if err != nil {
			return false, fmt.Errorf("insert dividend event: %w", err)
		}
		e.ID, _ = res.LastInsertId()
		return true, nil
	}

	const query = `UPDATE dividend_events SET
		pay_date = ?, year = ?, month = ?, ticker = ?, currency = ?, fx_rate = ?,
		gross_dividend = ?, tax = ?, net_dividend = ?, krw_gross = ?, krw_net = ?,
		account_type = ?, source = ?, archived = ?, raw_text = ?,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE row_id = ?`

	_, err = r.db.ExecContext(ctx, query,
		e.PayDate.Format(dateFormat), e.Year, e.Month, e.Ticker, e.Currency, e.FXRate,
		e.Gross, e.Tax, e.Net, e.KRWGross, e.KRWNet,
		string(e.AccountType), string(e.Source), boolToInt(e.Archived),
		nullIfEmpty(e.RawText), e.RowID,
	)
	if err != nil {
		return false, fmt.Errorf("update dividend event: %w", err)
	}
	e.ID = existing.ID
	return false, nil
}

func (r *Repository) GetByRowID(ctx context.Context, rowID string) (*domain.Event, error) {
	const query = selectColumns + ` FROM dividend_events WHERE row_id = ?`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, rowID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dividend event: %w", err)
	}
	return e, nil
}

func (r *Repository) List(ctx context.Context, f domain.ListFilter) ([]domain.Event, error) {
	query := selectColumns + ` FROM dividend_events WHERE 1=1`

	var args []any
	if !f.IncludeArchived {
		query += " AND archived = 0"
	}
	if f.Ticker != "" {
		query += " AND ticker = ?"
		args = append(args, f.Ticker)
	}
	if f.Year != 0 {
		query += " AND year = ?"
		args = append(args, f.Year)
	}
	if f.AccountType != "" {
		query += " AND account_type = ?"
		args = append(args, string(f.AccountType))
	}
	query += " ORDER BY pay_date ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dividend events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dividend event: %w", err)
		}
		events = append(events, *e)
	}

	return events, rows.Err()
}

func (r *Repository) ArchiveMissing(ctx context.Context, source domain.Source, keep []string) (int64, error) {
	query := `UPDATE dividend_events SET archived = 1,
		updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE source = ? AND archived = 0`

	args := []any{string(source)}
	if len(keep) > 0 {
		placeholders := strings.Repeat("?, ", len(keep)-1) + "?"
		query += fmt.Sprintf(" AND row_id NOT IN (%s)", placeholders)
		for _, id := range keep {
			args = append(args, id)
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("archive missing dividends: %w", err)
	}
	return res.RowsAffected()
}

const selectColumns = `SELECT id, row_id, pay_date, year, month, ticker, currency,
	fx_rate, gross_dividend, tax, net_dividend, krw_gross, krw_net,
	account_type, source, archived, raw_text, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var payStr, account, source, createdStr, updatedStr string
	var fxRate, tax, net, krwGross, krwNet sql.NullFloat64
	var rawText sql.NullString
	var archived int

	err := row.Scan(
		&e.ID, &e.RowID, &payStr, &e.Year, &e.Month, &e.Ticker, &e.Currency,
		&fxRate, &e.Gross, &tax, &net, &krwGross, &krwNet,
		&account, &source, &archived, &rawText, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	e.AccountType = domain.AccountType(account)
	e.Source = domain.Source(source)
	e.Archived = archived != 0
	e.FXRate = nullableFloat(fxRate)
	e.Tax = nullableFloat(tax)
	e.Net = nullableFloat(net)
	e.KRWGross = nullableFloat(krwGross)
	e.KRWNet = nullableFloat(krwNet)
	if rawText.Valid {
		e.RawText = rawText.String
	}
	e.PayDate, _ = time.Parse(dateFormat, payStr)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return e, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
