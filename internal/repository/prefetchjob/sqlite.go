package prefetchjob

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/minhokang/divtrack/internal/prefetch"
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

// payload carries the job fields without a dedicated column. Tickers can be
// a long list; JSON keeps the table flat.
type payload struct {
	Tickers               []string `json:"tickers"`
	RevalidateRecentYears int      `json:"revalidateRecentYears,omitempty"`
}

func (r *Repository) Create(ctx context.Context, j *domain.Job) error {
	const query = `INSERT INTO prefetch_jobs
		(job_id, status, job_name, payload, start_year, end_year, reprt_code,
		 force_refresh, cursor_index, cursor_year,
		 processed_count, success_count, skip_count, fail_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	body, err := json.Marshal(payload{
		Tickers:               j.Tickers,
		RevalidateRecentYears: j.RevalidateRecentYears,
	})
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		j.JobID, string(j.Status), nullIfEmpty(j.JobName), string(body),
		j.StartYear, j.EndYear, j.ReprtCode,
		boolToInt(j.ForceRefresh), j.CursorIndex, j.CursorYear,
		j.ProcessedCount, j.SuccessCount, j.SkipCount, j.FailCount,
		nullIfEmpty(j.LastError),
	)
	if err != nil {
		return fmt.Errorf("create prefetch job: %w", err)
	}

	j.CreatedAt = time.Now().UTC()
	j.UpdatedAt = j.CreatedAt
	return nil
}

func (r *Repository) Update(ctx context.Context, j *domain.Job) error {
	const query = `UPDATE prefetch_jobs SET status = ?, cursor_index = ?, cursor_year = ?,
		processed_count = ?, success_count = ?, skip_count = ?, fail_count = ?,
		last_error = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE job_id = ?`

	_, err := r.db.ExecContext(ctx, query,
		string(j.Status), j.CursorIndex, j.CursorYear,
		j.ProcessedCount, j.SuccessCount, j.SkipCount, j.FailCount,
		nullIfEmpty(j.LastError), j.JobID,
	)
	if err != nil {
		return fmt.Errorf("update prefetch job: %w", err)
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Repository) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	const query = selectColumns + ` FROM prefetch_jobs WHERE job_id = ?`

	j, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prefetch job: %w", err)
	}
	return j, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	const query = selectColumns + ` FROM prefetch_jobs
		ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list prefetch jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prefetch job: %w", err)
		}
		jobs = append(jobs, *j)
	}

	return jobs, rows.Err()
}

const selectColumns = `SELECT job_id, status, job_name, payload,
	start_year, end_year, reprt_code, force_refresh,
	cursor_index, cursor_year,
	processed_count, success_count, skip_count, fail_count,
	last_error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	j := &domain.Job{}
	var status, body, createdStr, updatedStr string
	var name, lastErr sql.NullString
	var force int

	err := row.Scan(
		&j.JobID, &status, &name, &body,
		&j.StartYear, &j.EndYear, &j.ReprtCode, &force,
		&j.CursorIndex, &j.CursorYear,
		&j.ProcessedCount, &j.SuccessCount, &j.SkipCount, &j.FailCount,
		&lastErr, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}

	j.Status = domain.Status(status)
	j.Tickers = p.Tickers
	j.RevalidateRecentYears = p.RevalidateRecentYears
	j.ForceRefresh = force != 0
	if name.Valid {
		j.JobName = name.String
	}
	if lastErr.Valid {
		j.LastError = lastErr.String
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedStr)
	return j, nil
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
