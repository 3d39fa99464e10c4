package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/minhokang/divtrack/internal/dart"
	"github.com/minhokang/divtrack/internal/dps"
	"github.com/minhokang/divtrack/internal/ticker"
)

// SeriesService is the slice of the DPS cache-fill service a step uses to
// fetch one (ticker, year) unit.
type SeriesService interface {
	GetSeries(ctx context.Context, req dps.GetSeriesRequest) ([]dps.SeriesItem, error)
}

// Stores groups the persistence handles one step writes through. A TxRunner
// hands a transaction-scoped set to the step body so the cache rows a step
// fetched and the job row it updated commit together.
type Stores struct {
	Jobs   Repository
	Cache  dps.Repository
	Series SeriesService
}

// TxRunner executes fn against a set of stores whose writes are atomic: when
// fn returns an error, nothing fn wrote through the stores is persisted.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}

// Service drives prefetch jobs. Execution is synchronous and step-bounded:
// there is no background worker, the caller invokes Step repeatedly and
// observes progress between calls.
type Service struct {
	repo   Repository
	cache  dps.Repository
	series SeriesService
	tx     TxRunner
}

type ServiceOption func(*Service)

// WithTxRunner makes each Step run inside one transaction.
func WithTxRunner(tx TxRunner) ServiceOption {
	return func(s *Service) { s.tx = tx }
}

func NewService(repo Repository, cache dps.Repository, series SeriesService, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, cache: cache, series: series}
	s.tx = passthroughTx{stores: Stores{Jobs: repo, Cache: cache, Series: series}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// passthroughTx runs the step body directly against the service's own stores.
// It is the default for store implementations that have no transactions.
type passthroughTx struct {
	stores Stores
}

func (p passthroughTx) WithinTx(_ context.Context, fn func(Stores) error) error {
	return fn(p.stores)
}

// Create validates and persists a new job in PAUSED state with the cursor at
// the first unit. The ticker list is normalized and deduplicated keeping
// first-seen order; a reversed year range is swapped.
func (s *Service) Create(ctx context.Context, req CreateJobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start, end := req.StartYear, req.EndYear
	if end < start {
		start, end = end, start
	}
	reprt := req.ReprtCode
	if reprt == "" {
		reprt = dps.DefaultReportCode
	}

	j := &Job{
		JobID:                 uuid.NewString(),
		Status:                StatusPaused,
		JobName:               req.JobName,
		Tickers:               ticker.NormalizeAll(req.Tickers),
		StartYear:             start,
		EndYear:               end,
		ReprtCode:             reprt,
		ForceRefresh:          req.ForceRefresh,
		RevalidateRecentYears: clampRecentYears(req.RevalidateRecentYears),
		CursorIndex:           0,
		CursorYear:            start,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create prefetch job: %w", err)
	}

	slog.Info("created prefetch job", "job", j.JobID,
		"tickers", len(j.Tickers), "from", start, "to", end)
	return j, nil
}

// Load returns the job, or nil if it does not exist.
func (s *Service) Load(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.Get(ctx, jobID)
}

// Resume moves a job to RUNNING. Jobs that are DONE or already RUNNING are
// returned unchanged. Resuming a FAILED job re-attempts the unit the cursor
// points at; a cursor outside the year range is reset to the start.
func (s *Service) Resume(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.Get(ctx, jobID)
	if err != nil || j == nil {
		return j, err
	}
	if j.Status == StatusDone || j.Status == StatusRunning {
		return j, nil
	}
	if j.CursorYear < j.StartYear || j.CursorYear > j.EndYear {
		j.CursorYear = j.StartYear
	}
	j.Status = StatusRunning
	if err := s.repo.Update(ctx, j); err != nil {
		return nil, fmt.Errorf("resume job: %w", err)
	}
	return j, nil
}

// Pause suspends a job between steps. DONE and CANCELLED jobs are unchanged.
func (s *Service) Pause(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.Get(ctx, jobID)
	if err != nil || j == nil {
		return j, err
	}
	if j.Status == StatusDone || j.Status == StatusCancelled {
		return j, nil
	}
	j.Status = StatusPaused
	if err := s.repo.Update(ctx, j); err != nil {
		return nil, fmt.Errorf("pause job: %w", err)
	}
	return j, nil
}

// RequestCancel flags a job for cancellation. The transition to CANCELLED
// is deferred to the next Step call so an in-flight fetch is never cut off.
func (s *Service) RequestCancel(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.Get(ctx, jobID)
	if err != nil || j == nil {
		return j, err
	}
	if j.Status == StatusDone || j.Status == StatusCancelled {
		return j, nil
	}
	j.Status = StatusCancelRequested
	if err := s.repo.Update(ctx, j); err != nil {
		return nil, fmt.Errorf("request cancel: %w", err)
	}
	return j, nil
}

// ListRecent returns jobs newest-first for operator listings.
func (s *Service) ListRecent(ctx context.Context, req ListJobsRequest) ([]Job, error) {
	return s.repo.ListRecent(ctx, req.limit())
}

// Step executes up to stepLimit work units and persists the result once,
// inside a single transaction when the service has a TxRunner: either the
// fetched cache rows land together with the updated job row, or neither does.
// Jobs that are not RUNNING or CANCEL_REQUESTED are returned unchanged. The
// loop stops early on cancellation, completion, or a fatal fetch error; a
// fatal error leaves the cursor on the failed unit so Resume retries it.
func (s *Service) Step(ctx context.Context, jobID string, stepLimit int) (*Job, error) {
	if stepLimit <= 0 {
		stepLimit = 1
	}

	var j *Job
	err := s.tx.WithinTx(ctx, func(st Stores) error {
		var err error
		j, err = st.Jobs.Get(ctx, jobID)
		if err != nil || j == nil {
			return err
		}
		if j.Status != StatusRunning && j.Status != StatusCancelRequested {
			return nil
		}

		if len(j.Tickers) == 0 {
			j.Status = StatusDone
			if err := st.Jobs.Update(ctx, j); err != nil {
				return fmt.Errorf("finish empty job: %w", err)
			}
			return nil
		}

		if j.CursorYear < j.StartYear || j.CursorYear > j.EndYear {
			j.CursorYear = j.StartYear
		}

		for steps := 0; steps < stepLimit; steps++ {
			if j.Status == StatusCancelRequested {
				j.Status = StatusCancelled
				break
			}
			if j.CursorIndex >= len(j.Tickers) {
				j.Status = StatusDone
				break
			}

			cont := s.processUnit(ctx, st, j, j.Tickers[j.CursorIndex], j.CursorYear)
			j.ProcessedCount++
			if !cont {
				break
			}

			j.CursorYear++
			if j.CursorYear > j.EndYear {
				j.CursorYear = j.StartYear
				j.CursorIndex++
				if j.CursorIndex >= len(j.Tickers) {
					j.Status = StatusDone
					break
				}
			}
		}

		if err := st.Jobs.Update(ctx, j); err != nil {
			return fmt.Errorf("persist step: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// processUnit handles one (ticker, year) pair and reports whether the step
// loop should continue. A ticker with no provider mapping gets a permanent
// ERROR marker and counts as a skip; any other fetch failure fails the whole
// job so an operator can inspect before more budget is spent.
func (s *Service) processUnit(ctx context.Context, st Stores, j *Job, sym string, year int) bool {
	if sym == "" {
		j.SkipCount++
		return true
	}

	force := j.ForceRefresh || inRevalidationWindow(j, year)

	if !force {
		cached, err := st.Cache.Has(ctx, sym, year, j.ReprtCode)
		if err != nil {
			j.FailCount++
			j.LastError = err.Error()
			j.Status = StatusFailed
			return false
		}
		if cached {
			j.SkipCount++
			return true
		}
	}

	items, err := st.Series.GetSeries(ctx, dps.GetSeriesRequest{
		Ticker:       sym,
		StartYear:    year,
		EndYear:      year,
		ReprtCode:    j.ReprtCode,
		ForceRefresh: force,
	})
	if err != nil {
		if errors.Is(err, dart.ErrCorpCodeNotFound) {
			if markErr := st.Cache.MarkError(ctx, sym, year, j.ReprtCode, err.Error()); markErr != nil {
				slog.Error("failed to mark unresolvable ticker", "ticker", sym, "year", year, "error", markErr)
			}
			j.SkipCount++
			j.LastError = err.Error()
			return true
		}
		j.FailCount++
		j.LastError = err.Error()
		j.Status = StatusFailed
		slog.Error("prefetch unit failed", "job", j.JobID, "ticker", sym, "year", year, "error", err)
		return false
	}

	j.LastError = ""
	for _, item := range items {
		if item.FiscalYear == year && item.DPSCash != nil {
			j.SuccessCount++
			return true
		}
	}
	j.SkipCount++
	return true
}

// inRevalidationWindow reports whether the year falls in the most recent N
// years of the job's range, which are refetched even when cached. Recent
// filings get amended; old ones don't.
func inRevalidationWindow(j *Job, year int) bool {
	if j.RevalidateRecentYears <= 0 {
		return false
	}
	threshold := j.EndYear - j.RevalidateRecentYears + 1
	if threshold < j.StartYear {
		threshold = j.StartYear
	}
	return year >= threshold
}

func clampRecentYears(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxRevalidateYears {
		return maxRevalidateYears
	}
	return v
}
