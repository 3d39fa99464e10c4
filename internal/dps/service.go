package dps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/minhokang/divtrack/internal/dart"
	"github.com/minhokang/divtrack/internal/ticker"
)

// Fetcher is the slice of the DART client the cache-fill service needs.
type Fetcher interface {
	FetchDividendRecords(ctx context.Context, ticker string, startYear, endYear int) ([]dart.Record, error)
}

type Service struct {
	repo    Repository
	fetcher Fetcher
}

func NewService(repo Repository, fetcher Fetcher) *Service {
	return &Service{repo: repo, fetcher: fetcher}
}

// GetSeriesRequest bounds one series lookup. Zero years default to the last
// decade ending now.
type GetSeriesRequest struct {
	Ticker       string
	StartYear    int
	EndYear      int
	ReprtCode    string
	ForceRefresh bool
}

func (r GetSeriesRequest) normalized() (string, int, int, string) {
	t := ticker.Normalize(r.Ticker)
	currentYear := time.Now().Year()
	start := r.StartYear
	if start == 0 {
		start = currentYear - 10
	}
	end := r.EndYear
	if end == 0 {
		end = currentYear
	}
	if end < start {
		start, end = end, start
	}
	reprt := r.ReprtCode
	if reprt == "" {
		reprt = DefaultReportCode
	}
	return t, start, end, reprt
}

// GetSeries returns the cached DPS series for the requested range, fetching
// missing (or, with ForceRefresh, all) years from the provider first. Years
// the provider returned nothing for are persisted as NO_DATA markers so they
// are not re-fetched on the next pass. The fetcher may return years beyond
// the requested range; everything it returns is upserted.
func (s *Service) GetSeries(ctx context.Context, req GetSeriesRequest) ([]SeriesItem, error) {
	sym, start, end, reprt := req.normalized()
	if sym == "" {
		return nil, nil
	}

	entries, err := s.repo.ListRange(ctx, sym, reprt, start, end)
	if err != nil {
		return nil, fmt.Errorf("list dps cache: %w", err)
	}

	missing := missingYears(entries, start, end, req.ForceRefresh)
	if len(missing) > 0 {
		if err := s.fillYears(ctx, sym, reprt, missing); err != nil {
			return nil, err
		}
		entries, err = s.repo.ListRange(ctx, sym, reprt, start, end)
		if err != nil {
			return nil, fmt.Errorf("reload dps cache: %w", err)
		}
	}

	items := make([]SeriesItem, len(entries))
	for i, e := range entries {
		items[i] = SeriesItem{
			Ticker:     e.Ticker,
			FiscalYear: e.FiscalYear,
			ReprtCode:  e.ReprtCode,
			DPSCash:    e.DPSCash,
			Currency:   e.Currency,
		}
	}
	return items, nil
}

func (s *Service) fillYears(ctx context.Context, sym, reprt string, years []int) error {
	first, last := years[0], years[len(years)-1]

	records, err := s.fetcher.FetchDividendRecords(ctx, sym, first, last)
	if err != nil {
		return err
	}

	fetched := make(map[int]bool, len(records))
	for _, rec := range records {
		if rec.Year == 0 {
			continue
		}
		payload, _ := json.Marshal(rec)
		if err := s.repo.UpsertValue(ctx, sym, rec.Year, reprt, rec.Amount, rec.Currency, string(payload)); err != nil {
			return fmt.Errorf("upsert dps value: %w", err)
		}
		fetched[rec.Year] = true
	}

	for _, year := range years {
		if fetched[year] {
			continue
		}
		if err := s.repo.MarkNoData(ctx, sym, year, reprt); err != nil {
			return fmt.Errorf("mark no-data year: %w", err)
		}
	}

	slog.Info("filled dps cache", "ticker", sym, "from", first, "to", last,
		"fetched", len(fetched), "no_data", len(years)-len(fetched))
	return nil
}

// missingYears returns the sorted years in [start, end] that need a fetch.
// With force, every year in the range is refetched.
func missingYears(entries []CacheEntry, start, end int, force bool) []int {
	have := make(map[int]bool, len(entries))
	for _, e := range entries {
		have[e.FiscalYear] = true
	}
	var out []int
	for y := start; y <= end; y++ {
		if force || !have[y] {
			out = append(out, y)
		}
	}
	sort.Ints(out)
	return out
}
