package dividend

import (
	"context"
	"fmt"
	"log/slog"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type ImportResult struct {
	Inserted int64 `json:"inserted"`
	Updated  int64 `json:"updated"`
	Archived int64 `json:"archived"`
}

// Import upserts the events by row id. With sync enabled, rows of the same
// source that no longer appear in the import are archived rather than
// deleted, so a trimmed export does not silently destroy history.
func (s *Service) Import(ctx context.Context, events []Event, source Source, sync bool) (ImportResult, error) {
	var res ImportResult
	keep := make([]string, 0, len(events))

	for i := range events {
		e := &events[i]
		e.Source = source
		e.Archived = false
		if e.Year == 0 {
			e.Year = e.PayDate.Year()
		}
		if e.Month == 0 {
			e.Month = int(e.PayDate.Month())
		}

		inserted, err := s.repo.Upsert(ctx, e)
		if err != nil {
			return res, fmt.Errorf("upsert dividend %s: %w", e.RowID, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		keep = append(keep, e.RowID)
	}

	if sync {
		archived, err := s.repo.ArchiveMissing(ctx, source, keep)
		if err != nil {
			return res, fmt.Errorf("archive missing dividends: %w", err)
		}
		res.Archived = archived
	}

	slog.Info("imported dividends", "source", source,
		"inserted", res.Inserted, "updated", res.Updated, "archived", res.Archived)
	return res, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Event, error) {
	return s.repo.List(ctx, f)
}
