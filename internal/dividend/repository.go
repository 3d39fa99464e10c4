package dividend

import "context"

// ListFilter narrows a ledger listing. Zero values mean "no filter";
// archived rows are excluded unless IncludeArchived is set.
type ListFilter struct {
	Ticker          string
	Year            int
	AccountType     AccountType
	IncludeArchived bool
}

type Repository interface {
	// Upsert inserts the event or replaces the existing row with the same
	// row id. Reports whether a new row was inserted.
	Upsert(ctx context.Context, e *Event) (bool, error)
	// GetByRowID returns (nil, nil) when no event has the row id.
	GetByRowID(ctx context.Context, rowID string) (*Event, error)
	List(ctx context.Context, f ListFilter) ([]Event, error)
	// ArchiveMissing flags rows of the source that are absent from keep,
	// returning how many were archived. Already-archived rows are left alone.
	ArchiveMissing(ctx context.Context, source Source, keep []string) (int64, error)
}
