package dps

import "context"

type Repository interface {
	// Has reports whether any entry (value or marker) exists for the key.
	Has(ctx context.Context, ticker string, fiscalYear int, reprtCode string) (bool, error)
	// ListRange returns entries for [startYear, endYear] ordered by year.
	ListRange(ctx context.Context, ticker, reprtCode string, startYear, endYear int) ([]CacheEntry, error)
	// UpsertValue stores a fetched figure, replacing any marker or older value.
	UpsertValue(ctx context.Context, ticker string, fiscalYear int, reprtCode string, amount float64, currency, rawPayload string) error
	// MarkNoData records a confirmed-empty year. Never overwrites a real value.
	MarkNoData(ctx context.Context, ticker string, fiscalYear int, reprtCode string) error
	// MarkError records a permanent lookup failure. Never overwrites a real value.
	MarkError(ctx context.Context, ticker string, fiscalYear int, reprtCode, message string) error
}
