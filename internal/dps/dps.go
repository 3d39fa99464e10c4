// Package dps maintains the per-(ticker, fiscal year, report code) dividend
// per share cache. An entry with a nil amount is a marker: the year was
// looked up and confirmed empty (or errored), which is different from the
// year never having been attempted.
package dps

import "time"

const (
	// ParserVersion tags cache rows with the payload parser that produced
	// them, so a parser change can invalidate old rows.
	ParserVersion = "v1"

	// DefaultReportCode selects the annual business report.
	DefaultReportCode = "11011"
)

// Marker statuses stored in the raw payload of valueless entries.
const (
	MarkerNoData = "NO_DATA"
	MarkerError  = "ERROR"
)

type CacheEntry struct {
	ID            int64     `json:"id"`
	Ticker        string    `json:"ticker"`
	FiscalYear    int       `json:"fiscalYear"`
	ReprtCode     string    `json:"reprtCode"`
	Currency      *string   `json:"currency"`
	DPSCash       *float64  `json:"dpsCash"`
	ParserVersion string    `json:"parserVersion"`
	RawPayload    string    `json:"rawPayload,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasValue reports whether the entry carries a real figure rather than a
// NO_DATA/ERROR marker.
func (e CacheEntry) HasValue() bool { return e.DPSCash != nil }

// SeriesItem is the API-facing projection of a cache entry.
type SeriesItem struct {
	Ticker     string   `json:"ticker"`
	FiscalYear int      `json:"fiscalYear"`
	ReprtCode  string   `json:"reprtCode"`
	DPSCash    *float64 `json:"dpsCash"`
	Currency   *string  `json:"currency"`
}
