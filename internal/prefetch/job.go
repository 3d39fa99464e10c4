package prefetch

import "time"

type Status string

const (
	StatusPaused          Status = "PAUSED"
	StatusRunning         Status = "RUNNING"
	StatusCancelRequested Status = "CANCEL_REQUESTED"
	StatusCancelled       Status = "CANCELLED"
	StatusDone            Status = "DONE"
	StatusFailed          Status = "FAILED"
)

// Job is one persisted prefetch batch: a ticker list crossed with a fiscal
// year range, walked one (ticker, year) unit at a time by Step. The cursor
// and counters survive process restarts, which is what lets a stateless UI
// pause, resume, and cancel work across page reloads.
type Job struct {
	JobID                 string    `json:"jobId"`
	Status                Status    `json:"status"`
	JobName               string    `json:"jobName,omitempty"`
	Tickers               []string  `json:"tickers"`
	StartYear             int       `json:"startYear"`
	EndYear               int       `json:"endYear"`
	ReprtCode             string    `json:"reprtCode"`
	ForceRefresh          bool      `json:"forceRefresh"`
	RevalidateRecentYears int       `json:"revalidateRecentYears"`
	CursorIndex           int       `json:"cursorIndex"`
	CursorYear            int       `json:"cursorYear"`
	ProcessedCount        int64     `json:"processedCount"`
	SuccessCount          int64     `json:"successCount"`
	SkipCount             int64     `json:"skipCount"`
	FailCount             int64     `json:"failCount"`
	LastError             string    `json:"lastError,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// TotalUnits is the size of the job's work grid.
func (j *Job) TotalUnits() int64 {
	return int64(len(j.Tickers)) * int64(j.EndYear-j.StartYear+1)
}

// Progress is the fraction of units attempted so far, in [0, 1].
func (j *Job) Progress() float64 {
	total := j.TotalUnits()
	if total == 0 {
		return 0
	}
	p := float64(j.ProcessedCount) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}
