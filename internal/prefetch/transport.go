package prefetch

import (
	"github.com/minhokang/divtrack/internal/apperror"
	"github.com/minhokang/divtrack/internal/ticker"
)

const (
	// maxRevalidateYears caps the always-refetch window at the tail of the
	// year range.
	maxRevalidateYears = 2

	defaultListLimit = 10
)

type CreateJobRequest struct {
	Tickers               []string `json:"tickers"`
	StartYear             int      `json:"startYear"`
	EndYear               int      `json:"endYear"`
	ReprtCode             string   `json:"reprtCode"`
	ForceRefresh          bool     `json:"forceRefresh"`
	JobName               string   `json:"jobName"`
	RevalidateRecentYears int      `json:"revalidateRecentYears"`
}

// Validate checks that at least one usable ticker remains after
// normalization. Other fields are normalized, not rejected.
func (r CreateJobRequest) Validate() *apperror.AppError {
	if len(ticker.NormalizeAll(r.Tickers)) == 0 {
		return apperror.New(apperror.BadRequest, "at least one ticker is required")
	}
	if r.StartYear <= 0 || r.EndYear <= 0 {
		return apperror.New(apperror.BadRequest, "startYear and endYear are required")
	}
	return nil
}

type StepRequest struct {
	JobID     string `json:"jobId"`
	StepLimit int    `json:"stepLimit"`
}

type ListJobsRequest struct {
	Limit int
}

func (r ListJobsRequest) limit() int {
	if r.Limit <= 0 {
		return defaultListLimit
	}
	return r.Limit
}
