package prefetch

import "context"

type Repository interface {
	Create(ctx context.Context, j *Job) error
	// Get returns (nil, nil) when no job exists with the id.
	Get(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, j *Job) error
	// ListRecent returns up to limit jobs, newest-created first.
	ListRecent(ctx context.Context, limit int) ([]Job, error)
}
