package workqueue

import "context"

// Job is a unit of work run by a ShardExecutor.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context) error

// Run implements Job.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
