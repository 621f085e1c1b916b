package ports

import (
	"context"
	"time"

	"github.com/skybeam/engage/internal/core/domain/job"
)

// Scheduler enqueues a job for execution after a delay. Implementations may
// fail to enqueue (quota, shutdown); the dispatcher does not absorb that.
type Scheduler interface {
	Schedule(ctx context.Context, info job.Info, delay time.Duration) error
}

// JobRunner executes a job and must invoke the consumer exactly once.
type JobRunner interface {
	Run(ctx context.Context, info job.Info, consumer func(job.Result))
}
