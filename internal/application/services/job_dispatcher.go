package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/job"
	"github.com/skybeam/engage/internal/core/ports"
)

// JobDispatcherConfig groups the dispatcher's retry policy knobs.
type JobDispatcherConfig struct {
	// MaxRetries is the attempt count after which RETRY results are
	// overridden to FAILURE.
	MaxRetries int
	// GiveUpDelay is the single reschedule delay applied when the retry
	// ceiling is hit.
	GiveUpDelay time.Duration
}

// JobDispatcher gates and routes deferred work: it combines the job's own
// minimum delay with rate-limit availability when scheduling, refuses to run
// jobs whose tags are over limit, and caps the runner's retry loop.
type JobDispatcher struct {
	scheduler   ports.Scheduler
	runner      ports.JobRunner
	rateLimiter *RateLimiter
	logger      *logrus.Logger
	maxRetries  int
	giveUpDelay time.Duration
}

func NewJobDispatcher(scheduler ports.Scheduler, runner ports.JobRunner, rateLimiter *RateLimiter, cfg *JobDispatcherConfig, logger *logrus.Logger) *JobDispatcher {
	maxRetries := 5
	giveUpDelay := time.Hour
	if cfg != nil {
		if cfg.MaxRetries > 0 {
			maxRetries = cfg.MaxRetries
		}
		if cfg.GiveUpDelay > 0 {
			giveUpDelay = cfg.GiveUpDelay
		}
	}
	return &JobDispatcher{
		scheduler:   scheduler,
		runner:      runner,
		rateLimiter: rateLimiter,
		logger:      logger,
		maxRetries:  maxRetries,
		giveUpDelay: giveUpDelay,
	}
}

// SetRateLimit installs a rate limit rule for a tag.
func (d *JobDispatcher) SetRateLimit(tag string, limit int, period time.Duration) {
	d.rateLimiter.SetLimit(tag, limit, period)
}

// Dispatch schedules the job after the larger of its minimum delay and the
// worst rate-limit backoff across its tags. Scheduler failures propagate to
// the caller; they are configuration-class errors.
func (d *JobDispatcher) Dispatch(ctx context.Context, info job.Info) error {
	delay := info.MinDelay
	if backoff := d.rateLimitDelay(info); backoff > delay {
		delay = backoff
	}

	if d.logger != nil {
		d.logger.WithFields(logrus.Fields{"job_id": info.ID, "action": info.Action, "delay": delay}).Debug("jobs: dispatching")
	}
	return d.scheduler.Schedule(ctx, info, delay)
}

// OnStartJob is invoked by the job host when a scheduled job comes due. If
// any declared tag is over limit the job is failed without running or
// tracking usage, and rescheduled for when the limit clears. Otherwise usage
// is tracked against every tag and the runner executes the job; a RETRY past
// the retry ceiling is overridden to FAILURE with one final reschedule.
func (d *JobDispatcher) OnStartJob(ctx context.Context, info job.Info, attempt int, consumer func(job.Result)) {
	if backoff := d.rateLimitDelay(info); backoff > 0 {
		jobsRateLimitedTotal.WithLabelValues(info.Action).Inc()
		if d.logger != nil {
			d.logger.WithFields(logrus.Fields{"job_id": info.ID, "action": info.Action, "backoff": backoff}).Debug("jobs: rate limited, deferring")
		}
		consumer(job.ResultFailure)
		if err := d.scheduler.Schedule(ctx, info, backoff); err != nil && d.logger != nil {
			d.logger.WithField("job_id", info.ID).WithError(err).Error("jobs: failed to reschedule rate-limited job")
		}
		return
	}

	for _, tag := range info.RateLimitTags {
		d.rateLimiter.Track(tag)
	}

	jobsStartedTotal.WithLabelValues(info.Action).Inc()
	d.runner.Run(ctx, info, func(result job.Result) {
		if result == job.ResultRetry && attempt >= d.maxRetries {
			if d.logger != nil {
				d.logger.WithFields(logrus.Fields{"job_id": info.ID, "attempt": attempt}).Warn("jobs: retry ceiling hit, failing and rescheduling")
			}
			result = job.ResultFailure
			if err := d.scheduler.Schedule(ctx, info, d.giveUpDelay); err != nil && d.logger != nil {
				d.logger.WithField("job_id", info.ID).WithError(err).Error("jobs: failed to reschedule exhausted job")
			}
		}
		jobResultsTotal.WithLabelValues(info.Action, result.String()).Inc()
		consumer(result)
	})
}

// rateLimitDelay returns the worst NextAvailable across the job's tags, or
// zero when every tag is under limit or unconfigured.
func (d *JobDispatcher) rateLimitDelay(info job.Info) time.Duration {
	var worst time.Duration
	for _, tag := range info.RateLimitTags {
		status := d.rateLimiter.Status(tag)
		if status == nil || status.Status == LimitStatusUnder {
			continue
		}
		if status.NextAvailable > worst {
			worst = status.NextAvailable
		}
	}
	return worst
}
