package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/job"
)

// Dispatcher is the callback the scheduler re-enters when a job comes due.
// Satisfied by services.JobDispatcher.
type Dispatcher interface {
	OnStartJob(ctx context.Context, info job.Info, attempt int, consumer func(job.Result))
}

// TimerScheduler is an in-process job host backed by time.AfterFunc. It keeps
// one pending timer per job ID, applies the job's conflict strategy on
// duplicate scheduling, and owns the retry loop: a RETRY result is
// rescheduled with exponential backoff and an incremented attempt.
type TimerScheduler struct {
	logger         *logrus.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu      sync.Mutex
	target  Dispatcher
	timers  map[string]*time.Timer
	closed  bool
	rootCtx context.Context
	cancel  context.CancelFunc
}

func NewTimerScheduler(initialBackoff, maxBackoff time.Duration, logger *logrus.Logger) *TimerScheduler {
	if initialBackoff <= 0 {
		initialBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		logger:         logger,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		timers:         make(map[string]*time.Timer),
		rootCtx:        ctx,
		cancel:         cancel,
	}
}

// SetTarget binds the dispatcher. Must be called before the first Schedule;
// the scheduler and dispatcher reference each other, so binding happens after
// both are constructed.
func (s *TimerScheduler) SetTarget(target Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
}

// Schedule enqueues the job to start after delay, beginning a fresh attempt
// cycle. A job already pending under the same ID is replaced or kept per the
// job's conflict strategy.
func (s *TimerScheduler) Schedule(ctx context.Context, info job.Info, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.target == nil {
		return fmt.Errorf("scheduler has no dispatcher bound")
	}

	if existing, ok := s.timers[info.ID]; ok {
		if info.Conflict == job.ConflictKeep {
			if s.logger != nil {
				s.logger.WithField("job_id", info.ID).Debug("scheduler: job already pending, keeping")
			}
			return nil
		}
		existing.Stop()
		delete(s.timers, info.ID)
	}

	s.scheduleLocked(info, delay, 0)
	return nil
}

// scheduleLocked arms the timer. Caller holds s.mu.
func (s *TimerScheduler) scheduleLocked(info job.Info, delay time.Duration, attempt int) {
	s.timers[info.ID] = time.AfterFunc(delay, func() {
		s.fire(info, attempt)
	})
}

func (s *TimerScheduler) fire(info job.Info, attempt int) {
	s.mu.Lock()
	target := s.target
	delete(s.timers, info.ID)
	closed := s.closed
	s.mu.Unlock()
	if closed || target == nil {
		return
	}

	target.OnStartJob(s.rootCtx, info, attempt, func(result job.Result) {
		if result != job.ResultRetry {
			return
		}
		backoff := s.backoff(attempt)
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{"job_id": info.ID, "attempt": attempt + 1, "backoff": backoff}).Debug("scheduler: retrying job")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if _, pending := s.timers[info.ID]; pending {
			// A newer dispatch superseded this cycle.
			return
		}
		s.scheduleLocked(info, backoff, attempt+1)
	})
}

func (s *TimerScheduler) backoff(attempt int) time.Duration {
	backoff := s.initialBackoff << uint(attempt)
	if backoff > s.maxBackoff || backoff <= 0 {
		return s.maxBackoff
	}
	return backoff
}

// Stop cancels all pending timers. Jobs already running are not interrupted
// beyond their context being canceled.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.cancel()
}
