package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybeam/engage/internal/core/domain/job"
	"github.com/skybeam/engage/internal/infrastructure/scheduler"
)

type startedJob struct {
	info    job.Info
	attempt int
}

// dispatcherMock records every OnStartJob call and reports the result
// returned by ResultFn (Success when unset).
type dispatcherMock struct {
	mu       sync.Mutex
	started  []startedJob
	notify   chan startedJob
	ResultFn func(info job.Info, attempt int) job.Result
}

func newDispatcherMock() *dispatcherMock {
	return &dispatcherMock{notify: make(chan startedJob, 16)}
}

func (m *dispatcherMock) OnStartJob(ctx context.Context, info job.Info, attempt int, consumer func(job.Result)) {
	m.mu.Lock()
	m.started = append(m.started, startedJob{info: info, attempt: attempt})
	m.mu.Unlock()

	result := job.ResultSuccess
	if m.ResultFn != nil {
		result = m.ResultFn(info, attempt)
	}
	consumer(result)
	m.notify <- startedJob{info: info, attempt: attempt}
}

func (m *dispatcherMock) waitForStart(t *testing.T) startedJob {
	t.Helper()
	select {
	case started := <-m.notify:
		return started
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job to start")
		return startedJob{}
	}
}

func (m *dispatcherMock) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

func newTestScheduler(t *testing.T, target scheduler.Dispatcher) *scheduler.TimerScheduler {
	t.Helper()
	s := scheduler.NewTimerScheduler(time.Millisecond, 50*time.Millisecond, nil)
	s.SetTarget(target)
	t.Cleanup(s.Stop)
	return s
}

func TestTimerScheduler_RequiresTarget(t *testing.T) {
	s := scheduler.NewTimerScheduler(time.Second, time.Minute, nil)
	defer s.Stop()

	err := s.Schedule(context.Background(), job.Info{ID: "job"}, 0)
	require.Error(t, err)
}

func TestTimerScheduler_FiresAfterDelay(t *testing.T) {
	target := newDispatcherMock()
	s := newTestScheduler(t, target)

	require.NoError(t, s.Schedule(context.Background(), job.Info{ID: "job", Action: "ACTION"}, time.Millisecond))

	started := target.waitForStart(t)
	require.Equal(t, "job", started.info.ID)
	require.Equal(t, 0, started.attempt)
}

func TestTimerScheduler_ConflictKeepDropsDuplicate(t *testing.T) {
	target := newDispatcherMock()
	s := newTestScheduler(t, target)

	info := job.Info{ID: "job", Conflict: job.ConflictKeep}
	require.NoError(t, s.Schedule(context.Background(), info, 10*time.Millisecond))
	require.NoError(t, s.Schedule(context.Background(), info, 10*time.Millisecond))

	target.waitForStart(t)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, target.startCount())
}

func TestTimerScheduler_ConflictReplaceCancelsPending(t *testing.T) {
	target := newDispatcherMock()
	s := newTestScheduler(t, target)

	first := job.Info{ID: "job", Action: "FIRST", Conflict: job.ConflictReplace}
	second := job.Info{ID: "job", Action: "SECOND", Conflict: job.ConflictReplace}
	require.NoError(t, s.Schedule(context.Background(), first, time.Hour))
	require.NoError(t, s.Schedule(context.Background(), second, 5*time.Millisecond))

	started := target.waitForStart(t)
	require.Equal(t, "SECOND", started.info.Action)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, target.startCount())
}

func TestTimerScheduler_RetriesWithIncrementedAttempt(t *testing.T) {
	target := newDispatcherMock()
	target.ResultFn = func(info job.Info, attempt int) job.Result {
		if attempt < 2 {
			return job.ResultRetry
		}
		return job.ResultSuccess
	}
	s := newTestScheduler(t, target)

	require.NoError(t, s.Schedule(context.Background(), job.Info{ID: "job"}, time.Millisecond))

	require.Equal(t, 0, target.waitForStart(t).attempt)
	require.Equal(t, 1, target.waitForStart(t).attempt)
	require.Equal(t, 2, target.waitForStart(t).attempt)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 3, target.startCount())
}

func TestTimerScheduler_ScheduleResetsAttemptCycle(t *testing.T) {
	target := newDispatcherMock()
	target.ResultFn = func(info job.Info, attempt int) job.Result {
		if attempt == 0 {
			return job.ResultRetry
		}
		return job.ResultSuccess
	}
	s := newTestScheduler(t, target)

	require.NoError(t, s.Schedule(context.Background(), job.Info{ID: "job"}, time.Millisecond))
	require.Equal(t, 0, target.waitForStart(t).attempt)
	require.Equal(t, 1, target.waitForStart(t).attempt)

	// A fresh dispatch starts back at attempt zero.
	require.NoError(t, s.Schedule(context.Background(), job.Info{ID: "job"}, time.Millisecond))
	require.Equal(t, 0, target.waitForStart(t).attempt)
}

func TestTimerScheduler_StopRejectsAndCancels(t *testing.T) {
	target := newDispatcherMock()
	s := scheduler.NewTimerScheduler(time.Millisecond, 50*time.Millisecond, nil)
	s.SetTarget(target)

	require.NoError(t, s.Schedule(context.Background(), job.Info{ID: "job"}, time.Hour))
	s.Stop()

	err := s.Schedule(context.Background(), job.Info{ID: "job"}, 0)
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, target.startCount())
}
