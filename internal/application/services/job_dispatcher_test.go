package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybeam/engage/internal/application/services"
	"github.com/skybeam/engage/internal/core/domain/job"
	"github.com/skybeam/engage/test/mocks"
)

func TestJobDispatcher_DispatchUsesMinDelay(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	dispatcher := services.NewJobDispatcher(scheduler, &mocks.JobRunnerMock{}, services.NewRateLimiter(clock), nil, nil)

	info := job.Info{ID: "job", Action: "ACTION", MinDelay: 5 * time.Second}
	require.NoError(t, dispatcher.Dispatch(context.Background(), info))

	calls := scheduler.Scheduled()
	require.Len(t, calls, 1)
	require.Equal(t, 5*time.Second, calls[0].Delay)
}

func TestJobDispatcher_DispatchDefersForRateLimit(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	dispatcher := services.NewJobDispatcher(scheduler, &mocks.JobRunnerMock{}, services.NewRateLimiter(clock), nil, nil)

	dispatcher.SetRateLimit("tag", 1, time.Second)

	info := job.Info{ID: "job", Action: "ACTION", RateLimitTags: []string{"tag"}}
	require.NoError(t, dispatcher.Dispatch(context.Background(), info))

	// Consume the single slot; the next dispatch waits out the window.
	clock.Set(time.UnixMilli(200))
	dispatcherTrack(dispatcher, info)
	require.NoError(t, dispatcher.Dispatch(context.Background(), info))

	calls := scheduler.Scheduled()
	require.Len(t, calls, 2)
	require.Equal(t, time.Duration(0), calls[0].Delay)
	require.Equal(t, time.Second, calls[1].Delay)
}

// dispatcherTrack runs the job once so its tags accrue usage.
func dispatcherTrack(dispatcher *services.JobDispatcher, info job.Info) {
	dispatcher.OnStartJob(context.Background(), info, 0, func(job.Result) {})
}

func TestJobDispatcher_DispatchPropagatesSchedulerError(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	scheduler.ScheduleFn = func(ctx context.Context, info job.Info, delay time.Duration) error {
		return errors.New("quota exceeded")
	}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	dispatcher := services.NewJobDispatcher(scheduler, &mocks.JobRunnerMock{}, services.NewRateLimiter(clock), nil, nil)

	err := dispatcher.Dispatch(context.Background(), job.Info{ID: "job"})
	require.EqualError(t, err, "quota exceeded")
}

func TestJobDispatcher_OnStartJobOverLimit(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	runner := &mocks.JobRunnerMock{}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	limiter := services.NewRateLimiter(clock)
	dispatcher := services.NewJobDispatcher(scheduler, runner, limiter, nil, nil)

	dispatcher.SetRateLimit("tag", 1, time.Second)
	limiter.Track("tag")
	clock.Set(time.UnixMilli(300))

	var results []job.Result
	info := job.Info{ID: "job", Action: "ACTION", RateLimitTags: []string{"tag"}}
	dispatcher.OnStartJob(context.Background(), info, 0, func(r job.Result) { results = append(results, r) })

	require.Equal(t, []job.Result{job.ResultFailure}, results)
	require.Zero(t, runner.RunCount)

	// Rescheduled for when the window clears, without tracking usage.
	calls := scheduler.Scheduled()
	require.Len(t, calls, 1)
	require.Equal(t, 700*time.Millisecond, calls[0].Delay)
	require.Equal(t, 700*time.Millisecond, limiter.Status("tag").NextAvailable)
}

func TestJobDispatcher_OnStartJobTracksAndRuns(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	runner := &mocks.JobRunnerMock{}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	limiter := services.NewRateLimiter(clock)
	dispatcher := services.NewJobDispatcher(scheduler, runner, limiter, nil, nil)

	dispatcher.SetRateLimit("a", 1, time.Second)
	dispatcher.SetRateLimit("b", 1, time.Second)

	var results []job.Result
	info := job.Info{ID: "job", Action: "ACTION", RateLimitTags: []string{"a", "b"}}
	dispatcher.OnStartJob(context.Background(), info, 0, func(r job.Result) { results = append(results, r) })

	require.Equal(t, []job.Result{job.ResultSuccess}, results)
	require.Equal(t, 1, runner.RunCount)
	require.Equal(t, services.LimitStatusOver, limiter.Status("a").Status)
	require.Equal(t, services.LimitStatusOver, limiter.Status("b").Status)
	require.Empty(t, scheduler.Scheduled())
}

func TestJobDispatcher_RetryBelowCeilingPassesThrough(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	runner := &mocks.JobRunnerMock{}
	runner.RunFn = func(ctx context.Context, info job.Info, consumer func(job.Result)) {
		consumer(job.ResultRetry)
	}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	dispatcher := services.NewJobDispatcher(scheduler, runner, services.NewRateLimiter(clock), nil, nil)

	var results []job.Result
	dispatcher.OnStartJob(context.Background(), job.Info{ID: "job"}, 4, func(r job.Result) { results = append(results, r) })

	require.Equal(t, []job.Result{job.ResultRetry}, results)
	require.Empty(t, scheduler.Scheduled())
}

func TestJobDispatcher_RetryCeilingOverridesToFailure(t *testing.T) {
	scheduler := &mocks.SchedulerMock{}
	runner := &mocks.JobRunnerMock{}
	runner.RunFn = func(ctx context.Context, info job.Info, consumer func(job.Result)) {
		consumer(job.ResultRetry)
	}
	clock := mocks.NewTestClock(time.UnixMilli(0))
	cfg := &services.JobDispatcherConfig{MaxRetries: 3, GiveUpDelay: 2 * time.Hour}
	dispatcher := services.NewJobDispatcher(scheduler, runner, services.NewRateLimiter(clock), cfg, nil)

	var results []job.Result
	dispatcher.OnStartJob(context.Background(), job.Info{ID: "job"}, 3, func(r job.Result) { results = append(results, r) })

	require.Equal(t, []job.Result{job.ResultFailure}, results)

	calls := scheduler.Scheduled()
	require.Len(t, calls, 1)
	require.Equal(t, 2*time.Hour, calls[0].Delay)
}
