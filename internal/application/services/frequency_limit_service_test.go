package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skybeam/engage/internal/application/services"
	"github.com/skybeam/engage/internal/core/domain/limits"
	"github.com/skybeam/engage/internal/core/ports"
	"github.com/skybeam/engage/test/mocks"
)

func newLimitManager(t *testing.T, store ports.FrequencyLimitStore, clock ports.Clock) *services.FrequencyLimitManager {
	t.Helper()
	manager := services.NewFrequencyLimitManager(store, clock, nil)
	t.Cleanup(manager.Close)
	return manager
}

func getChecker(t *testing.T, manager *services.FrequencyLimitManager, ids ...string) ports.FrequencyChecker {
	t.Helper()
	checker, err := manager.GetFrequencyChecker(ids).Get(context.Background())
	require.NoError(t, err)
	return checker
}

func updateConstraints(t *testing.T, manager *services.FrequencyLimitManager, constraints ...limits.FrequencyConstraint) {
	t.Helper()
	ok, err := manager.UpdateConstraints(constraints).Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFrequencyLimitManager_CheckerWithNoConstraints(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	manager := newLimitManager(t, store, mocks.NewTestClock(time.UnixMilli(0)))

	checker := getChecker(t, manager)
	require.False(t, checker.IsOverLimit())
	require.True(t, checker.CheckAndIncrement())
	require.True(t, checker.CheckAndIncrement())
	require.False(t, checker.IsOverLimit())
}

func TestFrequencyLimitManager_MissingConstraint(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	manager := newLimitManager(t, store, mocks.NewTestClock(time.UnixMilli(0)))

	_, err := manager.GetFrequencyChecker([]string{"nope"}).Get(context.Background())
	require.ErrorIs(t, err, services.ErrMissingConstraint)
}

func TestFrequencyLimitManager_SingleChecker(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := newLimitManager(t, store, clock)

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 2, Range: 10 * time.Millisecond})
	checker := getChecker(t, manager, "foo")

	require.False(t, checker.IsOverLimit())
	require.True(t, checker.CheckAndIncrement())

	clock.Set(time.UnixMilli(1))
	require.False(t, checker.IsOverLimit())
	require.True(t, checker.CheckAndIncrement())

	// Two occurrences inside the range: over limit, increments refused.
	require.True(t, checker.IsOverLimit())
	require.False(t, checker.CheckAndIncrement())

	// The first occurrence falls out of the range at t=11.
	clock.Set(time.UnixMilli(10))
	require.True(t, checker.IsOverLimit())

	clock.Set(time.UnixMilli(11))
	require.False(t, checker.IsOverLimit())
	require.True(t, checker.CheckAndIncrement())

	// History is now [0, 1, 11]; the t=1 occurrence keeps it over.
	require.True(t, checker.IsOverLimit())
}

func TestFrequencyLimitManager_CheckersShareOccurrences(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := newLimitManager(t, store, clock)

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 2, Range: 10 * time.Millisecond})
	first := getChecker(t, manager, "foo")
	second := getChecker(t, manager, "foo")

	require.True(t, first.CheckAndIncrement())
	require.True(t, second.CheckAndIncrement())

	require.True(t, first.IsOverLimit())
	require.True(t, second.IsOverLimit())
	require.False(t, second.CheckAndIncrement())
}

func TestFrequencyLimitManager_MultipleConstraints(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := newLimitManager(t, store, clock)

	updateConstraints(t, manager,
		limits.FrequencyConstraint{ID: "fast", Count: 1, Range: 10 * time.Millisecond},
		limits.FrequencyConstraint{ID: "slow", Count: 5, Range: time.Second},
	)
	checker := getChecker(t, manager, "fast", "slow")

	require.True(t, checker.CheckAndIncrement())

	// The fast constraint is over, so the whole check refuses.
	require.True(t, checker.IsOverLimit())
	require.False(t, checker.CheckAndIncrement())

	clock.Set(time.UnixMilli(11))
	require.False(t, checker.IsOverLimit())
	require.True(t, checker.CheckAndIncrement())
}

func TestFrequencyLimitManager_OccurrencesPersisted(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := services.NewFrequencyLimitManager(store, clock, nil)

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 5, Range: time.Second})
	checker := getChecker(t, manager, "foo")

	require.True(t, checker.CheckAndIncrement())
	clock.Set(time.UnixMilli(5))
	require.True(t, checker.CheckAndIncrement())

	manager.Close()

	stored, err := store.GetOccurrences(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, time.UnixMilli(0), stored[0].Timestamp)
	require.Equal(t, time.UnixMilli(5), stored[1].Timestamp)
}

func TestFrequencyLimitManager_HistoryLoadedFromStore(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))

	// Seed durable state from a previous run.
	ctx := context.Background()
	require.NoError(t, store.InsertConstraint(ctx, limits.FrequencyConstraint{ID: "foo", Count: 2, Range: 10 * time.Millisecond}))
	require.NoError(t, store.InsertOccurrence(ctx, limits.Occurrence{ConstraintID: "foo", Timestamp: time.UnixMilli(0)}))
	require.NoError(t, store.InsertOccurrence(ctx, limits.Occurrence{ConstraintID: "foo", Timestamp: time.UnixMilli(1)}))

	clock.Set(time.UnixMilli(2))
	manager := newLimitManager(t, store, clock)
	checker := getChecker(t, manager, "foo")

	require.True(t, checker.IsOverLimit())
	require.False(t, checker.CheckAndIncrement())
}

func TestFrequencyLimitManager_RangeChangeClearsOccurrences(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := services.NewFrequencyLimitManager(store, clock, nil)

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 1, Range: 10 * time.Millisecond})
	checker := getChecker(t, manager, "foo")
	require.True(t, checker.CheckAndIncrement())
	require.True(t, checker.IsOverLimit())

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 1, Range: 20 * time.Millisecond})

	fresh := getChecker(t, manager, "foo")
	require.False(t, fresh.IsOverLimit())
	require.True(t, fresh.CheckAndIncrement())

	manager.Close()
	stored, err := store.GetOccurrences(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestFrequencyLimitManager_CountChangePreservesOccurrences(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := newLimitManager(t, store, clock)

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 2, Range: 10 * time.Millisecond})
	checker := getChecker(t, manager, "foo")
	require.True(t, checker.CheckAndIncrement())
	require.False(t, checker.IsOverLimit())

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 1, Range: 10 * time.Millisecond})

	// The surviving occurrence now trips the tighter count.
	fresh := getChecker(t, manager, "foo")
	require.True(t, fresh.IsOverLimit())
	require.False(t, fresh.CheckAndIncrement())
}

func TestFrequencyLimitManager_OmittedConstraintsDeleted(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := newLimitManager(t, store, clock)

	updateConstraints(t, manager,
		limits.FrequencyConstraint{ID: "foo", Count: 1, Range: 10 * time.Millisecond},
		limits.FrequencyConstraint{ID: "bar", Count: 1, Range: 10 * time.Millisecond},
	)
	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "bar", Count: 1, Range: 10 * time.Millisecond})

	stored, err := store.GetConstraints(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "bar", stored[0].ID)

	_, err = manager.GetFrequencyChecker([]string{"foo"}).Get(context.Background())
	require.ErrorIs(t, err, services.ErrMissingConstraint)
}

func TestFrequencyLimitManager_InvalidConstraintRejected(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	manager := newLimitManager(t, store, mocks.NewTestClock(time.UnixMilli(0)))

	ok, err := manager.UpdateConstraints([]limits.FrequencyConstraint{{ID: "foo", Count: 0, Range: time.Second}}).Get(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFrequencyLimitManager_StoreFailureDowngrades(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	store.GetConstraintsErr = errors.New("db down")
	manager := newLimitManager(t, store, mocks.NewTestClock(time.UnixMilli(0)))

	ok, err := manager.UpdateConstraints([]limits.FrequencyConstraint{{ID: "foo", Count: 1, Range: time.Second}}).Get(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFrequencyLimitManager_FailedOccurrenceWritesRequeued(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	clock := mocks.NewTestClock(time.UnixMilli(0))
	manager := services.NewFrequencyLimitManager(store, clock, nil)

	failures := 1
	store.InsertOccurrenceErr = func(limits.Occurrence) error {
		if failures > 0 {
			failures--
			return errors.New("write failed")
		}
		return nil
	}

	updateConstraints(t, manager, limits.FrequencyConstraint{ID: "foo", Count: 5, Range: time.Second})
	checker := getChecker(t, manager, "foo")

	require.True(t, checker.CheckAndIncrement())
	clock.Set(time.UnixMilli(1))
	require.True(t, checker.CheckAndIncrement())

	manager.Close()

	stored, err := store.GetOccurrences(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func TestFrequencyLimitManager_ClosedManagerRefusesCheckers(t *testing.T) {
	store := mocks.NewInMemoryFrequencyLimitStore()
	manager := services.NewFrequencyLimitManager(store, mocks.NewTestClock(time.UnixMilli(0)), nil)
	manager.Close()

	_, err := manager.GetFrequencyChecker(nil).Get(context.Background())
	require.Error(t, err)

	ok, err := manager.UpdateConstraints(nil).Get(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
