package services

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/async"
	"github.com/skybeam/engage/internal/core/domain/limits"
	"github.com/skybeam/engage/internal/core/ports"
)

// ErrMissingConstraint is resolved by GetFrequencyChecker when any requested
// constraint id has no stored definition. Callers decide whether that means
// "blocked" or "not limited".
var ErrMissingConstraint = errors.New("frequency constraint not found")

// FrequencyLimitManager enforces "at most N occurrences within a rolling
// range" per constraint, durably, across any number of concurrent checkers.
//
// All durable reads and writes run on a single serial queue so mutations
// never interleave. A separate mutex guards the in-memory caches; its scope
// is kept to map lookups and list mutation so callers never block on I/O
// while holding it.
type FrequencyLimitManager struct {
	store  ports.FrequencyLimitStore
	clock  ports.Clock
	logger *logrus.Logger
	queue  *async.SerialQueue

	mu          sync.Mutex
	constraints map[string]limits.FrequencyConstraint
	occurrences map[string][]limits.Occurrence
	pending     []limits.Occurrence
}

func NewFrequencyLimitManager(store ports.FrequencyLimitStore, clock ports.Clock, logger *logrus.Logger) *FrequencyLimitManager {
	return &FrequencyLimitManager{
		store:       store,
		clock:       clock,
		logger:      logger,
		queue:       async.NewSerialQueue(64),
		constraints: make(map[string]limits.FrequencyConstraint),
		occurrences: make(map[string][]limits.Occurrence),
	}
}

// Close drains queued work and stops the worker. Pending occurrences that
// still cannot be written are dropped; under-counting is the failure-safe
// direction.
func (m *FrequencyLimitManager) Close() {
	m.queue.Stop()
}

// GetFrequencyChecker resolves a checker bound to the given constraint ids.
// Definitions and history for ids not already cached are loaded from the
// store before the future resolves. The future resolves with
// ErrMissingConstraint if any id has no stored definition.
func (m *FrequencyLimitManager) GetFrequencyChecker(ids []string) *async.Future[ports.FrequencyChecker] {
	future := async.NewFuture[ports.FrequencyChecker]()

	submitted := m.queue.Submit(func(ctx context.Context) {
		if err := m.fetchConstraints(ctx, ids); err != nil {
			future.Resolve(nil, err)
			return
		}

		snapshot := make(map[string]limits.FrequencyConstraint, len(ids))
		m.mu.Lock()
		for _, id := range ids {
			constraint, ok := m.constraints[id]
			if !ok {
				m.mu.Unlock()
				future.Resolve(nil, ErrMissingConstraint)
				return
			}
			snapshot[id] = constraint
		}
		m.mu.Unlock()

		future.Resolve(&frequencyChecker{manager: m, constraints: snapshot}, nil)
	})
	if !submitted {
		future.Resolve(nil, errors.New("frequency limit manager is closed"))
	}
	return future
}

// UpdateConstraints reconciles the stored constraint set against the supplied
// collection: new constraints are inserted, constraints missing from the
// collection are deleted, a range change resets the constraint's occurrence
// history, and a count-only change preserves it. Storage failures downgrade
// to a false result.
func (m *FrequencyLimitManager) UpdateConstraints(constraints []limits.FrequencyConstraint) *async.Future[bool] {
	future := async.NewFuture[bool]()

	submitted := m.queue.Submit(func(ctx context.Context) {
		future.Resolve(m.applyConstraintUpdate(ctx, constraints), nil)
	})
	if !submitted {
		future.Resolve(false, nil)
	}
	return future
}

func (m *FrequencyLimitManager) applyConstraintUpdate(ctx context.Context, constraints []limits.FrequencyConstraint) bool {
	supplied := make(map[string]limits.FrequencyConstraint, len(constraints))
	for _, constraint := range constraints {
		if err := constraint.Validate(); err != nil {
			if m.logger != nil {
				m.logger.WithError(err).Error("limits: rejecting constraint update")
			}
			return false
		}
		supplied[constraint.ID] = constraint
	}

	existing, err := m.store.GetConstraints(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.WithError(err).Error("limits: failed to read stored constraints")
		}
		return false
	}

	var removed []string
	for _, current := range existing {
		updated, keep := supplied[current.ID]
		if !keep {
			removed = append(removed, current.ID)
			continue
		}
		delete(supplied, current.ID)

		switch {
		case updated.Range != current.Range:
			// The sliding-window semantics changed; history no longer
			// means anything.
			if !m.replaceConstraint(ctx, updated) {
				return false
			}
		case updated.Count != current.Count:
			if err := m.store.UpdateConstraint(ctx, updated); err != nil {
				if m.logger != nil {
					m.logger.WithField("constraint_id", updated.ID).WithError(err).Error("limits: failed to update constraint")
				}
				return false
			}
			m.cacheConstraint(updated, false)
		default:
			m.cacheConstraint(updated, false)
		}
	}

	if len(removed) > 0 {
		if err := m.store.DeleteConstraints(ctx, removed); err != nil {
			if m.logger != nil {
				m.logger.WithError(err).Error("limits: failed to delete constraints")
			}
			return false
		}
		m.mu.Lock()
		for _, id := range removed {
			delete(m.constraints, id)
			delete(m.occurrences, id)
		}
		m.mu.Unlock()
	}

	for _, constraint := range supplied {
		if err := m.store.InsertConstraint(ctx, constraint); err != nil {
			if m.logger != nil {
				m.logger.WithField("constraint_id", constraint.ID).WithError(err).Error("limits: failed to insert constraint")
			}
			return false
		}
		m.cacheConstraint(constraint, true)
	}

	return true
}

// replaceConstraint swaps a constraint whose range changed, clearing its
// occurrence history both durably and in the cache.
func (m *FrequencyLimitManager) replaceConstraint(ctx context.Context, constraint limits.FrequencyConstraint) bool {
	if err := m.store.DeleteOccurrences(ctx, constraint.ID); err != nil {
		if m.logger != nil {
			m.logger.WithField("constraint_id", constraint.ID).WithError(err).Error("limits: failed to clear occurrences")
		}
		return false
	}
	if err := m.store.DeleteConstraints(ctx, []string{constraint.ID}); err != nil {
		if m.logger != nil {
			m.logger.WithField("constraint_id", constraint.ID).WithError(err).Error("limits: failed to delete constraint")
		}
		return false
	}
	if err := m.store.InsertConstraint(ctx, constraint); err != nil {
		if m.logger != nil {
			m.logger.WithField("constraint_id", constraint.ID).WithError(err).Error("limits: failed to reinsert constraint")
		}
		return false
	}
	m.cacheConstraint(constraint, true)
	return true
}

func (m *FrequencyLimitManager) cacheConstraint(constraint limits.FrequencyConstraint, resetOccurrences bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints[constraint.ID] = constraint
	if resetOccurrences {
		m.occurrences[constraint.ID] = nil
	}
}

// fetchConstraints loads definitions and history for any ids not yet cached.
func (m *FrequencyLimitManager) fetchConstraints(ctx context.Context, ids []string) error {
	m.mu.Lock()
	var missing []string
	for _, id := range ids {
		if _, ok := m.constraints[id]; !ok {
			missing = append(missing, id)
		}
	}
	m.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}

	fetched, err := m.store.GetConstraintsByIDs(ctx, missing)
	if err != nil {
		return err
	}

	for _, constraint := range fetched {
		history, err := m.store.GetOccurrences(ctx, constraint.ID)
		if err != nil {
			return err
		}
		sort.Slice(history, func(i, j int) bool {
			return history[i].Timestamp.Before(history[j].Timestamp)
		})

		m.mu.Lock()
		m.constraints[constraint.ID] = constraint
		m.occurrences[constraint.ID] = history
		m.mu.Unlock()
	}
	return nil
}

// isOverLimitLocked evaluates the invariant for each snapshot constraint:
// over limit iff at least count occurrences exist and the occurrence at
// position (len-count), ascending, is still inside the range. Caller holds
// m.mu.
func (m *FrequencyLimitManager) isOverLimitLocked(snapshot map[string]limits.FrequencyConstraint) bool {
	now := m.clock.Now()
	for id, constraint := range snapshot {
		history := m.occurrences[id]
		if len(history) < constraint.Count {
			continue
		}
		boundary := history[len(history)-constraint.Count]
		if now.Sub(boundary.Timestamp) <= constraint.Range {
			return true
		}
	}
	return false
}

// recordOccurrencesLocked appends one occurrence per id to the cache and the
// pending buffer. Caller holds m.mu; the durable write happens later on the
// serial queue.
func (m *FrequencyLimitManager) recordOccurrencesLocked(snapshot map[string]limits.FrequencyConstraint) {
	now := m.clock.Now()
	for id := range snapshot {
		occurrence := limits.Occurrence{ConstraintID: id, Timestamp: now}
		m.occurrences[id] = append(m.occurrences[id], occurrence)
		m.pending = append(m.pending, occurrence)
		occurrencesRecordedTotal.WithLabelValues(id).Inc()
	}
}

// writePending flushes the pending buffer to the store. Failed writes are
// requeued for the next flush rather than surfaced to the caller; a crash
// before a flush loses occurrences, which only ever under-counts.
func (m *FrequencyLimitManager) writePending(ctx context.Context) {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	var failed []limits.Occurrence
	for _, occurrence := range batch {
		if err := m.store.InsertOccurrence(ctx, occurrence); err != nil {
			if m.logger != nil {
				m.logger.WithField("constraint_id", occurrence.ConstraintID).WithError(err).Debug("limits: occurrence write failed, requeueing")
			}
			failed = append(failed, occurrence)
		}
	}

	if len(failed) > 0 {
		m.mu.Lock()
		m.pending = append(failed, m.pending...)
		m.mu.Unlock()
	}
}

// frequencyChecker is the per-caller handle. The constraint definitions are
// the snapshot taken at creation; occurrence history is the manager's live
// cache, shared with every other checker.
type frequencyChecker struct {
	manager     *FrequencyLimitManager
	constraints map[string]limits.FrequencyConstraint
}

func (c *frequencyChecker) IsOverLimit() bool {
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()
	return c.manager.isOverLimitLocked(c.constraints)
}

func (c *frequencyChecker) CheckAndIncrement() bool {
	c.manager.mu.Lock()
	if c.manager.isOverLimitLocked(c.constraints) {
		c.manager.mu.Unlock()
		return false
	}
	c.manager.recordOccurrencesLocked(c.constraints)
	c.manager.mu.Unlock()

	c.manager.queue.Submit(c.manager.writePending)
	return true
}
