package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skybeam/engage/internal/core/domain/analytics"
	"github.com/skybeam/engage/internal/core/domain/auth"
	"github.com/skybeam/engage/internal/core/domain/job"
	"github.com/skybeam/engage/internal/core/domain/limits"
)

// TestClock is a settable clock for deterministic tests
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock(start time.Time) *TestClock {
	return &TestClock{now: start}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// InMemoryFrequencyLimitStore is a FrequencyLimitStore backed by maps, with
// optional failure injection for occurrence writes
type InMemoryFrequencyLimitStore struct {
	mu          sync.Mutex
	constraints map[string]limits.FrequencyConstraint
	occurrences map[string][]limits.Occurrence

	// InsertOccurrenceErr, when set, is consulted before each occurrence
	// insert; a non-nil return fails the write
	InsertOccurrenceErr func(occurrence limits.Occurrence) error
	// GetConstraintsErr, when set, fails reads of the constraint set
	GetConstraintsErr error
}

func NewInMemoryFrequencyLimitStore() *InMemoryFrequencyLimitStore {
	return &InMemoryFrequencyLimitStore{
		constraints: make(map[string]limits.FrequencyConstraint),
		occurrences: make(map[string][]limits.Occurrence),
	}
}

func (s *InMemoryFrequencyLimitStore) GetConstraints(ctx context.Context) ([]limits.FrequencyConstraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetConstraintsErr != nil {
		return nil, s.GetConstraintsErr
	}
	out := make([]limits.FrequencyConstraint, 0, len(s.constraints))
	for _, constraint := range s.constraints {
		out = append(out, constraint)
	}
	return out, nil
}

func (s *InMemoryFrequencyLimitStore) GetConstraintsByIDs(ctx context.Context, ids []string) ([]limits.FrequencyConstraint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetConstraintsErr != nil {
		return nil, s.GetConstraintsErr
	}
	var out []limits.FrequencyConstraint
	for _, id := range ids {
		if constraint, ok := s.constraints[id]; ok {
			out = append(out, constraint)
		}
	}
	return out, nil
}

func (s *InMemoryFrequencyLimitStore) InsertConstraint(ctx context.Context, constraint limits.FrequencyConstraint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.constraints[constraint.ID]; ok {
		return fmt.Errorf("constraint %q already exists", constraint.ID)
	}
	s.constraints[constraint.ID] = constraint
	return nil
}

func (s *InMemoryFrequencyLimitStore) UpdateConstraint(ctx context.Context, constraint limits.FrequencyConstraint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.constraints[constraint.ID]; !ok {
		return fmt.Errorf("constraint %q not found", constraint.ID)
	}
	s.constraints[constraint.ID] = constraint
	return nil
}

func (s *InMemoryFrequencyLimitStore) DeleteConstraints(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.constraints, id)
		delete(s.occurrences, id)
	}
	return nil
}

func (s *InMemoryFrequencyLimitStore) GetOccurrences(ctx context.Context, constraintID string) ([]limits.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]limits.Occurrence(nil), s.occurrences[constraintID]...), nil
}

func (s *InMemoryFrequencyLimitStore) InsertOccurrence(ctx context.Context, occurrence limits.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertOccurrenceErr != nil {
		if err := s.InsertOccurrenceErr(occurrence); err != nil {
			return err
		}
	}
	if _, ok := s.constraints[occurrence.ConstraintID]; !ok {
		return fmt.Errorf("constraint %q not found", occurrence.ConstraintID)
	}
	s.occurrences[occurrence.ConstraintID] = append(s.occurrences[occurrence.ConstraintID], occurrence)
	return nil
}

func (s *InMemoryFrequencyLimitStore) DeleteOccurrences(ctx context.Context, constraintID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.occurrences, constraintID)
	return nil
}

// SchedulerMock is a lightweight mock for Scheduler
type SchedulerMock struct {
	mu         sync.Mutex
	ScheduleFn func(ctx context.Context, info job.Info, delay time.Duration) error
	Calls      []ScheduledCall
}

type ScheduledCall struct {
	Info  job.Info
	Delay time.Duration
}

func (m *SchedulerMock) Schedule(ctx context.Context, info job.Info, delay time.Duration) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, ScheduledCall{Info: info, Delay: delay})
	m.mu.Unlock()
	if m.ScheduleFn != nil {
		return m.ScheduleFn(ctx, info, delay)
	}
	return nil
}

func (m *SchedulerMock) Scheduled() []ScheduledCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledCall(nil), m.Calls...)
}

// JobRunnerMock is a lightweight mock for JobRunner
type JobRunnerMock struct {
	RunFn    func(ctx context.Context, info job.Info, consumer func(job.Result))
	RunCount int
}

func (m *JobRunnerMock) Run(ctx context.Context, info job.Info, consumer func(job.Result)) {
	m.RunCount++
	if m.RunFn != nil {
		m.RunFn(ctx, info, consumer)
		return
	}
	consumer(job.ResultSuccess)
}

// AuthTokenClientMock is a lightweight mock for AuthTokenClient
type AuthTokenClientMock struct {
	GetTokenFn func(ctx context.Context, channelID string) (*auth.Token, error)
	CallCount  int
}

func (m *AuthTokenClientMock) GetToken(ctx context.Context, channelID string) (*auth.Token, error) {
	m.CallCount++
	if m.GetTokenFn != nil {
		return m.GetTokenFn(ctx, channelID)
	}
	return nil, fmt.Errorf("not configured")
}

// InMemoryPreferenceStore is a PreferenceStore backed by a map
type InMemoryPreferenceStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewInMemoryPreferenceStore() *InMemoryPreferenceStore {
	return &InMemoryPreferenceStore{values: make(map[string][]byte)}
}

func (s *InMemoryPreferenceStore) GetString(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.values[key]
	if !ok {
		return "", false, nil
	}
	return string(val), true, nil
}

func (s *InMemoryPreferenceStore) PutString(ctx context.Context, key string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = []byte(value)
	return nil
}

func (s *InMemoryPreferenceStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InMemoryPreferenceStore) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = data
	return nil
}

func (s *InMemoryPreferenceStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// EventRepositoryMock is a lightweight mock for EventRepository
type EventRepositoryMock struct {
	InsertFn   func(ctx context.Context, event *analytics.Event) error
	GetBatchFn func(ctx context.Context, limit int) ([]*analytics.Event, error)
	DeleteFn   func(ctx context.Context, ids []uuid.UUID) error
	CountFn    func(ctx context.Context) (int, error)
}

func (m *EventRepositoryMock) Insert(ctx context.Context, event *analytics.Event) error {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, event)
	}
	return nil
}

func (m *EventRepositoryMock) GetBatch(ctx context.Context, limit int) ([]*analytics.Event, error) {
	if m.GetBatchFn != nil {
		return m.GetBatchFn(ctx, limit)
	}
	return nil, nil
}

func (m *EventRepositoryMock) Delete(ctx context.Context, ids []uuid.UUID) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, ids)
	}
	return nil
}

func (m *EventRepositoryMock) Count(ctx context.Context) (int, error) {
	if m.CountFn != nil {
		return m.CountFn(ctx)
	}
	return 0, nil
}

// EventUploadClientMock is a lightweight mock for EventUploadClient
type EventUploadClientMock struct {
	UploadFn func(ctx context.Context, bearerToken string, events []*analytics.Event) error
}

func (m *EventUploadClientMock) Upload(ctx context.Context, bearerToken string, events []*analytics.Event) error {
	if m.UploadFn != nil {
		return m.UploadFn(ctx, bearerToken, events)
	}
	return nil
}
