package ports

import (
	"context"

	"github.com/skybeam/engage/internal/core/domain/limits"
)

// FrequencyLimitStore persists frequency constraints and their occurrence
// history. Implementations are expected to be safe for use from a single
// serialized writer; ordering of returned occurrences is not guaranteed.
type FrequencyLimitStore interface {
	GetConstraints(ctx context.Context) ([]limits.FrequencyConstraint, error)
	GetConstraintsByIDs(ctx context.Context, ids []string) ([]limits.FrequencyConstraint, error)
	InsertConstraint(ctx context.Context, constraint limits.FrequencyConstraint) error
	UpdateConstraint(ctx context.Context, constraint limits.FrequencyConstraint) error
	DeleteConstraints(ctx context.Context, ids []string) error
	GetOccurrences(ctx context.Context, constraintID string) ([]limits.Occurrence, error)
	InsertOccurrence(ctx context.Context, occurrence limits.Occurrence) error
	DeleteOccurrences(ctx context.Context, constraintID string) error
}

// FrequencyChecker gates one caller against the constraint set it was created
// for. The bound constraint definitions are fixed at creation; occurrence
// history is shared with every other checker.
type FrequencyChecker interface {
	// IsOverLimit reports whether any bound constraint is over limit.
	IsOverLimit() bool
	// CheckAndIncrement records one occurrence against every bound
	// constraint if none is over limit. All-or-nothing.
	CheckAndIncrement() bool
}
