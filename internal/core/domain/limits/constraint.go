package limits

import (
	"fmt"
	"time"
)

// FrequencyConstraint caps how many occurrences may be recorded against an
// identifier within a rolling time range. Immutable once validated.
type FrequencyConstraint struct {
	ID    string        `json:"id" db:"constraint_id"`
	Range time.Duration `json:"range" db:"range_ms"`
	Count int           `json:"count" db:"count"`
}

// Validate checks the constraint is well formed.
func (c FrequencyConstraint) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("frequency constraint requires an id")
	}
	if c.Range <= 0 {
		return fmt.Errorf("frequency constraint %q requires a positive range", c.ID)
	}
	if c.Count <= 0 {
		return fmt.Errorf("frequency constraint %q requires a positive count", c.ID)
	}
	return nil
}

// Occurrence is one recorded usage against a constraint. Append-only; rows are
// only removed when the parent constraint is deleted or its range changes.
type Occurrence struct {
	ConstraintID string    `db:"constraint_id"`
	Timestamp    time.Time `db:"occurred_at"`
}
