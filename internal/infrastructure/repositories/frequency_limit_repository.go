package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/limits"
	"github.com/skybeam/engage/internal/core/ports"
	"github.com/skybeam/engage/internal/infrastructure/db"
)

// FrequencyLimitRepository implements the frequency limit store interface
type FrequencyLimitRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewFrequencyLimitRepository creates a new frequency limit repository
func NewFrequencyLimitRepository(database *db.Database, logger *logrus.Logger) ports.FrequencyLimitStore {
	return &FrequencyLimitRepository{
		db:     database,
		logger: logger,
	}
}

type constraintRow struct {
	ConstraintID string `db:"constraint_id"`
	RangeMs      int64  `db:"range_ms"`
	Count        int    `db:"count"`
}

func (row constraintRow) toDomain() limits.FrequencyConstraint {
	return limits.FrequencyConstraint{
		ID:    row.ConstraintID,
		Range: millisToDuration(row.RangeMs),
		Count: row.Count,
	}
}

// GetConstraints retrieves all stored constraints
func (r *FrequencyLimitRepository) GetConstraints(ctx context.Context) ([]limits.FrequencyConstraint, error) {
	var rows []constraintRow
	query := `SELECT constraint_id, range_ms, count FROM frequency_constraints`

	if err := r.db.DB.SelectContext(ctx, &rows, query); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: failed to get constraints")
		}
		return nil, fmt.Errorf("failed to get constraints: %w", err)
	}

	constraints := make([]limits.FrequencyConstraint, len(rows))
	for i, row := range rows {
		constraints[i] = row.toDomain()
	}
	return constraints, nil
}

// GetConstraintsByIDs retrieves the constraints matching the given ids
func (r *FrequencyLimitRepository) GetConstraintsByIDs(ctx context.Context, ids []string) ([]limits.FrequencyConstraint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []constraintRow
	query := `SELECT constraint_id, range_ms, count FROM frequency_constraints WHERE constraint_id = ANY($1)`

	if err := r.db.DB.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: failed to get constraints by ids")
		}
		return nil, fmt.Errorf("failed to get constraints by ids: %w", err)
	}

	constraints := make([]limits.FrequencyConstraint, len(rows))
	for i, row := range rows {
		constraints[i] = row.toDomain()
	}
	return constraints, nil
}

// InsertConstraint stores a new constraint definition
func (r *FrequencyLimitRepository) InsertConstraint(ctx context.Context, constraint limits.FrequencyConstraint) error {
	query := `
		INSERT INTO frequency_constraints (constraint_id, range_ms, count)
		VALUES ($1, $2, $3)`

	_, err := r.db.DB.ExecContext(ctx, query, constraint.ID, constraint.Range.Milliseconds(), constraint.Count)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"constraint_id": constraint.ID}).WithError(err).Error("db: failed to insert constraint")
		}
		return fmt.Errorf("failed to insert constraint: %w", err)
	}
	return nil
}

// UpdateConstraint updates an existing constraint in place
func (r *FrequencyLimitRepository) UpdateConstraint(ctx context.Context, constraint limits.FrequencyConstraint) error {
	query := `UPDATE frequency_constraints SET range_ms = $2, count = $3 WHERE constraint_id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, constraint.ID, constraint.Range.Milliseconds(), constraint.Count)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"constraint_id": constraint.ID}).WithError(err).Error("db: failed to update constraint")
		}
		return fmt.Errorf("failed to update constraint: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("constraint %q not found", constraint.ID)
	}
	return nil
}

// DeleteConstraints removes constraints and, via cascade, their occurrences
func (r *FrequencyLimitRepository) DeleteConstraints(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM frequency_constraints WHERE constraint_id = ANY($1)`
	if _, err := r.db.DB.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: failed to delete constraints")
		}
		return fmt.Errorf("failed to delete constraints: %w", err)
	}
	return nil
}

// GetOccurrences retrieves the occurrence history for a constraint
func (r *FrequencyLimitRepository) GetOccurrences(ctx context.Context, constraintID string) ([]limits.Occurrence, error) {
	var occurrences []limits.Occurrence
	query := `
		SELECT constraint_id, occurred_at
		FROM frequency_occurrences
		WHERE constraint_id = $1
		ORDER BY occurred_at ASC`

	if err := r.db.DB.SelectContext(ctx, &occurrences, query, constraintID); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"constraint_id": constraintID}).WithError(err).Error("db: failed to get occurrences")
		}
		return nil, fmt.Errorf("failed to get occurrences: %w", err)
	}
	return occurrences, nil
}

// InsertOccurrence appends one occurrence row
func (r *FrequencyLimitRepository) InsertOccurrence(ctx context.Context, occurrence limits.Occurrence) error {
	query := `INSERT INTO frequency_occurrences (constraint_id, occurred_at) VALUES ($1, $2)`

	if _, err := r.db.DB.ExecContext(ctx, query, occurrence.ConstraintID, occurrence.Timestamp); err != nil {
		return fmt.Errorf("failed to insert occurrence: %w", err)
	}
	return nil
}

// DeleteOccurrences clears the occurrence history for a constraint
func (r *FrequencyLimitRepository) DeleteOccurrences(ctx context.Context, constraintID string) error {
	query := `DELETE FROM frequency_occurrences WHERE constraint_id = $1`

	if _, err := r.db.DB.ExecContext(ctx, query, constraintID); err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"constraint_id": constraintID}).WithError(err).Error("db: failed to delete occurrences")
		}
		return fmt.Errorf("failed to delete occurrences: %w", err)
	}
	return nil
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
