package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/analytics"
	"github.com/skybeam/engage/internal/core/ports"
	"github.com/skybeam/engage/internal/infrastructure/db"
)

// EventRepository implements analytics event storage over Postgres
type EventRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewEventRepository creates a new analytics event repository
func NewEventRepository(database *db.Database, logger *logrus.Logger) ports.EventRepository {
	return &EventRepository{
		db:     database,
		logger: logger,
	}
}

// Insert stores a new pending event
func (r *EventRepository) Insert(ctx context.Context, event *analytics.Event) error {
	query := `
		INSERT INTO analytics_events (id, type, session_id, occurred_at, body)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.DB.ExecContext(ctx, query, event.ID, event.Type, event.SessionID, event.OccurredAt, event.Body)
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type}).WithError(err).Error("db: failed to insert event")
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetBatch retrieves the oldest pending events up to limit
func (r *EventRepository) GetBatch(ctx context.Context, limit int) ([]*analytics.Event, error) {
	var events []*analytics.Event
	query := `
		SELECT id, type, session_id, occurred_at, body
		FROM analytics_events
		ORDER BY occurred_at ASC
		LIMIT $1`

	if err := r.db.DB.SelectContext(ctx, &events, query, limit); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: failed to get event batch")
		}
		return nil, fmt.Errorf("failed to get event batch: %w", err)
	}
	return events, nil
}

// Delete removes events by id after a successful upload
func (r *EventRepository) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `DELETE FROM analytics_events WHERE id = ANY($1::uuid[])`
	if _, err := r.db.DB.ExecContext(ctx, query, pq.Array(raw)); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: failed to delete events")
		}
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

// Count returns the number of pending events
func (r *EventRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM analytics_events`); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
