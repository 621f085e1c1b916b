package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/skybeam/engage/internal/core/domain/analytics"
)

// ErrUnauthorized is returned by EventUploadClient when the remote rejects
// the bearer token. The caller should invalidate the token and retry.
var ErrUnauthorized = errors.New("bearer token rejected")

// EventRepository stores analytics events until they are uploaded.
type EventRepository interface {
	Insert(ctx context.Context, event *analytics.Event) error
	GetBatch(ctx context.Context, limit int) ([]*analytics.Event, error)
	Delete(ctx context.Context, ids []uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

// EventUploadClient delivers a batch of events to the analytics endpoint.
type EventUploadClient interface {
	Upload(ctx context.Context, bearerToken string, events []*analytics.Event) error
}
