package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/analytics"
	"github.com/skybeam/engage/internal/core/domain/job"
	"github.com/skybeam/engage/internal/core/ports"
)

const (
	// EventUploadAction identifies the analytics upload job.
	EventUploadAction = "ACTION_UPLOAD_EVENTS"
	// EventUploadRateLimitTag throttles upload jobs.
	EventUploadRateLimitTag = "Analytics.upload"

	eventUploadJobID = "analytics-event-upload"
)

// EventServiceConfig groups event batching knobs.
type EventServiceConfig struct {
	BatchSize   int
	UploadDelay time.Duration
}

// EventService persists analytics events and schedules their upload through
// the job dispatcher.
type EventService struct {
	repo        ports.EventRepository
	dispatcher  *JobDispatcher
	logger      *logrus.Logger
	batchSize   int
	uploadDelay time.Duration
}

func NewEventService(repo ports.EventRepository, dispatcher *JobDispatcher, cfg *EventServiceConfig, logger *logrus.Logger) *EventService {
	batchSize := 100
	uploadDelay := 10 * time.Second
	if cfg != nil {
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
		if cfg.UploadDelay > 0 {
			uploadDelay = cfg.UploadDelay
		}
	}
	return &EventService{repo: repo, dispatcher: dispatcher, logger: logger, batchSize: batchSize, uploadDelay: uploadDelay}
}

// AddEvent stores the event and dispatches an upload job. A job already
// pending is kept; uploads drain the whole backlog in batches.
func (s *EventService) AddEvent(ctx context.Context, event *analytics.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if err := s.repo.Insert(ctx, event); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"event_id": event.ID, "type": event.Type}).Debug("analytics: event added")
	}

	return s.dispatcher.Dispatch(ctx, job.Info{
		ID:            eventUploadJobID,
		Action:        EventUploadAction,
		Component:     "analytics",
		MinDelay:      s.uploadDelay,
		Conflict:      job.ConflictKeep,
		RateLimitTags: []string{EventUploadRateLimitTag},
	})
}

// EventUploadRunner is the JobRunner for analytics uploads: it batches
// pending events, obtains a bearer token, delivers the batch, and deletes
// uploaded rows.
type EventUploadRunner struct {
	repo      ports.EventRepository
	client    ports.EventUploadClient
	auth      *AuthManager
	logger    *logrus.Logger
	batchSize int
}

func NewEventUploadRunner(repo ports.EventRepository, client ports.EventUploadClient, auth *AuthManager, batchSize int, logger *logrus.Logger) *EventUploadRunner {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EventUploadRunner{repo: repo, client: client, auth: auth, logger: logger, batchSize: batchSize}
}

func (r *EventUploadRunner) Run(ctx context.Context, info job.Info, consumer func(job.Result)) {
	if info.Action != EventUploadAction {
		if r.logger != nil {
			r.logger.WithField("action", info.Action).Error("analytics: unexpected job action")
		}
		consumer(job.ResultFailure)
		return
	}
	consumer(r.uploadBatch(ctx))
}

func (r *EventUploadRunner) uploadBatch(ctx context.Context) job.Result {
	batch, err := r.repo.GetBatch(ctx, r.batchSize)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("analytics: failed to read event batch")
		}
		return job.ResultRetry
	}
	if len(batch) == 0 {
		return job.ResultSuccess
	}

	token, err := r.auth.GetToken(ctx)
	if err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Warn("analytics: failed to obtain bearer token")
		}
		return job.ResultRetry
	}

	if err := r.client.Upload(ctx, token, batch); err != nil {
		if errors.Is(err, ports.ErrUnauthorized) {
			r.auth.TokenExpired(ctx, token)
		}
		if r.logger != nil {
			r.logger.WithField("events", len(batch)).WithError(err).Warn("analytics: upload failed")
		}
		return job.ResultRetry
	}

	ids := make([]uuid.UUID, len(batch))
	for i, event := range batch {
		ids[i] = event.ID
	}
	if err := r.repo.Delete(ctx, ids); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("analytics: failed to delete uploaded events")
		}
		return job.ResultRetry
	}

	if r.logger != nil {
		r.logger.WithField("events", len(batch)).Info("analytics: uploaded event batch")
	}
	return job.ResultSuccess
}
