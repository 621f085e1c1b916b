package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/analytics"
	"github.com/skybeam/engage/internal/core/ports"
)

const eventUploadPath = "/api/analytics/events"

// AnalyticsAPIClient delivers event batches to the analytics ingest endpoint.
type AnalyticsAPIClient struct {
	baseURL string
	client  Doer
	logger  *logrus.Logger
}

func NewAnalyticsAPIClient(baseURL string, client Doer, logger *logrus.Logger) *AnalyticsAPIClient {
	return &AnalyticsAPIClient{baseURL: baseURL, client: client, logger: logger}
}

// Upload POSTs the batch under the bearer token. A 401 maps to
// ports.ErrUnauthorized so the caller can invalidate its token.
func (c *AnalyticsAPIClient) Upload(ctx context.Context, bearerToken string, events []*analytics.Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+eventUploadPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ports.ErrUnauthorized
	default:
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "events": len(events)}).Warn("analytics: upload rejected")
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
