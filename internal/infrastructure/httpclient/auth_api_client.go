package httpclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/auth"
	"github.com/skybeam/engage/internal/core/ports"
)

const deviceAuthPath = "/api/auth/device"

// Doer issues a single HTTP request. *http.Client satisfies it; tests inject
// fakes. Timeouts belong to the injected client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthAPIClient mints channel-scoped bearer tokens from the device auth
// endpoint. Stateless; the AuthManager owns caching.
type AuthAPIClient struct {
	appKey    string
	appSecret string
	baseURL   string
	client    Doer
	clock     ports.Clock
	logger    *logrus.Logger
}

func NewAuthAPIClient(appKey, appSecret, baseURL string, client Doer, clock ports.Clock, logger *logrus.Logger) *AuthAPIClient {
	return &AuthAPIClient{
		appKey:    appKey,
		appSecret: appSecret,
		baseURL:   baseURL,
		client:    client,
		clock:     clock,
		logger:    logger,
	}
}

type authTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// GetToken requests a bearer token for the channel. The request credential is
// the base64 HMAC-SHA256 of "appKey:channelID" keyed by the app secret; the
// returned expiration is request time plus the server's expires_in seconds.
func (c *AuthAPIClient) GetToken(ctx context.Context, channelID string) (*auth.Token, error) {
	requestTime := c.clock.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+deviceAuthPath, nil)
	if err != nil {
		return nil, &auth.Error{Kind: auth.ErrorKindRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.signature(channelID))
	req.Header.Set("X-Channel-ID", channelID)
	req.Header.Set("X-App-Key", c.appKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &auth.Error{Kind: auth.ErrorKindRequest, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "channel_id": channelID}).Warn("auth: device auth request rejected")
		}
		return nil, &auth.Error{Kind: auth.ErrorKindResponse, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body authTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &auth.Error{Kind: auth.ErrorKindResponse, Err: fmt.Errorf("failed to decode body: %w", err)}
	}
	if body.Token == "" || body.ExpiresIn <= 0 {
		return nil, &auth.Error{Kind: auth.ErrorKindResponse, Err: fmt.Errorf("incomplete token payload")}
	}

	return &auth.Token{
		ChannelID: channelID,
		Token:     body.Token,
		ExpiresAt: requestTime.Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}

func (c *AuthAPIClient) signature(channelID string) string {
	mac := hmac.New(sha256.New, []byte(c.appSecret))
	mac.Write([]byte(c.appKey + ":" + channelID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
