package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/skybeam/engage/internal/core/domain/auth"
	"github.com/skybeam/engage/internal/core/ports"
)

const (
	channelIDKey   = "engage.channel_id"
	cachedTokenKey = "engage.auth_token"
)

// AuthManager caches a single valid bearer token per channel, refreshing it
// through the auth API client when it expires, the channel changes, or a
// caller reports early expiry. GetToken blocks on network I/O on a cache
// miss; call it from a worker goroutine.
type AuthManager struct {
	client ports.AuthTokenClient
	prefs  ports.PreferenceStore
	clock  ports.Clock
	logger *logrus.Logger

	mu     sync.Mutex
	cached *auth.Token
}

func NewAuthManager(client ports.AuthTokenClient, prefs ports.PreferenceStore, clock ports.Clock, logger *logrus.Logger) *AuthManager {
	return &AuthManager{client: client, prefs: prefs, clock: clock, logger: logger}
}

// SetChannelID assigns the channel this manager mints tokens for. Changing
// the channel invalidates any cached token.
func (m *AuthManager) SetChannelID(ctx context.Context, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("channel id must not be empty")
	}
	if err := m.prefs.PutString(ctx, channelIDKey, channelID); err != nil {
		return fmt.Errorf("failed to store channel id: %w", err)
	}

	m.mu.Lock()
	if m.cached != nil && m.cached.ChannelID != channelID {
		m.cached = nil
	}
	m.mu.Unlock()
	return nil
}

// ChannelID returns the currently assigned channel id, if any.
func (m *AuthManager) ChannelID(ctx context.Context) (string, bool, error) {
	return m.prefs.GetString(ctx, channelIDKey)
}

// GetToken returns a valid bearer token for the current channel, minting one
// when the cache is empty, stale, or bound to a different channel. Failures
// surface as *auth.Error; there is no retry at this layer.
//
// Concurrent misses may each mint a token; the last write to the cache wins.
func (m *AuthManager) GetToken(ctx context.Context) (string, error) {
	channelID, ok, err := m.prefs.GetString(ctx, channelIDKey)
	if err != nil {
		return "", &auth.Error{Kind: auth.ErrorKindRequest, Err: fmt.Errorf("failed to read channel id: %w", err)}
	}
	if !ok || channelID == "" {
		return "", &auth.Error{Kind: auth.ErrorKindNoChannel}
	}

	if token, ok := m.cachedToken(channelID); ok {
		return token, nil
	}

	// Warm the in-memory slot from the preference store so a restart does
	// not force a redundant mint.
	var persisted auth.Token
	if found, err := m.prefs.GetJSON(ctx, cachedTokenKey, &persisted); err == nil && found {
		m.mu.Lock()
		if m.cached == nil {
			m.cached = &persisted
		}
		m.mu.Unlock()
		if token, ok := m.cachedToken(channelID); ok {
			return token, nil
		}
	}

	minted, err := m.client.GetToken(ctx, channelID)
	if err != nil {
		return "", err
	}
	authTokensMintedTotal.Inc()

	m.mu.Lock()
	m.cached = minted
	m.mu.Unlock()

	if err := m.prefs.PutJSON(ctx, cachedTokenKey, minted); err != nil && m.logger != nil {
		m.logger.WithError(err).Warn("auth: failed to persist cached token")
	}
	return minted.Token, nil
}

// TokenExpired clears the cache when the supplied token is the cached one.
// Servers may reject a token slightly before its locally computed expiry;
// this lets the caller force a refresh.
func (m *AuthManager) TokenExpired(ctx context.Context, token string) {
	m.mu.Lock()
	matched := m.cached != nil && m.cached.Token == token
	if matched {
		m.cached = nil
	}
	m.mu.Unlock()

	if matched {
		if err := m.prefs.Delete(ctx, cachedTokenKey); err != nil && m.logger != nil {
			m.logger.WithError(err).Warn("auth: failed to drop persisted token")
		}
	}
}

// cachedToken returns the cached token when it belongs to channelID and has
// not reached its expiration. Expiry is inclusive: now >= expiration is a
// miss.
func (m *AuthManager) cachedToken(channelID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil || m.cached.ChannelID != channelID {
		return "", false
	}
	if !m.clock.Now().Before(m.cached.ExpiresAt) {
		m.cached = nil
		return "", false
	}
	return m.cached.Token, true
}
