package ports

import (
	"context"

	"github.com/skybeam/engage/internal/core/domain/auth"
)

// AuthTokenClient mints a bearer token for a channel against the remote
// device-auth endpoint. Stateless; one network round trip per call.
type AuthTokenClient interface {
	GetToken(ctx context.Context, channelID string) (*auth.Token, error)
}

// PreferenceStore is a typed key-value store for small SDK state such as the
// channel ID and the cached auth token.
type PreferenceStore interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	PutString(ctx context.Context, key string, value string) error
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)
	PutJSON(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}
