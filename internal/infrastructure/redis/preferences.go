package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// PreferenceDataStore implements ports.PreferenceStore over Redis. It holds
// small long-lived SDK state: the channel id and the cached auth token.
type PreferenceDataStore struct {
	r redis.Cmdable
	// optional key prefix to namespace entries
	prefix string
}

// NewPreferenceDataStore creates a Redis-backed preference store.
func NewPreferenceDataStore(r redis.Cmdable, prefix string) *PreferenceDataStore {
	return &PreferenceDataStore{r: r, prefix: prefix}
}

func (p *PreferenceDataStore) namespaced(key string) string {
	if p.prefix == "" {
		return key
	}
	return p.prefix + ":" + key
}

// GetString reads a string preference; the bool reports presence.
func (p *PreferenceDataStore) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := p.r.Get(ctx, p.namespaced(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	return val, true, nil
}

// PutString stores a string preference without expiry.
func (p *PreferenceDataStore) PutString(ctx context.Context, key string, value string) error {
	if err := p.r.Set(ctx, p.namespaced(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

// GetJSON reads a JSON-encoded preference into out; the bool reports presence.
func (p *PreferenceDataStore) GetJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := p.r.Get(ctx, p.namespaced(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode preference %q: %w", key, err)
	}
	return true, nil
}

// PutJSON stores a JSON-encoded preference without expiry.
func (p *PreferenceDataStore) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %q: %w", key, err)
	}
	if err := p.r.Set(ctx, p.namespaced(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

// Delete removes a preference.
func (p *PreferenceDataStore) Delete(ctx context.Context, key string) error {
	if err := p.r.Del(ctx, p.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete preference %q: %w", key, err)
	}
	return nil
}
