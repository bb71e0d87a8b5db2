package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/identity-verification/internal/core/port"
	"github.com/arklim/identity-verification/internal/repository"
)

// incrementScript bumps a counter that is below ARGV[2] and sets its expiry only
// on the first hit, so the window is never extended by later requests and the
// stored count never passes the limit.
var incrementScript = red.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[2]) then
	return {current, 0}
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, 1}
`)

// KeyValueStore implements port.KeyValueStore on plain Redis strings.
type KeyValueStore struct {
	client red.UniversalClient
}

// NewKeyValueStore constructs a store over the given client.
func NewKeyValueStore(client red.UniversalClient) *KeyValueStore {
	return &KeyValueStore{client: client}
}

func (s *KeyValueStore) Get(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("key is required")
	}

	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, red.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", err)
	}
	return value, nil
}

func (s *KeyValueStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("key is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *KeyValueStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// Increment atomically increments key while it is below limit and applies ttl
// when the key is new.
func (s *KeyValueStore) Increment(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if strings.TrimSpace(key) == "" {
		return 0, false, errors.New("key is required")
	}
	if limit <= 0 {
		return 0, false, errors.New("limit must be positive")
	}
	if ttl <= 0 {
		return 0, false, errors.New("ttl must be positive")
	}

	reply, err := incrementScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return 0, false, unavailable("incr", err)
	}
	if len(reply) != 2 {
		return 0, false, fmt.Errorf("incr: unexpected script reply %v", reply)
	}
	return reply[0], reply[1] == 1, nil
}

// RemainingTTL reports the time left before key expires; missing keys report zero.
func (s *KeyValueStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl", err)
	}
	// -2 (missing) and -1 (no expiry) come back as negative durations.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", repository.ErrUnavailable, op, err)
}

var _ port.KeyValueStore = (*KeyValueStore)(nil)
