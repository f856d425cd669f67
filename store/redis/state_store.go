// Package redisstore keeps rate limit checkpoints in Redis hashes so several
// processes sharing a client identity resume from the same bucket state.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-clientkit/ratelimit"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "clientkit:ratelimit:"

const (
	fieldCapacity       = "capacity"
	fieldTokens         = "tokens"
	fieldRefillQuantity = "refill_quantity"
	fieldRefillPeriod   = "refill_period_ns"
	fieldLastRefill     = "last_refill"
	fieldUpdatedAt      = "updated_at"
	fieldMetadata       = "metadata"
)

type StateStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

type Option func(*StateStore)

// WithKeyPrefix namespaces every hash key.
func WithKeyPrefix(prefix string) Option {
	return func(s *StateStore) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires checkpoints that are not refreshed in time. Zero keeps
// them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *StateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewStateStore(client redis.Cmdable, opts ...Option) (*StateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &StateStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *StateStore) Get(ctx context.Context, key string) (ratelimit.State, error) {
	key = ratelimit.NormalizeKey(key)
	if key == "" {
		return ratelimit.State{}, fmt.Errorf("redisstore: bucket key is required")
	}
	values, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return ratelimit.State{}, fmt.Errorf("redisstore: read checkpoint: %w", err)
	}
	if len(values) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return decodeState(key, values)
}

func (s *StateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	state.Key = ratelimit.NormalizeKey(state.Key)
	if state.Key == "" {
		return fmt.Errorf("redisstore: bucket key is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(state.Metadata)
	if err != nil {
		return fmt.Errorf("redisstore: encode metadata: %w", err)
	}

	redisKey := s.redisKey(state.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisKey,
			fieldCapacity, state.Capacity,
			fieldTokens, state.Tokens,
			fieldRefillQuantity, state.RefillQuantity,
			fieldRefillPeriod, int64(state.RefillPeriod),
			fieldLastRefill, state.LastRefill.UTC().Format(time.RFC3339Nano),
			fieldUpdatedAt, state.UpdatedAt.UTC().Format(time.RFC3339Nano),
			fieldMetadata, string(metadata),
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, redisKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: write checkpoint: %w", err)
	}
	return nil
}

func (s *StateStore) redisKey(key string) string {
	return s.prefix + key
}

func decodeState(key string, values map[string]string) (ratelimit.State, error) {
	state := ratelimit.State{Key: key, Metadata: map[string]any{}}
	var err error
	if state.Capacity, err = intField(values, fieldCapacity); err != nil {
		return ratelimit.State{}, err
	}
	if state.Tokens, err = intField(values, fieldTokens); err != nil {
		return ratelimit.State{}, err
	}
	if state.RefillQuantity, err = intField(values, fieldRefillQuantity); err != nil {
		return ratelimit.State{}, err
	}
	period, err := strconv.ParseInt(values[fieldRefillPeriod], 10, 64)
	if err != nil {
		return ratelimit.State{}, fmt.Errorf("redisstore: decode %s: %w", fieldRefillPeriod, err)
	}
	state.RefillPeriod = time.Duration(period)
	if state.LastRefill, err = timeField(values, fieldLastRefill); err != nil {
		return ratelimit.State{}, err
	}
	if state.UpdatedAt, err = timeField(values, fieldUpdatedAt); err != nil {
		return ratelimit.State{}, err
	}
	if raw := values[fieldMetadata]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &state.Metadata); err != nil {
			return ratelimit.State{}, fmt.Errorf("redisstore: decode metadata: %w", err)
		}
	}
	return state, nil
}

func intField(values map[string]string, field string) (int, error) {
	parsed, err := strconv.Atoi(values[field])
	if err != nil {
		return 0, fmt.Errorf("redisstore: decode %s: %w", field, err)
	}
	return parsed, nil
}

func timeField(values map[string]string, field string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, values[field])
	if err != nil {
		return time.Time{}, fmt.Errorf("redisstore: decode %s: %w", field, err)
	}
	return parsed.UTC(), nil
}

var _ ratelimit.StateStore = (*StateStore)(nil)
