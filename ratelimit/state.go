package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the checkpointable accounting of one token bucket.
type State struct {
	Key            string
	Capacity       int
	Tokens         int
	RefillQuantity int
	RefillPeriod   time.Duration
	LastRefill     time.Time
	UpdatedAt      time.Time
	Metadata       map[string]any
}

type StateStore interface {
	Get(ctx context.Context, key string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[NormalizeKey(key)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMap(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = NormalizeKey(state.Key)
	if state.Key == "" {
		return fmt.Errorf("ratelimit: state key is required")
	}
	state.Metadata = cloneMap(state.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = map[string]State{}
	}
	s.items[state.Key] = state
	return nil
}

// NormalizeKey lower-cases and trims a bucket key.
func NormalizeKey(key string) string {
	return strings.TrimSpace(strings.ToLower(key))
}

// BucketKey builds the store key of a module bucket for one client.
func BucketKey(clientName, module string) string {
	return NormalizeKey(strings.TrimSpace(clientName) + ":" + strings.TrimSpace(module))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ StateStore = (*MemoryStateStore)(nil)
