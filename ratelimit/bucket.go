package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
)

// TokenBucket grants at most Capacity tokens at once and adds RefillQuantity
// tokens at every full RefillPeriod. Waiters are served strictly in arrival
// order.
type TokenBucket struct {
	key            string
	capacity       int
	refillQuantity int
	refillPeriod   time.Duration
	now            func() time.Time

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	waiters    []*waiter
	timer      *time.Timer
	closed     bool
}

type waiter struct {
	ready   chan struct{}
	granted bool
	err     error
}

type Option func(*TokenBucket)

// WithClock replaces the clock used for refill accounting.
func WithClock(now func() time.Time) Option {
	return func(b *TokenBucket) {
		if now != nil {
			b.now = now
		}
	}
}

func NewTokenBucket(key string, cfg core.RateLimitConfig, opts ...Option) (*TokenBucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryBadInput, "ratelimit: invalid bucket config", core.ErrorBadInput, map[string]any{
			"bucket": key,
		})
	}
	b := &TokenBucket{
		key:            NormalizeKey(key),
		capacity:       cfg.Capacity,
		refillQuantity: cfg.RefillQuantity,
		refillPeriod:   cfg.RefillPeriod,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	b.tokens = b.capacity
	b.lastRefill = b.now()
	return b, nil
}

func (b *TokenBucket) Key() string {
	return b.key
}

func (b *TokenBucket) Capacity() int {
	return b.capacity
}

// Acquire takes one token, parking the caller behind earlier waiters until a
// refill grants it one. It returns early only when ctx ends or the bucket is
// closed.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return b.closedError()
	}
	b.refillLocked(b.now())
	if len(b.waiters) == 0 && b.tokens > 0 {
		b.tokens--
		b.mu.Unlock()
		return nil
	}
	w := &waiter{ready: make(chan struct{})}
	b.waiters = append(b.waiters, w)
	b.armLocked()
	b.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if w.granted {
		// lost the race with a refill tick; hand the token to the next waiter
		b.tokens = min(b.capacity, b.tokens+1)
		b.grantLocked()
	} else {
		b.removeLocked(w)
	}
	return core.WrapError(ctx.Err(), goerrors.CategoryOperation, "ratelimit: acquire canceled", core.ErrorTimeout, map[string]any{
		"bucket": b.key,
	})
}

// TryAcquire takes a token only if one is available right now and nobody is
// queued ahead.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.refillLocked(b.now())
	if len(b.waiters) > 0 || b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (b *TokenBucket) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.refillLocked(now)
	return State{
		Key:            b.key,
		Capacity:       b.capacity,
		Tokens:         b.tokens,
		RefillQuantity: b.refillQuantity,
		RefillPeriod:   b.refillPeriod,
		LastRefill:     b.lastRefill,
		UpdatedAt:      now,
	}
}

// Restore resumes accounting from a checkpoint. The configured capacity and
// refill settings stay authoritative.
func (b *TokenBucket) Restore(state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.tokens = max(0, min(b.capacity, state.Tokens))
	b.lastRefill = state.LastRefill
	if b.lastRefill.IsZero() || b.lastRefill.After(now) {
		b.lastRefill = now
	}
	b.refillLocked(now)
	b.grantLocked()
	b.armLocked()
}

// Close releases every parked waiter with an error and stops the refill timer.
func (b *TokenBucket) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	for _, w := range b.waiters {
		w.err = b.closedError()
		close(w.ready)
	}
	b.waiters = nil
}

func (b *TokenBucket) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

func (b *TokenBucket) refillLocked(now time.Time) {
	if !now.After(b.lastRefill) {
		return
	}
	periods := int64(now.Sub(b.lastRefill) / b.refillPeriod)
	if periods <= 0 {
		return
	}
	missing := int64(b.capacity - b.tokens)
	added := periods * int64(b.refillQuantity)
	if added > missing {
		added = missing
	}
	b.tokens += int(added)
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * b.refillPeriod)
}

func (b *TokenBucket) grantLocked() {
	for len(b.waiters) > 0 && b.tokens > 0 {
		w := b.waiters[0]
		b.waiters[0] = nil
		b.waiters = b.waiters[1:]
		b.tokens--
		w.granted = true
		close(w.ready)
	}
}

func (b *TokenBucket) removeLocked(target *waiter) {
	for i, w := range b.waiters {
		if w == target {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return
		}
	}
}

func (b *TokenBucket) armLocked() {
	if b.closed || b.timer != nil || len(b.waiters) == 0 {
		return
	}
	delay := b.lastRefill.Add(b.refillPeriod).Sub(b.now())
	if delay < 0 {
		delay = 0
	}
	b.timer = time.AfterFunc(delay, b.tick)
}

func (b *TokenBucket) tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if b.closed {
		return
	}
	b.refillLocked(b.now())
	b.grantLocked()
	b.armLocked()
}

func (b *TokenBucket) closedError() error {
	return core.NewError("ratelimit: bucket closed", goerrors.CategoryOperation, core.ErrorQueueClosed, map[string]any{
		"bucket": b.key,
	})
}
