package queue

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Unbounded disables the capacity check.
const Unbounded = core.UnboundedQueue

// Request is one outbound call waiting for its turn.
type Request struct {
	ID         string
	Module     core.ModuleKind
	EnqueuedAt time.Time
	Ctx        context.Context
	Work       func(ctx context.Context)
}

func NewRequest(ctx context.Context, module core.ModuleKind, work func(ctx context.Context)) Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return Request{
		ID:     uuid.NewString(),
		Module: module,
		Ctx:    ctx,
		Work:   work,
	}
}

// Handler executes a dequeued request.
type Handler func(ctx context.Context, req Request)

// Queue is a FIFO buffer with many producers and a single consumer.
type Queue struct {
	module   core.ModuleKind
	capacity int
	metrics  core.MetricsRecorder
	now      func() time.Time

	mu     sync.Mutex
	items  []Request
	closed bool
	signal chan struct{}
	done   chan struct{}
}

type Option func(*Queue)

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(q *Queue) {
		if recorder != nil {
			q.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

func New(module core.ModuleKind, capacity int, opts ...Option) (*Queue, error) {
	if capacity == 0 || capacity < Unbounded {
		return nil, core.NewError("queue: capacity must be positive or unbounded", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"module":   string(module),
			"capacity": capacity,
		})
	}
	q := &Queue{
		module:   module,
		capacity: capacity,
		metrics:  core.NopMetricsRecorder{},
		now:      time.Now,
		items:    []Request{},
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

func (q *Queue) Module() core.ModuleKind {
	return q.module
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// Enqueue buffers req or fails immediately when the queue is full.
func (q *Queue) Enqueue(req Request) error {
	if req.Work == nil {
		return core.NewError("queue: request work is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"module": string(q.module),
		})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Ctx == nil {
		req.Ctx = context.Background()
	}
	if req.Module == "" {
		req.Module = q.module
	}
	req.EnqueuedAt = q.now()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return core.NewError("queue: request queue is closed", goerrors.CategoryOperation, core.ErrorQueueClosed, map[string]any{
			"module": string(q.module),
		})
	}
	if q.capacity != Unbounded && len(q.items) >= q.capacity {
		q.mu.Unlock()
		q.metrics.IncCounter(req.Ctx, core.MetricQueueRejected, 1, core.ModuleTags(q.module))
		return core.QueueFullError(q.module, q.capacity)
	}
	q.items = append(q.items, req)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Next pops the oldest request, waiting up to drainTimeout for one to
// arrive. ok is false when the wait ends empty-handed.
func (q *Queue) Next(ctx context.Context, drainTimeout time.Duration) (Request, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	var timeout <-chan time.Time
	if drainTimeout > 0 {
		timer := time.NewTimer(drainTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	for {
		if req, ok := q.pop(); ok {
			return req, true
		}
		if q.isClosed() {
			return Request{}, false
		}
		select {
		case <-q.signal:
		case <-q.done:
		case <-ctx.Done():
			return Request{}, false
		case <-timeout:
			return q.pop()
		}
	}
}

// Remove releases the slot of a request that has not been consumed yet.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Run consumes the queue until ctx ends or the queue is closed and drained.
// Requests whose caller already gave up are skipped.
func (q *Queue) Run(ctx context.Context, drainTimeout time.Duration, handler Handler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if handler == nil {
		handler = runWork
	}
	for {
		req, ok := q.Next(ctx, drainTimeout)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			if q.isClosed() && q.Len() == 0 {
				return nil
			}
			continue
		}
		if req.Ctx.Err() != nil {
			continue
		}
		handler(req.Ctx, req)
	}
}

// Close rejects further requests. Buffered requests are still handed out.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) pop() (Request, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Request{}, false
	}
	req := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	q.mu.Unlock()

	waited := q.now().Sub(req.EnqueuedAt)
	q.metrics.ObserveHistogram(req.Ctx, core.MetricQueueWait, float64(waited.Milliseconds()), core.ModuleTags(q.module))
	return req, true
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func runWork(ctx context.Context, req Request) {
	req.Work(ctx)
}
