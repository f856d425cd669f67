package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/errgroup"
)

type job struct {
	ctx  context.Context
	task core.Task
}

// Pool is a fixed set of workers fed from a single unbuffered channel.
// A task keeps its worker until it returns, so long-running tasks must watch
// their context.
type Pool struct {
	name     string
	capacity int
	logger   core.Logger

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
}

type Option func(*Pool)

func WithLogger(logger core.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(name string, capacity int, opts ...Option) (*Pool, error) {
	if capacity < 1 {
		return nil, core.NewError("pool: capacity must be at least 1", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"pool":     name,
			"capacity": capacity,
		})
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	p := &Pool{
		name:     strings.TrimSpace(name),
		capacity: capacity,
		logger:   glog.Nop(),
		jobs:     make(chan job),
		ctx:      groupCtx,
		cancel:   cancel,
		group:    group,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	for i := 0; i < capacity; i++ {
		group.Go(p.work)
	}
	return p, nil
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) Capacity() int {
	return p.capacity
}

// Submit hands task to an idle worker, blocking until one accepts it, ctx
// ends or the pool closes. The task runs with a context derived from ctx that
// is also canceled when the pool closes.
func (p *Pool) Submit(ctx context.Context, task core.Task) error {
	if task == nil {
		return core.NewError("pool: task is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"pool": p.name,
		})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if p.ctx.Err() != nil {
		return p.closedError()
	}
	select {
	case p.jobs <- job{ctx: ctx, task: task}:
		return nil
	case <-ctx.Done():
		return core.WrapError(ctx.Err(), goerrors.CategoryOperation, "pool: no worker accepted the task", core.ErrorTimeout, map[string]any{
			"pool": p.name,
		})
	case <-p.ctx.Done():
		return p.closedError()
	}
}

// Every occupies one worker and runs task repeatedly, waiting delay between
// the end of one run and the start of the next.
func (p *Pool) Every(ctx context.Context, delay time.Duration, task core.Task) error {
	if delay <= 0 {
		return core.NewError("pool: delay must be positive", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"pool": p.name,
		})
	}
	if task == nil {
		return core.NewError("pool: task is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"pool": p.name,
		})
	}
	return p.Submit(ctx, func(runCtx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-timer.C:
				task(runCtx)
				timer.Reset(delay)
			}
		}
	})
}

// Close stops every worker and waits for running tasks to return.
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.group.Wait()
		p.logger.Debug("worker pool closed", "pool", p.name)
	})
	return err
}

func (p *Pool) work() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case j := <-p.jobs:
			p.run(j)
		}
	}
}

func (p *Pool) run(j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	defer func() {
		stop()
		cancel()
		if recovered := recover(); recovered != nil {
			p.logger.Error("worker task panicked", "pool", p.name, "panic", fmt.Sprint(recovered))
		}
	}()
	j.task(ctx)
}

func (p *Pool) closedError() error {
	return core.NewError("pool: worker pool is closed", goerrors.CategoryOperation, core.ErrorQueueClosed, map[string]any{
		"pool": p.name,
	})
}

var _ core.WorkerPool = (*Pool)(nil)
