package modules

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-clientkit/classify"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/queue"
	"github.com/goliatone/go-clientkit/ratelimit"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Dependencies are the collaborators a module receives from the client.
type Dependencies struct {
	Module     core.ModuleKind
	Config     core.Config
	Pool       core.WorkerPool
	Classifier *classify.Classifier
	Metrics    core.MetricsRecorder
	Logger     core.Logger
	StateStore ratelimit.StateStore
}

// Dispatcher serializes the calls of one module through its queue and bucket.
type Dispatcher struct {
	module     core.ModuleKind
	queue      *queue.Queue
	bucket     *ratelimit.TokenBucket
	classifier *classify.Classifier
	metrics    core.MetricsRecorder
	logger     core.Logger
	timeout    time.Duration
	drain      time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// NewDispatcher builds the queue and bucket of a module and restores the
// bucket from the state store when a checkpoint exists. The consumer starts
// with Start.
func NewDispatcher(ctx context.Context, deps Dependencies) (*Dispatcher, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	module := core.NormalizeModuleKind(string(deps.Module))
	if !core.IsKnownModule(module) {
		return nil, core.NewError("modules: unknown module", goerrors.CategoryBadInput, core.ErrorModuleBuild, map[string]any{
			"module": string(deps.Module),
		})
	}
	if deps.Pool == nil {
		return nil, core.NewError("modules: worker pool is required", goerrors.CategoryInternal, core.ErrorModuleBuild, map[string]any{
			"module": string(module),
		})
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = core.NopMetricsRecorder{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	classifier := deps.Classifier
	if classifier == nil {
		classifier = classify.New()
	}

	capacity, drain := deps.Config.QueueSettings(module)
	requests, err := queue.New(module, capacity, queue.WithMetricsRecorder(metrics))
	if err != nil {
		return nil, err
	}
	bucket, err := ratelimit.NewTokenBucket(
		ratelimit.BucketKey(deps.Config.ClientName, string(module)),
		deps.Config.RateLimitFor(module),
	)
	if err != nil {
		return nil, err
	}
	if deps.StateStore != nil {
		state, err := deps.StateStore.Get(ctx, bucket.Key())
		switch {
		case err == nil:
			bucket.Restore(state)
		case !errors.Is(err, ratelimit.ErrStateNotFound):
			logger.Warn("rate limit checkpoint not restored", "module", string(module), "error", err)
		}
	}

	timeout := deps.Config.Timeout
	if timeout <= 0 {
		timeout = core.DefaultConfig().Timeout
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		module:     module,
		queue:      requests,
		bucket:     bucket,
		classifier: classifier,
		metrics:    metrics,
		logger:     logger,
		timeout:    timeout,
		drain:      drain,
		ctx:        runCtx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}, nil
}

func (d *Dispatcher) Module() core.ModuleKind {
	return d.module
}

func (d *Dispatcher) Classifier() *classify.Classifier {
	return d.classifier
}

// QueueLen reports how many requests wait for the consumer.
func (d *Dispatcher) QueueLen() int {
	return d.queue.Len()
}

// Start hands the queue consumer to pool. When every worker is busy the
// consumer waits for one, and enqueued requests wait with it. stopped closes
// when the consumer returns or was never accepted.
func (d *Dispatcher) Start(pool core.WorkerPool) {
	d.startOnce.Do(func() {
		go func() {
			err := pool.Submit(d.ctx, func(ctx context.Context) {
				defer close(d.stopped)
				_ = d.queue.Run(ctx, d.drain, nil)
			})
			if err != nil {
				if d.ctx.Err() == nil {
					d.logger.Warn("module consumer not started", "module", string(d.module), "error", err)
				}
				close(d.stopped)
			}
		}()
	})
}

// Dispatch enqueues call and waits for its result. The configured timeout
// covers the queue wait, the token wait and the call itself.
func (d *Dispatcher) Dispatch(ctx context.Context, call classify.Call) (classify.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if call == nil {
		return classify.Result{}, core.NewError("modules: call is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"module": string(d.module),
		})
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		result classify.Result
		err    error
	}
	done := make(chan outcome, 1)
	req := queue.NewRequest(callCtx, d.module, func(runCtx context.Context) {
		result, err := d.execute(runCtx, call)
		done <- outcome{result: result, err: err}
	})
	if err := d.queue.Enqueue(req); err != nil {
		return classify.Result{}, err
	}

	select {
	case out := <-done:
		if err := callCtx.Err(); err != nil {
			return classify.Result{}, core.TimeoutError(d.module, err)
		}
		return out.result, out.err
	case <-callCtx.Done():
		d.queue.Remove(req.ID)
		return classify.Result{}, core.TimeoutError(d.module, callCtx.Err())
	case <-d.ctx.Done():
		d.queue.Remove(req.ID)
		return classify.Result{}, d.closedError()
	}
}

func (d *Dispatcher) execute(ctx context.Context, call classify.Call) (classify.Result, error) {
	tags := core.ModuleTags(d.module)
	waitStarted := time.Now()
	if err := d.bucket.Acquire(ctx); err != nil {
		return classify.Result{}, err
	}
	d.metrics.ObserveHistogram(ctx, core.MetricRateLimitWait, float64(time.Since(waitStarted).Milliseconds()), tags)

	result, err := classify.RetryOnce(ctx, call, classify.WithRetryMetrics(d.metrics, tags))

	outcomeTags := core.CloneTags(tags)
	if err != nil {
		outcomeTags[core.MetricTagOutcome] = "transport_error"
	} else {
		outcomeTags[core.MetricTagOutcome] = string(result.Outcome)
	}
	d.metrics.IncCounter(ctx, core.MetricDispatchTotal, 1, outcomeTags)
	return result, err
}

// Checkpoint stores the current bucket state.
func (d *Dispatcher) Checkpoint(ctx context.Context, store ratelimit.StateStore) error {
	if store == nil {
		return nil
	}
	return store.Upsert(ctx, d.bucket.Snapshot())
}

// Snapshot returns the bucket state without storing it.
func (d *Dispatcher) Snapshot() ratelimit.State {
	return d.bucket.Snapshot()
}

// Close stops the consumer and fails every call still waiting.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.queue.Close()
		d.cancel()
		d.bucket.Close()
		d.startOnce.Do(func() { close(d.stopped) })
		<-d.stopped
		d.logger.Debug("module dispatcher closed", "module", string(d.module))
	})
	return nil
}

func (d *Dispatcher) closedError() error {
	return core.NewError("modules: module is closed", goerrors.CategoryOperation, core.ErrorQueueClosed, map[string]any{
		"module": string(d.module),
	})
}

// RequestHeaders returns the identity headers forwarded with every call.
// An explicit authToken wins over the configured default token.
func RequestHeaders(credentials core.Credentials, authToken string) map[string]string {
	headers := map[string]string{}
	if value := strings.TrimSpace(credentials.ClientID); value != "" {
		headers["Client-Id"] = value
	}
	if value := strings.TrimSpace(credentials.UserAgent); value != "" {
		headers["User-Agent"] = value
	}
	token := strings.TrimSpace(authToken)
	if token == "" {
		token = strings.TrimSpace(credentials.DefaultAuthToken)
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + strings.TrimPrefix(token, "Bearer ")
	}
	return headers
}
