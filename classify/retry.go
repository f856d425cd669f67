package classify

import (
	"context"

	retry "github.com/avast/retry-go/v5"
	"github.com/goliatone/go-clientkit/core"
)

// Call issues one request and classifies its response. A non-nil error means
// the request never produced a response.
type Call func(ctx context.Context) (Result, error)

type retryConfig struct {
	metrics core.MetricsRecorder
	tags    map[string]string
}

type RetryOption func(*retryConfig)

func WithRetryMetrics(recorder core.MetricsRecorder, tags map[string]string) RetryOption {
	return func(cfg *retryConfig) {
		if recorder != nil {
			cfg.metrics = recorder
		}
		cfg.tags = core.CloneTags(tags)
	}
}

// RetryOnce runs call and repeats it exactly once, without delay, when the
// first outcome is RetryableUnavailable. A second unavailable result is
// returned as is.
func RetryOnce(ctx context.Context, call Call, opts ...RetryOption) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := retryConfig{metrics: core.NopMetricsRecorder{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	var last Result
	var callErr error
	attempt := 0
	_, err := retry.NewWithData[Result](
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return core.IsServiceUnavailable(err)
		}),
	).Do(func() (Result, error) {
		if attempt > 0 {
			cfg.metrics.IncCounter(ctx, core.MetricDispatchRetry, 1, cfg.tags)
		}
		attempt++
		res, err := call(ctx)
		if err != nil {
			callErr = err
			return Result{}, err
		}
		callErr = nil
		last = res
		if res.Outcome == OutcomeRetryableUnavailable {
			return res, res.Err()
		}
		return res, nil
	})
	if callErr != nil {
		return Result{}, callErr
	}
	if last.Outcome != "" {
		return last, nil
	}
	return Result{}, err
}
