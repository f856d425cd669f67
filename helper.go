package clientkit

import (
	"context"
	"time"

	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/events"
)

// startHelper schedules periodic maintenance on the shared pool. When the pool
// has no idle worker the helper waits for one without blocking the caller.
// helperDone closes once the maintenance loop has returned, or when it was
// never accepted by the pool.
func (c *Client) startHelper() {
	ctx, cancel := context.WithCancel(context.Background())
	c.helperCancel = cancel
	c.helperDone = make(chan struct{})
	go func() {
		err := c.provisioned.Pool.Submit(ctx, func(runCtx context.Context) {
			defer close(c.helperDone)
			c.maintainEvery(runCtx, c.config.HelperDelay)
		})
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("client helper not scheduled", "client", c.config.ClientName, "error", err)
			}
			close(c.helperDone)
		}
	}()
}

func (c *Client) maintainEvery(ctx context.Context, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.Maintain(ctx)
			timer.Reset(delay)
		}
	}
}

// Maintain checkpoints the rate limit state of every module and reports its
// queue depth. Failures are logged and published, never returned.
func (c *Client) Maintain(ctx context.Context) {
	for _, kind := range c.order {
		dispatcher := c.modules[kind].Dispatcher()
		tags := core.ModuleTags(kind)
		c.logger.Debug("client helper tick", "module", string(kind), "queue_depth", dispatcher.QueueLen())

		if err := dispatcher.Checkpoint(ctx, c.stateStore); err != nil {
			tags[core.MetricTagCheckpointFail] = "true"
			c.metrics.IncCounter(ctx, core.MetricHelperCheckpoint, 1, tags)
			c.logger.Warn("rate limit checkpoint failed", "module", string(kind), "error", err)
			c.publish(ctx, events.KindCheckpointFailed, kind, map[string]any{"error": err.Error()})
			continue
		}
		c.metrics.IncCounter(ctx, core.MetricHelperCheckpoint, 1, tags)
	}
}
