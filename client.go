package clientkit

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/events"
	"github.com/goliatone/go-clientkit/modules"
	"github.com/goliatone/go-clientkit/modules/graphql"
	"github.com/goliatone/go-clientkit/modules/rest"
	"github.com/goliatone/go-clientkit/modules/stream"
	"github.com/goliatone/go-clientkit/pool"
	"github.com/goliatone/go-clientkit/ratelimit"
)

// Client owns the enabled modules and the background helper. It is safe for
// concurrent use.
type Client struct {
	config      core.Config
	logger      core.Logger
	metrics     core.MetricsRecorder
	events      *events.Manager
	ownsEvents  bool
	provisioned pool.Provisioned
	stateStore  ratelimit.StateStore
	modules     map[core.ModuleKind]modules.Handle
	order       []core.ModuleKind
	warnings    []error

	helperCancel context.CancelFunc
	helperDone   chan struct{}
	closeOnce    sync.Once
	closeErr     error
}

func (c *Client) Config() core.Config {
	return c.config.Clone()
}

// Warnings lists non fatal problems found during assembly.
func (c *Client) Warnings() []error {
	return append([]error{}, c.warnings...)
}

func (c *Client) Pool() core.WorkerPool {
	return c.provisioned.Pool
}

// RequiredThreads is the worker count the enabled modules need.
func (c *Client) RequiredThreads() int {
	return c.provisioned.Required
}

func (c *Client) Events() *events.Manager {
	return c.events
}

func (c *Client) EnabledModules() []core.ModuleKind {
	return append([]core.ModuleKind{}, c.order...)
}

func (c *Client) Module(kind core.ModuleKind) (modules.Handle, bool) {
	handle, ok := c.modules[core.NormalizeModuleKind(string(kind))]
	return handle, ok
}

func (c *Client) Helix() *rest.Module      { return restModule(c, core.ModuleHelix) }
func (c *Client) Kraken() *rest.Module     { return restModule(c, core.ModuleKraken) }
func (c *Client) Extensions() *rest.Module { return restModule(c, core.ModuleExtensions) }
func (c *Client) TMI() *rest.Module        { return restModule(c, core.ModuleTMI) }
func (c *Client) Chat() *stream.Module     { return streamModule(c, core.ModuleChat) }
func (c *Client) PubSub() *stream.Module   { return streamModule(c, core.ModulePubSub) }

func (c *Client) GraphQL() *graphql.Module {
	handle, ok := c.Module(core.ModuleGraphQL)
	if !ok {
		return nil
	}
	module, _ := handle.(*graphql.Module)
	return module
}

func restModule(c *Client, kind core.ModuleKind) *rest.Module {
	handle, ok := c.Module(kind)
	if !ok {
		return nil
	}
	module, _ := handle.(*rest.Module)
	return module
}

func streamModule(c *Client, kind core.ModuleKind) *stream.Module {
	handle, ok := c.Module(kind)
	if !ok {
		return nil
	}
	module, _ := handle.(*stream.Module)
	return module
}

// Close stops every module and the helper. A supplied pool or event manager
// is left running.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.helperCancel != nil {
			c.helperCancel()
			<-c.helperDone
		}
		ctx := context.Background()
		c.publish(ctx, events.KindClientClosed, "", nil)
		c.closeErr = c.release()
		c.logger.Debug("client closed", "client", c.config.ClientName)
	})
	return c.closeErr
}

// release stops modules in reverse start order, then the owned pool and
// event manager.
func (c *Client) release() error {
	var errs []error
	for i := len(c.order) - 1; i >= 0; i-- {
		kind := c.order[i]
		if err := c.modules[kind].Close(); err != nil {
			errs = append(errs, err)
		}
		c.publish(context.Background(), events.KindModuleStopped, kind, nil)
	}
	if c.provisioned.Owned() {
		if closer, ok := c.provisioned.Pool.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if c.ownsEvents {
		if err := c.events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) publish(ctx context.Context, kind string, module core.ModuleKind, payload map[string]any) {
	event := events.NewEvent(kind, c.config.ClientName, payload)
	event.Module = module
	if err := c.events.Publish(ctx, event); err != nil {
		c.logger.Warn("client event not delivered", "event", kind, "error", err)
	}
}
