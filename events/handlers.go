package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// SimpleHandler calls every subscriber inline, in registration order.
type SimpleHandler struct{}

func NewSimpleHandler() *SimpleHandler {
	return &SimpleHandler{}
}

func (*SimpleHandler) Kind() HandlerKind { return HandlerSimple }

func (*SimpleHandler) Deliver(ctx context.Context, event Event, subscribers []Subscriber) error {
	return deliverAll(ctx, event, subscribers)
}

func (*SimpleHandler) Close() error { return nil }

const defaultPooledAcceptTimeout = 50 * time.Millisecond

// PooledHandler runs delivery on the shared worker pool. When no worker
// accepts within AcceptTimeout the event is delivered inline instead.
type PooledHandler struct {
	AcceptTimeout time.Duration
	Logger        core.Logger

	mu   sync.RWMutex
	pool core.WorkerPool
}

func NewPooledHandler(pool core.WorkerPool, logger core.Logger) *PooledHandler {
	if logger == nil {
		logger = glog.Nop()
	}
	return &PooledHandler{
		AcceptTimeout: defaultPooledAcceptTimeout,
		Logger:        logger,
		pool:          pool,
	}
}

func (*PooledHandler) Kind() HandlerKind { return HandlerPooled }

// Bind attaches the pool once it has been provisioned.
func (h *PooledHandler) Bind(pool core.WorkerPool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pool = pool
}

func (h *PooledHandler) Deliver(ctx context.Context, event Event, subscribers []Subscriber) error {
	h.mu.RLock()
	pool := h.pool
	h.mu.RUnlock()
	if pool == nil {
		return deliverAll(ctx, event, subscribers)
	}

	timeout := h.AcceptTimeout
	if timeout <= 0 {
		timeout = defaultPooledAcceptTimeout
	}
	acceptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := pool.Submit(acceptCtx, func(runCtx context.Context) {
		if err := deliverAll(context.WithoutCancel(runCtx), event, subscribers); err != nil {
			h.Logger.Warn("pooled event delivery failed", "event", event.Kind, "error", err)
		}
	})
	if err == nil {
		return nil
	}
	h.Logger.Debug("no idle worker for event delivery, delivering inline", "event", event.Kind, "pool", pool.Name())
	return deliverAll(ctx, event, subscribers)
}

func (*PooledHandler) Close() error { return nil }

// DeliveryMessage carries an event over the command dispatcher.
type DeliveryMessage struct {
	HandlerID   string
	Event       Event
	Subscribers []Subscriber
}

const deliveryMessageType = "clientkit.events.deliver"

func (DeliveryMessage) Type() string { return deliveryMessageType }

func (m DeliveryMessage) Validate() error {
	if m.HandlerID == "" {
		return errors.New("events: delivery message requires a handler id")
	}
	return nil
}

// CommandHandler routes delivery through the go-command dispatcher. Messages
// carry the handler id so handlers from other managers ignore them.
type CommandHandler struct {
	id           string
	subscription commanddispatcher.Subscription
	closeOnce    sync.Once
}

func NewCommandHandler() *CommandHandler {
	h := &CommandHandler{id: uuid.NewString()}
	h.subscription = commanddispatcher.SubscribeCommand(command.CommandFunc[DeliveryMessage](h.execute))
	return h
}

func (*CommandHandler) Kind() HandlerKind { return HandlerCommand }

func (h *CommandHandler) Deliver(ctx context.Context, event Event, subscribers []Subscriber) error {
	return commanddispatcher.Dispatch(ctx, DeliveryMessage{
		HandlerID:   h.id,
		Event:       event,
		Subscribers: subscribers,
	})
}

func (h *CommandHandler) execute(ctx context.Context, msg DeliveryMessage) error {
	if msg.HandlerID != h.id {
		return nil
	}
	return deliverAll(ctx, msg.Event, msg.Subscribers)
}

func (h *CommandHandler) Close() error {
	h.closeOnce.Do(func() {
		if h.subscription != nil {
			h.subscription.Unsubscribe()
		}
	})
	return nil
}

// HandlerRequirement is the number of pool workers a delivery strategy keeps
// for itself. Module consumers and the helper hold their workers for the life
// of the client, so pooled delivery needs its own.
func HandlerRequirement(kind HandlerKind) int {
	if kind == HandlerPooled {
		return 1
	}
	return 0
}

// NewHandler builds the default handler for kind.
func NewHandler(kind HandlerKind, pool core.WorkerPool, logger core.Logger) (Handler, error) {
	switch kind {
	case HandlerSimple, "":
		return NewSimpleHandler(), nil
	case HandlerPooled:
		return NewPooledHandler(pool, logger), nil
	case HandlerCommand:
		return NewCommandHandler(), nil
	default:
		return nil, core.FatalConfigurationError("events: unknown handler kind " + string(kind))
	}
}

func deliverAll(ctx context.Context, event Event, subscribers []Subscriber) error {
	var errs []error
	for _, subscriber := range subscribers {
		if subscriber == nil {
			continue
		}
		if err := subscriber(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Handler = (*SimpleHandler)(nil)
	_ Handler = (*PooledHandler)(nil)
	_ Handler = (*CommandHandler)(nil)
)
