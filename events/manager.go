package events

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type subscription struct {
	id         string
	kind       string
	subscriber Subscriber
}

// Manager routes published events to subscribers through its default handler.
type Manager struct {
	id string

	mu            sync.RWMutex
	handler       Handler
	subscriptions []subscription
}

type Option func(*Manager)

func WithDefaultHandler(handler Handler) Option {
	return func(m *Manager) {
		m.handler = handler
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{id: uuid.NewString()}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) DefaultHandler() (Handler, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handler, m.handler != nil
}

func (m *Manager) SetDefaultHandler(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Subscribe registers fn for kind, or for every kind with KindAll. The
// returned func removes the subscription.
func (m *Manager) Subscribe(kind string, fn Subscriber) func() {
	if fn == nil {
		return func() {}
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = KindAll
	}
	sub := subscription{id: uuid.NewString(), kind: kind, subscriber: fn}
	m.mu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, existing := range m.subscriptions {
			if existing.id == sub.id {
				m.subscriptions = append(m.subscriptions[:i], m.subscriptions[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) Publish(ctx context.Context, event Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	handler := m.handler
	subscribers := make([]Subscriber, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.kind == KindAll || sub.kind == event.Kind {
			subscribers = append(subscribers, sub.subscriber)
		}
	}
	m.mu.RUnlock()

	if handler == nil {
		return core.FatalConfigurationError("events: manager has no default handler")
	}
	if len(subscribers) == 0 {
		return nil
	}
	if err := handler.Deliver(ctx, event, subscribers); err != nil {
		return core.WrapError(err, goerrors.CategoryOperation, "events: delivery failed", core.ErrorInternal, map[string]any{
			"event":   event.Kind,
			"handler": string(handler.Kind()),
		})
	}
	return nil
}

func (m *Manager) Close() error {
	handler, ok := m.DefaultHandler()
	if !ok {
		return nil
	}
	return handler.Close()
}
