package events

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-clientkit/core"
	"github.com/google/uuid"
)

// Event kinds published by the client.
const (
	KindClientBuilt      = "client.built"
	KindClientClosed     = "client.closed"
	KindPoolUndersized   = "pool.undersized"
	KindModuleStarted    = "module.started"
	KindModuleStopped    = "module.stopped"
	KindCheckpointFailed = "helper.checkpoint_failed"
	KindAll              = "*"
)

type Event struct {
	ID         string
	Kind       string
	Client     string
	Module     core.ModuleKind
	OccurredAt time.Time
	Payload    map[string]any
}

func NewEvent(kind, client string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       strings.TrimSpace(kind),
		Client:     client,
		OccurredAt: time.Now().UTC(),
		Payload:    clonePayload(payload),
	}
}

// Subscriber receives published events.
type Subscriber func(ctx context.Context, event Event) error

// HandlerKind names a delivery strategy.
type HandlerKind string

const (
	HandlerSimple  HandlerKind = "simple"
	HandlerPooled  HandlerKind = "pooled"
	HandlerCommand HandlerKind = "command"
)

func ParseHandlerKind(raw string) (HandlerKind, bool) {
	switch HandlerKind(strings.ToLower(strings.TrimSpace(raw))) {
	case HandlerSimple, "":
		return HandlerSimple, true
	case HandlerPooled:
		return HandlerPooled, true
	case HandlerCommand:
		return HandlerCommand, true
	default:
		return "", false
	}
}

// Handler delivers one event to the subscribers registered for it.
type Handler interface {
	Kind() HandlerKind
	Deliver(ctx context.Context, event Event, subscribers []Subscriber) error
	Close() error
}

func clonePayload(payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		out[key] = value
	}
	return out
}
