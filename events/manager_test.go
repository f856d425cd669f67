package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-clientkit/core"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) subscriber(ctx context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestManager_PublishWithoutDefaultHandlerIsFatal(t *testing.T) {
	manager := NewManager()
	manager.Subscribe(KindAll, func(context.Context, Event) error { return nil })
	if _, ok := manager.DefaultHandler(); ok {
		t.Fatalf("expected no default handler")
	}
	err := manager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil))
	if !core.IsFatalConfiguration(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
}

func TestManager_RoutesByKind(t *testing.T) {
	manager := NewManager(WithDefaultHandler(NewSimpleHandler()))
	all := &recorder{}
	pool := &recorder{}
	manager.Subscribe(KindAll, all.subscriber)
	unsubscribe := manager.Subscribe(KindPoolUndersized, pool.subscriber)

	if err := manager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := manager.Publish(context.Background(), NewEvent(KindPoolUndersized, "bot", map[string]any{"required": 3})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if all.count() != 2 || pool.count() != 1 {
		t.Fatalf("expected 2 and 1 events, got %d and %d", all.count(), pool.count())
	}
	if pool.events[0].Payload["required"] != 3 {
		t.Fatalf("expected payload to be delivered")
	}

	unsubscribe()
	_ = manager.Publish(context.Background(), NewEvent(KindPoolUndersized, "bot", nil))
	if pool.count() != 1 {
		t.Fatalf("expected unsubscribed handler to stop receiving events")
	}
}

func TestManager_PublishJoinsSubscriberErrors(t *testing.T) {
	manager := NewManager(WithDefaultHandler(NewSimpleHandler()))
	sentinel := errors.New("subscriber failed")
	called := 0
	manager.Subscribe(KindAll, func(context.Context, Event) error { return sentinel })
	manager.Subscribe(KindAll, func(context.Context, Event) error { called++; return nil })

	err := manager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil))
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected subscriber error, got %v", err)
	}
	if called != 1 {
		t.Fatalf("expected later subscribers to still run")
	}
}

func TestNewEvent_CopiesPayload(t *testing.T) {
	payload := map[string]any{"k": "v"}
	event := NewEvent(KindClientBuilt, "bot", payload)
	payload["k"] = "changed"
	if event.Payload["k"] != "v" || event.ID == "" || event.OccurredAt.IsZero() {
		t.Fatalf("unexpected event %#v", event)
	}
}

func TestParseHandlerKind(t *testing.T) {
	cases := map[string]HandlerKind{"": HandlerSimple, "Simple": HandlerSimple, "pooled": HandlerPooled, " command ": HandlerCommand}
	for raw, want := range cases {
		got, ok := ParseHandlerKind(raw)
		if !ok || got != want {
			t.Fatalf("%q: expected %s, got %s", raw, want, got)
		}
	}
	if _, ok := ParseHandlerKind("reactor"); ok {
		t.Fatalf("expected unknown kind")
	}
	if _, err := NewHandler("reactor", nil, nil); !core.IsFatalConfiguration(err) {
		t.Fatalf("expected fatal error for unknown handler kind, got %v", err)
	}
}

type inlinePool struct {
	submitted int
	reject    bool
}

func (p *inlinePool) Name() string  { return "inline" }
func (p *inlinePool) Capacity() int { return 1 }
func (p *inlinePool) Submit(ctx context.Context, task core.Task) error {
	if p.reject {
		<-ctx.Done()
		return ctx.Err()
	}
	p.submitted++
	task(ctx)
	return nil
}
func (p *inlinePool) Every(context.Context, time.Duration, core.Task) error { return nil }

func TestPooledHandler_SubmitsToPool(t *testing.T) {
	pool := &inlinePool{}
	handler := NewPooledHandler(nil, nil)
	manager := NewManager(WithDefaultHandler(handler))
	rec := &recorder{}
	manager.Subscribe(KindAll, rec.subscriber)

	if err := manager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil)); err != nil {
		t.Fatalf("publish before bind: %v", err)
	}
	handler.Bind(pool)
	if err := manager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil)); err != nil {
		t.Fatalf("publish after bind: %v", err)
	}
	if pool.submitted != 1 || rec.count() != 2 {
		t.Fatalf("expected one pooled and one inline delivery, got submitted=%d delivered=%d", pool.submitted, rec.count())
	}
}

func TestPooledHandler_FallsBackInlineWhenPoolIsBusy(t *testing.T) {
	handler := NewPooledHandler(&inlinePool{reject: true}, nil)
	handler.AcceptTimeout = 5 * time.Millisecond
	manager := NewManager(WithDefaultHandler(handler))
	rec := &recorder{}
	manager.Subscribe(KindAll, rec.subscriber)

	if err := manager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected inline delivery, got %d", rec.count())
	}
}

func TestCommandHandler_DeliversThroughDispatcher(t *testing.T) {
	first := NewCommandHandler()
	defer first.Close()
	second := NewCommandHandler()
	defer second.Close()

	firstManager := NewManager(WithDefaultHandler(first))
	secondManager := NewManager(WithDefaultHandler(second))
	firstRec := &recorder{}
	secondRec := &recorder{}
	firstManager.Subscribe(KindAll, firstRec.subscriber)
	secondManager.Subscribe(KindAll, secondRec.subscriber)

	if err := firstManager.Publish(context.Background(), NewEvent(KindClientBuilt, "bot", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for firstRec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if firstRec.count() != 1 {
		t.Fatalf("expected one delivery, got %d", firstRec.count())
	}
	if secondRec.count() != 0 {
		t.Fatalf("expected other managers to ignore the message, got %d", secondRec.count())
	}
}

func TestHandlerRequirement(t *testing.T) {
	if HandlerRequirement(HandlerPooled) != 1 {
		t.Fatalf("pooled delivery needs its own worker")
	}
	if HandlerRequirement(HandlerSimple) != 0 || HandlerRequirement(HandlerCommand) != 0 {
		t.Fatalf("inline strategies need no worker")
	}
}
