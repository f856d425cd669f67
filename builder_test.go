package clientkit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/events"
	"github.com/goliatone/go-clientkit/modules/rest"
	"github.com/goliatone/go-clientkit/pool"
	"github.com/goliatone/go-clientkit/ratelimit"
	"github.com/goliatone/go-clientkit/transport"
)

func allModules() []string {
	out := []string{}
	for _, kind := range core.AllModules() {
		out = append(out, string(kind))
	}
	return out
}

func TestBuildCreatesPoolSizedForEnabledModules(t *testing.T) {
	client, err := NewBuilder().
		WithConfig(core.Config{EnabledModules: allModules()}).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	want := core.BaseRequirement + len(core.AllModules())
	if client.RequiredThreads() != want || client.Pool().Capacity() != want {
		t.Fatalf("expected pool capacity %d, got required=%d capacity=%d", want, client.RequiredThreads(), client.Pool().Capacity())
	}
	if len(client.Warnings()) != 0 {
		t.Fatalf("expected no warnings, got %v", client.Warnings())
	}
	if client.Helix() == nil || client.Chat() == nil || client.GraphQL() == nil || client.PubSub() == nil {
		t.Fatalf("expected every module to be available")
	}
	if len(client.EnabledModules()) != len(core.AllModules()) {
		t.Fatalf("unexpected enabled modules %v", client.EnabledModules())
	}
}

func TestBuildWarnsOnUndersizedSuppliedPool(t *testing.T) {
	shared, err := pool.New("shared", 2)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer shared.Close()

	manager := events.NewManager(events.WithDefaultHandler(events.NewSimpleHandler()))
	var mu sync.Mutex
	var received []events.Event
	manager.Subscribe(events.KindPoolUndersized, func(_ context.Context, event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	})

	client, err := NewBuilder().
		WithConfig(core.Config{EnabledModules: []string{"helix", "chat"}}).
		WithPool(shared).
		WithEventManager(manager).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	warnings := client.Warnings()
	if len(warnings) != 1 || !core.IsPoolUndersized(warnings[0]) {
		t.Fatalf("expected undersized pool warning, got %v", warnings)
	}
	if client.Pool() != shared || shared.Capacity() != 2 {
		t.Fatalf("expected supplied pool to be kept unchanged")
	}
	mu.Lock()
	if len(received) != 1 || received[0].Payload["required"] != 3 {
		t.Fatalf("expected one undersized event with required=3, got %+v", received)
	}
	mu.Unlock()

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	ran := make(chan struct{})
	if err := shared.Submit(context.Background(), func(context.Context) { close(ran) }); err != nil {
		t.Fatalf("expected supplied pool to stay open after client close: %v", err)
	}
	<-ran
}

func TestBuildReservesWorkerForPooledDelivery(t *testing.T) {
	client, err := NewBuilder().
		WithConfig(core.Config{EnabledModules: []string{"helix", "chat"}}).
		WithEventHandlerKind(events.HandlerPooled).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	if client.RequiredThreads() != 4 || client.Pool().Capacity() != 4 {
		t.Fatalf("expected one extra worker for pooled delivery, got required=%d capacity=%d", client.RequiredThreads(), client.Pool().Capacity())
	}

	started := make(chan struct{})
	release := make(chan struct{})
	client.Events().Subscribe("test.pooled", func(context.Context, events.Event) error {
		close(started)
		<-release
		return nil
	})

	published := make(chan error, 1)
	go func() {
		published <- client.Events().Publish(context.Background(), events.NewEvent("test.pooled", "clientkit", nil))
	}()

	select {
	case err := <-published:
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatalf("publish waited for the subscriber, delivery ran inline")
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber never ran on the pool")
	}
	close(release)
}

func TestBuildFailsWhenEventManagerHasNoDefaultHandler(t *testing.T) {
	client, err := NewBuilder().
		WithConfig(core.Config{EnabledModules: []string{"helix"}}).
		WithEventManager(events.NewManager()).
		Build(context.Background())
	if client != nil {
		t.Fatalf("expected no client")
	}
	if !core.IsFatalConfiguration(err) {
		t.Fatalf("expected fatal configuration error, got %v", err)
	}
}

func TestBuildRejectsInvalidConfiguration(t *testing.T) {
	cases := map[string]core.Config{
		"unknown module":     {EnabledModules: []string{"bogus"}},
		"negative queue":     {RequestQueueSize: -5},
		"negative rate size": {RateLimit: core.RateLimitConfig{Capacity: -1}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			client, err := NewBuilder().WithConfig(cfg).Build(context.Background())
			if client != nil {
				t.Fatalf("expected no client")
			}
			if !core.IsFatalConfiguration(err) {
				t.Fatalf("expected fatal configuration error, got %v", err)
			}
		})
	}
}

func TestBuildReleasesResourcesWhenModuleFails(t *testing.T) {
	client, err := NewBuilder().
		WithConfig(core.Config{EnabledModules: []string{"chat", "helix"}}).
		WithTransportRegistry(transport.NewRegistry()).
		Build(context.Background())
	if client != nil {
		t.Fatalf("expected no client")
	}
	if !core.HasTextCode(err, core.ErrorModuleBuild) {
		t.Fatalf("expected module build error, got %v", err)
	}
	if core.ErrorMetadata(err)["module"] != "helix" {
		t.Fatalf("expected helix to be reported, got %+v", core.ErrorMetadata(err))
	}
}

func TestBuilderWithMethodsDoNotMutateReceiver(t *testing.T) {
	base := NewBuilder()
	derived := base.
		WithConfig(core.Config{ClientName: "derived"}).
		WithEventHandlerKind(events.HandlerPooled).
		WithStateStore(ratelimit.NewMemoryStateStore())

	if base.config.ClientName != "" || base.eventHandlerKind != events.HandlerSimple || base.stateStore != nil {
		t.Fatalf("expected base builder to be unchanged")
	}
	if derived.config.ClientName != "derived" || derived.eventHandlerKind != events.HandlerPooled {
		t.Fatalf("expected derived builder to carry overrides")
	}
}

func TestClientDispatchesAndCheckpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Client-Id") != "cid" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	store := ratelimit.NewMemoryStateStore()
	client, err := NewBuilder().
		WithConfig(core.Config{
			ClientName:     "itest",
			EnabledModules: []string{"helix"},
			Credentials:    core.Credentials{ClientID: "cid"},
			Endpoints:      map[string]string{"helix": server.URL},
			RateLimit:      core.RateLimitConfig{Capacity: 10, RefillQuantity: 10, RefillPeriod: time.Hour},
		}).
		WithHTTPClient(server.Client()).
		WithStateStore(store).
		WithEventHandlerKind(events.HandlerPooled).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	if _, err := client.Helix().Do(context.Background(), rest.Request{Path: "users"}, nil); err != nil {
		t.Fatalf("do: %v", err)
	}

	client.Maintain(context.Background())
	state, err := store.Get(context.Background(), ratelimit.BucketKey("itest", "helix"))
	if err != nil {
		t.Fatalf("expected checkpoint: %v", err)
	}
	if state.Capacity != 10 || state.Tokens != 9 {
		t.Fatalf("unexpected checkpoint %+v", state)
	}
}

func TestDisabledModuleAccessorsReturnNil(t *testing.T) {
	client, err := NewBuilder().Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if client.Helix() != nil || client.Chat() != nil || client.GraphQL() != nil {
		t.Fatalf("expected nil accessors for disabled modules")
	}
	if _, ok := client.Module(core.ModuleKraken); ok {
		t.Fatalf("expected kraken to be disabled")
	}
	first := client.Close()
	if second := client.Close(); first != second {
		t.Fatalf("expected repeated close to return the same result")
	}
}

type blockingStateStore struct {
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	upserted atomic.Bool
}

func (s *blockingStateStore) Get(context.Context, string) (ratelimit.State, error) {
	return ratelimit.State{}, ratelimit.ErrStateNotFound
}

func (s *blockingStateStore) Upsert(context.Context, ratelimit.State) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	s.upserted.Store(true)
	return nil
}

func TestCloseWaitsForRunningHelperCheckpoint(t *testing.T) {
	store := &blockingStateStore{entered: make(chan struct{}), release: make(chan struct{})}
	client, err := NewBuilder().
		WithConfig(core.Config{
			EnabledModules: []string{"helix"},
			HelperDelay:    10 * time.Millisecond,
		}).
		WithStateStore(store).
		Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected helper to checkpoint")
	}

	closed := make(chan struct{})
	go func() {
		_ = client.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatalf("expected close to wait for the running checkpoint")
	case <-time.After(30 * time.Millisecond):
	}

	close(store.release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected close to return after checkpoint finished")
	}
	if !store.upserted.Load() {
		t.Fatalf("expected checkpoint to finish before close returned")
	}
}
