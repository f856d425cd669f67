package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-clientkit/classify"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/modules"
	"github.com/goliatone/go-clientkit/pool"
	"github.com/goliatone/go-clientkit/transport"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestModule(t *testing.T, server *httptest.Server) *Module {
	t.Helper()
	p, err := pool.New("rest-test", 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	cfg := core.DefaultConfig()
	cfg.Credentials.ClientID = "cid"
	cfg.Credentials.DefaultAuthToken = "token"
	cfg.Endpoints[string(core.ModuleHelix)] = server.URL + "/helix"

	m, err := New(context.Background(), modules.Dependencies{
		Module: core.ModuleHelix,
		Config: cfg,
		Pool:   p,
	}, transport.NewRESTAdapter(server.Client()))
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	t.Cleanup(func() {
		_ = m.Close()
		_ = p.Close()
	})
	return m
}

func TestDoDecodesSuccessfulResponse(t *testing.T) {
	var path, clientID, auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		clientID = r.Header.Get("Client-Id")
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":[{"id":"42"}]}`))
	}))
	defer server.Close()
	m := newTestModule(t, server)

	var users struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	result, err := m.Do(context.Background(), Request{Path: "users"}, &users)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if result.Outcome != classify.OutcomeDecoded || len(users.Data) != 1 || users.Data[0].ID != "42" {
		t.Fatalf("unexpected result %+v %+v", result, users)
	}
	if path != "/helix/users" || clientID != "cid" || auth != "Bearer token" {
		t.Fatalf("unexpected request %q %q %q", path, clientID, auth)
	}
}

func TestDoClassifiesUnauthorizedWithDiagnostics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Unauthorized","status":401,"message":"invalid token"}`))
	}))
	defer server.Close()
	m := newTestModule(t, server)

	result, err := m.Do(context.Background(), Request{Path: "users"}, nil)
	if !core.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if result.Outcome != classify.OutcomeUnauthorized {
		t.Fatalf("expected unauthorized outcome, got %q", result.Outcome)
	}
	metadata := core.ErrorMetadata(err)
	if metadata[core.DiagnosticRequestURL] != server.URL+"/helix/users" {
		t.Fatalf("expected request url diagnostic, got %+v", metadata)
	}
	headers, _ := metadata[core.DiagnosticRequestHeaders].(map[string]string)
	if headers["Authorization"] == "Bearer token" {
		t.Fatalf("expected authorization header to be redacted")
	}
}

func TestDoRetriesServiceUnavailableOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()
	m := newTestModule(t, server)

	_, err := m.Do(context.Background(), Request{Method: http.MethodPost, Path: "streams"}, nil)
	if !core.IsServiceUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected exactly two requests, got %d", hits.Load())
	}
}

func TestDoReturnsAPIErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Bad Request","status":400,"message":"missing id"}`))
	}))
	defer server.Close()
	m := newTestModule(t, server)

	result, err := m.Do(context.Background(), Request{Path: "users"}, nil)
	if !core.HasTextCode(err, core.ErrorAPI) {
		t.Fatalf("expected api error, got %v", err)
	}
	apiErr, ok := result.Payload.(*classify.APIError)
	if !ok || apiErr.Message != "missing id" {
		t.Fatalf("expected decoded api error payload, got %+v", result.Payload)
	}
}

func TestNewRejectsNonRESTModules(t *testing.T) {
	_, err := New(context.Background(), modules.Dependencies{Module: core.ModuleChat, Config: core.DefaultConfig()}, transport.NewRESTAdapter(nil))
	if !core.HasTextCode(err, core.ErrorModuleBuild) {
		t.Fatalf("expected module build error, got %v", err)
	}
}

type heldAdapter struct {
	release chan struct{}
	served  atomic.Bool
}

func (a *heldAdapter) Kind() string { return "held" }

func (a *heldAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	<-a.release
	a.served.Store(true)
	return core.TransportResponse{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{"data":[{"id":"late"}]}`)),
	}, nil
}

func TestDoLeavesTargetUntouchedAfterTimeout(t *testing.T) {
	p, err := pool.New("rest-timeout", 1)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.Close()
	cfg := core.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	adapter := &heldAdapter{release: make(chan struct{})}
	m, err := New(context.Background(), modules.Dependencies{
		Module: core.ModuleHelix,
		Config: cfg,
		Pool:   p,
	}, adapter)
	if err != nil {
		t.Fatalf("new module: %v", err)
	}

	var users struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if _, err := m.Do(context.Background(), Request{Path: "users"}, &users); !core.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}

	close(adapter.release)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !adapter.served.Load() {
		t.Fatalf("expected held call to finish before close returned")
	}
	if users.Data != nil {
		t.Fatalf("expected target untouched after timeout, got %+v", users)
	}
}
