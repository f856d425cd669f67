package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-clientkit/core"
)

func TestRESTAdapterSendsHeadersAndQuery(t *testing.T) {
	var gotQuery, gotAgent, gotClient string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("login")
		gotAgent = r.Header.Get("User-Agent")
		gotClient = r.Header.Get("Client-Id")
		w.Header().Set("X-Trace", "abc")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.DefaultHeaders["User-Agent"] = "go-clientkit"

	res, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:     server.URL + "/users",
		Query:   map[string]string{"login": "alice"},
		Headers: map[string]string{"Client-Id": "cid"},
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if res.StatusCode != http.StatusOK || res.Headers["X-Trace"] != "abc" {
		t.Fatalf("unexpected response %+v", res)
	}
	if gotQuery != "alice" || gotAgent != "go-clientkit" || gotClient != "cid" {
		t.Fatalf("unexpected request values %q %q %q", gotQuery, gotAgent, gotClient)
	}
	if res.Metadata["method"] != http.MethodGet {
		t.Fatalf("expected default GET method, got %v", res.Metadata["method"])
	}
}

func TestRESTAdapterDoesNotTreatErrorStatusAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	res, err := NewRESTAdapter(server.Client()).Do(context.Background(), core.TransportRequest{URL: server.URL})
	if err != nil {
		t.Fatalf("expected status to be returned without error, got %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.StatusCode)
	}
}

func TestRESTAdapterTimeoutIsOperationError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewRESTAdapter(server.Client()).Do(context.Background(), core.TransportRequest{
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !core.HasTextCode(err, core.ErrorTimeout) {
		t.Fatalf("expected timeout text code, got %v", err)
	}
}

func TestRESTAdapterRejectsMissingURL(t *testing.T) {
	_, err := NewRESTAdapter(nil).Do(context.Background(), core.TransportRequest{})
	if !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestGraphQLAdapterPostsQueryDocument(t *testing.T) {
	var got GraphQLQuery
	var contentType, method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	adapter := NewGraphQLAdapter(server.URL, server.Client())
	res, err := adapter.Do(context.Background(), core.TransportRequest{
		Metadata: map[string]any{
			MetadataGraphQLQuery: GraphQLQuery{
				Query:         "query Viewer { viewer { id } }",
				OperationName: "Viewer",
				Variables:     map[string]any{"first": 1},
			},
		},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()

	if method != http.MethodPost || contentType != "application/json" {
		t.Fatalf("unexpected request %s %s", method, contentType)
	}
	if got.OperationName != "Viewer" || got.Query == "" || got.Variables["first"] != float64(1) {
		t.Fatalf("unexpected payload %+v", got)
	}
	if res.Metadata["kind"] != KindGraphQL || res.Metadata["operation_name"] != "Viewer" {
		t.Fatalf("unexpected metadata %+v", res.Metadata)
	}
}

func TestGraphQLAdapterRequiresQuery(t *testing.T) {
	_, err := NewGraphQLAdapter("http://localhost", nil).Do(context.Background(), core.TransportRequest{})
	if !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
}

func TestUnsupportedStreamWriterFails(t *testing.T) {
	err := NewUnsupportedStreamWriter("no socket").WriteMessage(context.Background(), core.ModuleChat, []byte("PING"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if core.ErrorMetadata(err)["module"] != "chat" {
		t.Fatalf("expected module metadata, got %+v", core.ErrorMetadata(err))
	}
}
