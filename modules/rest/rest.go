// Package rest exposes the request/response API modules: helix, kraken,
// extensions and tmi.
package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-clientkit/classify"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/modules"
	goerrors "github.com/goliatone/go-errors"
)

// Request is one call relative to the module endpoint.
type Request struct {
	Method    string
	Path      string
	Query     map[string]string
	Headers   map[string]string
	Body      []byte
	AuthToken string
}

type Module struct {
	kind        core.ModuleKind
	endpoint    string
	credentials core.Credentials
	adapter     core.TransportAdapter
	dispatcher  *modules.Dispatcher
}

// New builds a REST module and starts its queue consumer on the shared pool.
func New(ctx context.Context, deps modules.Dependencies, adapter core.TransportAdapter) (*Module, error) {
	if surface, ok := core.ModuleSurface(deps.Module); !ok || surface != core.SurfaceREST {
		return nil, core.NewError("rest: module is not a rest surface", goerrors.CategoryBadInput, core.ErrorModuleBuild, map[string]any{
			"module": string(deps.Module),
		})
	}
	if adapter == nil {
		return nil, core.NewError("rest: transport adapter is required", goerrors.CategoryInternal, core.ErrorModuleBuild, map[string]any{
			"module": string(deps.Module),
		})
	}
	dispatcher, err := modules.NewDispatcher(ctx, deps)
	if err != nil {
		return nil, err
	}
	m := &Module{
		kind:        dispatcher.Module(),
		endpoint:    deps.Config.Endpoint(dispatcher.Module()),
		credentials: deps.Config.Credentials,
		adapter:     adapter,
		dispatcher:  dispatcher,
	}
	dispatcher.Start(deps.Pool)
	return m, nil
}

// NewBuilder adapts New to the client's module construction step.
func NewBuilder(adapter core.TransportAdapter) modules.Builder {
	return func(ctx context.Context, deps modules.Dependencies) (modules.Handle, error) {
		return New(ctx, deps, adapter)
	}
}

func (m *Module) Kind() core.ModuleKind { return m.kind }

func (m *Module) Endpoint() string { return m.endpoint }

func (m *Module) Dispatcher() *modules.Dispatcher { return m.dispatcher }

// Do queues req behind earlier calls, waits for a token and classifies the
// response into target. The returned error reflects the classified outcome.
func (m *Module) Do(ctx context.Context, req Request, target any) (classify.Result, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers := modules.MergeHeaders(modules.RequestHeaders(m.credentials, req.AuthToken), req.Headers)
	transportReq := core.TransportRequest{
		Method:  method,
		URL:     modules.JoinURL(m.endpoint, req.Path),
		Headers: headers,
		Query:   req.Query,
		Body:    req.Body,
	}
	classifyReq := classify.Request{URL: transportReq.URL, Method: method, Headers: headers}

	result, err := m.dispatcher.Dispatch(ctx, func(callCtx context.Context) (classify.Result, error) {
		response, err := m.adapter.Do(callCtx, transportReq)
		if err != nil {
			return classify.Result{}, err
		}
		return m.dispatcher.Classifier().Classify(classifyReq, classify.ResponseFrom(response), nil), nil
	})
	if err != nil {
		return result, err
	}
	result = m.dispatcher.Classifier().Decode(classifyReq, result, target)
	return result, result.Err()
}

func (m *Module) Close() error {
	return m.dispatcher.Close()
}

var _ modules.Handle = (*Module)(nil)
