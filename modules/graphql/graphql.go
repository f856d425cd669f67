// Package graphql exposes the query based module.
package graphql

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-clientkit/classify"
	"github.com/goliatone/go-clientkit/core"
	"github.com/goliatone/go-clientkit/modules"
	"github.com/goliatone/go-clientkit/transport"
	goerrors "github.com/goliatone/go-errors"
)

// Error is one entry of the errors array of a GraphQL response.
type Error struct {
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// Envelope is the top level GraphQL response document.
type Envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []Error         `json:"errors,omitempty"`
}

type Module struct {
	kind        core.ModuleKind
	endpoint    string
	credentials core.Credentials
	adapter     core.TransportAdapter
	dispatcher  *modules.Dispatcher
}

func New(ctx context.Context, deps modules.Dependencies, adapter core.TransportAdapter) (*Module, error) {
	if surface, ok := core.ModuleSurface(deps.Module); !ok || surface != core.SurfaceQuery {
		return nil, core.NewError("graphql: module is not a query surface", goerrors.CategoryBadInput, core.ErrorModuleBuild, map[string]any{
			"module": string(deps.Module),
		})
	}
	if adapter == nil {
		return nil, core.NewError("graphql: transport adapter is required", goerrors.CategoryInternal, core.ErrorModuleBuild, map[string]any{
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

func NewBuilder(adapter core.TransportAdapter) modules.Builder {
	return func(ctx context.Context, deps modules.Dependencies) (modules.Handle, error) {
		return New(ctx, deps, adapter)
	}
}

func (m *Module) Kind() core.ModuleKind { return m.kind }

func (m *Module) Endpoint() string { return m.endpoint }

func (m *Module) Dispatcher() *modules.Dispatcher { return m.dispatcher }

// Query posts query and decodes the data member into target. A response
// carrying GraphQL errors fails with an API error listing them.
func (m *Module) Query(ctx context.Context, query transport.GraphQLQuery, authToken string, target any) (classify.Result, error) {
	if strings.TrimSpace(query.Query) == "" {
		return classify.Result{}, core.NewError("graphql: query is required", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{
			"module": string(m.kind),
		})
	}
	headers := modules.RequestHeaders(m.credentials, authToken)
	transportReq := core.TransportRequest{
		URL:      m.endpoint,
		Headers:  headers,
		Metadata: map[string]any{transport.MetadataGraphQLQuery: query},
	}
	classifyReq := classify.Request{URL: m.endpoint, Method: "POST", Headers: headers}

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
	envelope := &Envelope{}
	result = m.dispatcher.Classifier().Decode(classifyReq, result, envelope)
	if err := result.Err(); err != nil {
		return result, err
	}
	if len(envelope.Errors) > 0 {
		return result, queryError(result.Status, query.OperationName, envelope.Errors)
	}
	if target != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, target); err != nil {
			return result, core.WrapError(err, goerrors.CategoryExternal, "graphql: decode data", core.ErrorUnclassifiedResponse, map[string]any{
				"module": string(m.kind),
			})
		}
		result.Payload = target
	}
	return result, nil
}

func (m *Module) Close() error {
	return m.dispatcher.Close()
}

func queryError(status int, operation string, errs []Error) error {
	messages := make([]string, 0, len(errs))
	for _, item := range errs {
		messages = append(messages, item.Message)
	}
	return core.NewError("graphql: "+strings.Join(messages, "; "), goerrors.CategoryExternal, core.ErrorAPI, map[string]any{
		"status":    status,
		"operation": operation,
		"errors":    messages,
	}).WithCode(status)
}

var _ modules.Handle = (*Module)(nil)
