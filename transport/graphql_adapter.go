package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/goliatone/go-clientkit/core"
	goerrors "github.com/goliatone/go-errors"
)

const KindGraphQL = "graphql"

// MetadataGraphQLQuery is the TransportRequest metadata key holding a
// GraphQLQuery.
const MetadataGraphQLQuery = "graphql_query"

type GraphQLQuery struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GraphQLAdapter posts queries as JSON documents over a RESTAdapter.
type GraphQLAdapter struct {
	Endpoint string
	REST     *RESTAdapter
}

func NewGraphQLAdapter(endpoint string, client HTTPDoer) *GraphQLAdapter {
	return &GraphQLAdapter{
		Endpoint: strings.TrimSpace(endpoint),
		REST:     NewRESTAdapter(client),
	}
}

func (*GraphQLAdapter) Kind() string {
	return KindGraphQL
}

func (a *GraphQLAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.REST == nil {
		return core.TransportResponse{}, transportError(
			"transport: graphql adapter requires a rest adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		endpoint = a.Endpoint
	}
	if endpoint == "" {
		return core.TransportResponse{}, transportError(
			"transport: graphql endpoint is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	query, ok := graphQLQueryFrom(req)
	if !ok {
		return core.TransportResponse{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}
	body, err := json.Marshal(query)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL, "endpoint": endpoint},
		)
	}

	headers := cloneHeaders(req.Headers)
	headers["Content-Type"] = "application/json"
	response, err := a.REST.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: headers,
		Body:    body,
		Timeout: req.Timeout,
	})
	if err != nil {
		return core.TransportResponse{}, err
	}
	response.Metadata["kind"] = KindGraphQL
	if query.OperationName != "" {
		response.Metadata["operation_name"] = query.OperationName
	}
	return response, nil
}

func graphQLQueryFrom(req core.TransportRequest) (GraphQLQuery, bool) {
	if typed, ok := req.Metadata[MetadataGraphQLQuery].(GraphQLQuery); ok {
		typed.Query = strings.TrimSpace(typed.Query)
		return typed, typed.Query != ""
	}
	query := strings.TrimSpace(string(req.Body))
	if query == "" {
		return GraphQLQuery{}, false
	}
	return GraphQLQuery{Query: query}, true
}

var _ core.TransportAdapter = (*GraphQLAdapter)(nil)
