package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-bulkedit/core"
	goerrors "github.com/goliatone/go-errors"
)

const KindGraphQL = "graphql"

const (
	MetadataQuery         = "query"
	MetadataVariables     = "variables"
	MetadataOperationName = "operation_name"
)

// GraphQLAdapter posts a GraphQL document read from the request metadata
// through a RESTAdapter.
type GraphQLAdapter struct {
	Endpoint string
	REST     *RESTAdapter
}

type graphQLPayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
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

	payload, ok := graphQLPayloadFrom(req)
	if !ok {
		return core.TransportResponse{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: marshal graphql payload",
			http.StatusBadRequest,
			map[string]any{"adapter": KindGraphQL},
		)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for key, value := range req.Headers {
		headers[key] = value
	}

	response, err := a.REST.Do(ctx, core.TransportRequest{
		Method:               http.MethodPost,
		URL:                  endpoint,
		Headers:              headers,
		Body:                 body,
		Metadata:             req.Metadata,
		Timeout:              req.Timeout,
		MaxResponseBodyBytes: req.MaxResponseBodyBytes,
	})
	if err != nil {
		return core.TransportResponse{}, err
	}
	if response.Metadata == nil {
		response.Metadata = map[string]any{}
	}
	response.Metadata["kind"] = KindGraphQL
	return response, nil
}

func graphQLPayloadFrom(req core.TransportRequest) (graphQLPayload, bool) {
	payload := graphQLPayload{
		Query:         metadataString(req.Metadata, MetadataQuery),
		OperationName: metadataString(req.Metadata, MetadataOperationName),
	}
	if payload.Query == "" {
		payload.Query = strings.TrimSpace(string(req.Body))
	}
	if payload.Query == "" {
		return graphQLPayload{}, false
	}
	if variables, ok := req.Metadata[MetadataVariables].(map[string]any); ok && len(variables) > 0 {
		payload.Variables = variables
	}
	return payload, true
}

func metadataString(metadata map[string]any, key string) string {
	if len(metadata) == 0 {
		return ""
	}
	value, ok := metadata[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

var _ core.TransportAdapter = (*GraphQLAdapter)(nil)
