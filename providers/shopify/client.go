package shopify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	"github.com/goliatone/go-bulkedit/transport"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// MutationClient sends aggregate variant updates to one shop.
type MutationClient struct {
	shop     string
	endpoint string
	token    string
	client   *transport.RetryingClient
	logger   core.Logger
}

func (c *MutationClient) Shop() string {
	return c.shop
}

func (c *MutationClient) Endpoint() string {
	return c.endpoint
}

func (c *MutationClient) Mutate(ctx context.Context, req core.AggregateRequest) (core.MutationReply, error) {
	query, variables, err := RenderMutation(req)
	if err != nil {
		return core.MutationReply{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "providers/shopify: render mutation").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorPreconditionFailed)
	}

	logger := c.logger.WithContext(ctx)
	reply, err := c.client.Call(ctx, transport.Request{
		URL:           c.endpoint,
		Query:         query,
		OperationName: MutationOperationName,
		Variables:     variables,
		Headers:       map[string]string{AccessTokenHeader: c.token},
	}, transport.WithOnRetry(func(attempt int, wait time.Duration, reason string) {
		logger.Info("shopify mutation throttled",
			"shop", c.shop,
			"batch", req.BatchIndex,
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"reason", reason,
		)
	}))
	if err != nil {
		return core.MutationReply{
			StatusCode: reply.StatusCode,
			UserErrors: reply.UserErrors,
			Attempts:   reply.Attempts,
		}, err
	}

	results, err := DecodeKeyedResults(reply.Data)
	if err != nil {
		return core.MutationReply{StatusCode: reply.StatusCode, Attempts: reply.Attempts}, goerrors.Wrap(err, goerrors.CategoryExternal, "providers/shopify: decode mutation reply").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorTransportFailure)
	}
	return core.MutationReply{
		StatusCode: reply.StatusCode,
		Results:    results,
		UserErrors: reply.UserErrors,
		Attempts:   reply.Attempts,
		ItemErrors: reply.Outcome == transport.OutcomeItemErrors,
		Metadata: map[string]any{
			"shop":     c.shop,
			"batch":    req.BatchIndex,
			"endpoint": c.endpoint,
		},
	}, nil
}

// EndpointFunc resolves the GraphQL URL for a shop.
type EndpointFunc func(shop string, apiVersion string) (string, error)

type ClientFactoryOption func(*ClientFactory)

func WithHTTPClient(client transport.HTTPDoer) ClientFactoryOption {
	return func(f *ClientFactory) {
		if client != nil {
			f.httpClient = client
		}
	}
}

func WithEndpointFunc(fn EndpointFunc) ClientFactoryOption {
	return func(f *ClientFactory) {
		if fn != nil {
			f.endpoint = fn
		}
	}
}

func WithFactoryLogger(logger core.Logger) ClientFactoryOption {
	return func(f *ClientFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithSleep(sleep transport.SleepFunc) ClientFactoryOption {
	return func(f *ClientFactory) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// ClientFactory builds per-shop mutation clients from the engine config.
type ClientFactory struct {
	apiVersion string
	policy     transport.RetryPolicy
	timeout    time.Duration
	httpClient transport.HTTPDoer
	endpoint   EndpointFunc
	sleep      transport.SleepFunc
	logger     core.Logger
}

func NewClientFactory(cfg core.Config, opts ...ClientFactoryOption) *ClientFactory {
	factory := &ClientFactory{
		apiVersion: cfg.APIVersion,
		policy:     transport.RetryPolicyFromConfig(cfg.Retry),
		timeout:    cfg.RequestTimeout(),
		endpoint:   AdminGraphQLEndpoint,
		logger:     glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(factory)
	}
	if factory.httpClient == nil {
		factory.httpClient = &http.Client{Timeout: factory.timeout}
	}
	return factory
}

func (f *ClientFactory) NewMutationClient(_ context.Context, shop string, accessToken string) (core.MutationClient, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, goerrors.New(fmt.Sprintf("providers/shopify: access token is required for %s", shop), goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ErrorNotInstalled)
	}
	endpoint, err := f.endpoint(shop, f.apiVersion)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "providers/shopify: resolve endpoint").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorPreconditionFailed)
	}

	clientOpts := []transport.ClientOption{
		transport.WithClientLogger(f.logger),
		transport.WithDefaultRetryPolicy(f.policy),
		transport.WithRequestTimeout(f.timeout),
		transport.WithResponseObserver(LoggingObserver(f.logger)),
	}
	if f.sleep != nil {
		clientOpts = append(clientOpts, transport.WithSleep(f.sleep))
	}
	return &MutationClient{
		shop:     shop,
		endpoint: endpoint,
		token:    accessToken,
		client:   transport.NewRetryingClient(transport.NewGraphQLAdapter(endpoint, f.httpClient), clientOpts...),
		logger:   f.logger,
	}, nil
}

var (
	_ core.MutationClient        = (*MutationClient)(nil)
	_ core.MutationClientFactory = (*ClientFactory)(nil)
)
