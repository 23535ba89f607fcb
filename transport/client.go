package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeItemErrors Outcome = "failed_with_item_errors"
)

const throttledExtensionCode = "THROTTLED"

// Request is one aggregate GraphQL call.
type Request struct {
	URL           string
	Query         string
	OperationName string
	Variables     map[string]any
	Headers       map[string]string
}

type Reply struct {
	StatusCode int
	Headers    map[string]string
	Data       json.RawMessage
	UserErrors []core.UserError
	Attempts   int
	Outcome    Outcome
}

// RetryHook runs before each backoff wait. attempt is the attempt that was
// throttled, starting at 1.
type RetryHook func(attempt int, wait time.Duration, reason string)

// ResponseObserver sees every raw response, including throttled ones.
type ResponseObserver func(ctx context.Context, response core.TransportResponse)

type SleepFunc func(ctx context.Context, d time.Duration) error

type ClientOption func(*RetryingClient)

func WithClientLogger(logger core.Logger) ClientOption {
	return func(c *RetryingClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithDefaultRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *RetryingClient) {
		c.policy = policy.normalized()
	}
}

func WithSleep(sleep SleepFunc) ClientOption {
	return func(c *RetryingClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func WithResponseObserver(observer ResponseObserver) ClientOption {
	return func(c *RetryingClient) {
		c.observer = observer
	}
}

func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *RetryingClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

type callSettings struct {
	policy  RetryPolicy
	onRetry RetryHook
}

type CallOption func(*callSettings)

func WithRetryPolicy(policy RetryPolicy) CallOption {
	return func(s *callSettings) {
		s.policy = policy.normalized()
	}
}

func WithOnRetry(hook RetryHook) CallOption {
	return func(s *callSettings) {
		s.onRetry = hook
	}
}

// RetryingClient sends GraphQL calls and retries only on throttling.
// Item level userErrors end the call without a retry.
type RetryingClient struct {
	adapter  core.TransportAdapter
	policy   RetryPolicy
	sleep    SleepFunc
	logger   core.Logger
	observer ResponseObserver
	timeout  time.Duration
}

func NewRetryingClient(adapter core.TransportAdapter, opts ...ClientOption) *RetryingClient {
	client := &RetryingClient{
		adapter: adapter,
		policy:  DefaultRetryPolicy(),
		sleep:   core.SleepContext,
		logger:  glog.Nop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client
}

type verdictKind int

const (
	verdictDone verdictKind = iota
	verdictThrottled
	verdictFatal
)

type verdict struct {
	kind   verdictKind
	reason string
	reply  Reply
	err    *CallError
}

func (c *RetryingClient) Call(ctx context.Context, req Request, opts ...CallOption) (Reply, error) {
	if c == nil || c.adapter == nil {
		return Reply{}, transportError(
			"transport: retrying client requires an adapter",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	if strings.TrimSpace(req.Query) == "" {
		return Reply{}, transportError(
			"transport: graphql query is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			nil,
		)
	}
	settings := callSettings{policy: c.policy}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&settings)
	}

	metadata := map[string]any{MetadataQuery: req.Query}
	if len(req.Variables) > 0 {
		metadata[MetadataVariables] = req.Variables
	}
	if name := strings.TrimSpace(req.OperationName); name != "" {
		metadata[MetadataOperationName] = name
	}
	transportReq := core.TransportRequest{
		Method:   http.MethodPost,
		URL:      req.URL,
		Headers:  req.Headers,
		Metadata: metadata,
		Timeout:  c.timeout,
	}

	logger := c.logger.WithContext(ctx)
	backoff := settings.policy.Backoff()
	for attempt := 1; ; attempt++ {
		response, err := c.adapter.Do(ctx, transportReq)
		if err == nil && c.observer != nil {
			c.observer(ctx, response)
		}
		outcome := classify(response, err, attempt)
		switch outcome.kind {
		case verdictDone:
			return outcome.reply, nil
		case verdictFatal:
			logger.Error("graphql call failed",
				"url", req.URL,
				"attempt", attempt,
				"status", outcome.err.Status,
				"error", outcome.err.Message(),
				"headers", core.RedactHeaders(req.Headers),
			)
			return Reply{StatusCode: outcome.err.Status, Attempts: attempt, UserErrors: outcome.err.UserErrors}, outcome.err
		}

		wait, stop := backoff.Next()
		if stop {
			exhausted := newThrottleExceededError(response.StatusCode, attempt, outcome.reason)
			logger.Error("graphql call throttled, retries exhausted",
				"attempts", attempt,
				"status", response.StatusCode,
			)
			return Reply{StatusCode: exhausted.Status, Attempts: attempt}, exhausted
		}
		logger.Warn("graphql call throttled, backing off",
			"attempt", attempt,
			"wait_ms", wait.Milliseconds(),
			"status", response.StatusCode,
			"reason", outcome.reason,
		)
		if settings.onRetry != nil {
			settings.onRetry(attempt, wait, outcome.reason)
		}
		if err := c.sleep(ctx, wait); err != nil {
			interrupted := newCallError(err, response.StatusCode, attempt, "transport: retry wait interrupted", nil)
			return Reply{StatusCode: response.StatusCode, Attempts: attempt}, interrupted
		}
	}
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Message    string          `json:"message"`
	Path       json.RawMessage `json:"path"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

func classify(response core.TransportResponse, err error, attempt int) verdict {
	if err != nil {
		if isThrottleError(err) {
			return verdict{kind: verdictThrottled, reason: err.Error()}
		}
		return verdict{kind: verdictFatal, err: newCallError(err, 0, attempt, "transport: request failed", nil)}
	}

	status := response.StatusCode
	if status == http.StatusTooManyRequests {
		return verdict{kind: verdictThrottled, reason: fmt.Sprintf("status %d", status)}
	}

	var decoded graphQLResponse
	body := bytes.TrimSpace(response.Body)
	if len(body) == 0 || json.Unmarshal(body, &decoded) != nil {
		if status >= http.StatusBadRequest {
			if IsThrottleMessage(string(body)) {
				return verdict{kind: verdictThrottled, reason: fmt.Sprintf("status %d", status)}
			}
			return verdict{kind: verdictFatal, err: newCallError(nil, status, attempt, fmt.Sprintf("transport: remote returned status %d", status), nil)}
		}
		return verdict{kind: verdictFatal, err: newCallError(nil, status, attempt, "transport: response is not valid json", nil)}
	}

	if len(decoded.Errors) > 0 {
		topLevel := make([]core.UserError, 0, len(decoded.Errors))
		for _, gqlErr := range decoded.Errors {
			if IsThrottleMessage(gqlErr.Message) || strings.EqualFold(gqlErr.Extensions.Code, throttledExtensionCode) {
				return verdict{kind: verdictThrottled, reason: gqlErr.Message}
			}
			topLevel = append(topLevel, core.UserError{Field: decodeFieldPath(gqlErr.Path), Message: gqlErr.Message})
		}
		return verdict{kind: verdictFatal, err: newCallError(nil, status, attempt, "transport: "+joinUserErrors(topLevel), topLevel)}
	}
	if status >= http.StatusBadRequest {
		return verdict{kind: verdictFatal, err: newCallError(nil, status, attempt, fmt.Sprintf("transport: remote returned status %d", status), nil)}
	}

	userErrors, extractErr := ExtractUserErrors(decoded.Data)
	if extractErr != nil {
		return verdict{kind: verdictFatal, err: newCallError(extractErr, status, attempt, "transport: decode response data", nil)}
	}
	reply := Reply{
		StatusCode: status,
		Headers:    response.Headers,
		Data:       decoded.Data,
		UserErrors: userErrors,
		Attempts:   attempt,
		Outcome:    OutcomeDone,
	}
	if len(userErrors) > 0 {
		reply.Outcome = OutcomeItemErrors
	}
	return verdict{kind: verdictDone, reply: reply}
}

// IsThrottleMessage reports a textual rate limit signal.
func IsThrottleMessage(message string) bool {
	return strings.Contains(strings.ToLower(message), "throttl")
}

func isThrottleError(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.Category == goerrors.CategoryRateLimit {
		return true
	}
	return IsThrottleMessage(err.Error())
}
