package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	goerrors "github.com/goliatone/go-errors"
)

type scriptedAdapter struct {
	responses []core.TransportResponse
	errs      []error
	calls     int
}

func (*scriptedAdapter) Kind() string { return "scripted" }

func (a *scriptedAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	idx := a.calls
	a.calls++
	if idx >= len(a.responses) {
		idx = len(a.responses) - 1
	}
	var err error
	if idx < len(a.errs) {
		err = a.errs[idx]
	}
	return a.responses[idx], err
}

type recordedSleep struct {
	waits []time.Duration
}

func (s *recordedSleep) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func jsonResponse(status int, body string) core.TransportResponse {
	return core.TransportResponse{StatusCode: status, Body: []byte(body)}
}

const okBody = `{"data":{"v0":{"productVariant":{"id":"gid://shopify/ProductVariant/1"},"userErrors":[]}}}`

func TestRetryingClient_BacksOffOnThrottleThenSucceeds(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		jsonResponse(http.StatusTooManyRequests, `{"errors":"Throttled"}`),
		jsonResponse(http.StatusOK, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`),
		jsonResponse(http.StatusOK, `{"errors":[{"message":"Request was throttled, try again"}]}`),
		jsonResponse(http.StatusOK, okBody),
	}}
	sleeper := &recordedSleep{}
	var hookAttempts []int
	client := NewRetryingClient(adapter, WithSleep(sleeper.sleep))

	reply, err := client.Call(context.Background(), Request{Query: "mutation { x }"},
		WithOnRetry(func(attempt int, _ time.Duration, _ string) {
			hookAttempts = append(hookAttempts, attempt)
		}),
	)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if adapter.calls != 4 || reply.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got calls=%d attempts=%d", adapter.calls, reply.Attempts)
	}
	expected := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}
	if len(sleeper.waits) != len(expected) {
		t.Fatalf("expected waits %v, got %v", expected, sleeper.waits)
	}
	var total time.Duration
	for i, wait := range sleeper.waits {
		if wait != expected[i] {
			t.Fatalf("wait %d: expected %s, got %s", i, expected[i], wait)
		}
		total += wait
	}
	if total != 3500*time.Millisecond {
		t.Fatalf("expected 3500ms total wait, got %s", total)
	}
	if len(hookAttempts) != 3 || hookAttempts[0] != 1 || hookAttempts[2] != 3 {
		t.Fatalf("unexpected retry hook attempts %v", hookAttempts)
	}
	if reply.Outcome != OutcomeDone {
		t.Fatalf("expected done outcome, got %q", reply.Outcome)
	}
}

func TestRetryingClient_ExhaustsRetries(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		jsonResponse(http.StatusTooManyRequests, ``),
	}}
	sleeper := &recordedSleep{}
	client := NewRetryingClient(adapter, WithSleep(sleeper.sleep))

	_, err := client.Call(context.Background(), Request{Query: "mutation { x }"})
	if err == nil {
		t.Fatalf("expected throttle exhaustion")
	}
	if !core.IsThrottleExceeded(err) {
		t.Fatalf("expected throttle exceeded code, got %v", err)
	}
	callErr, ok := AsCallError(err)
	if !ok || !callErr.Throttled || callErr.Attempts != 6 || callErr.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected call error %#v", callErr)
	}
	if adapter.calls != 6 {
		t.Fatalf("expected 6 attempts, got %d", adapter.calls)
	}
	expected := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, wait := range sleeper.waits {
		if wait != expected[i] {
			t.Fatalf("wait %d: expected %s, got %s", i, expected[i], wait)
		}
	}
}

func TestRetryingClient_PerCallPolicyOverride(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		jsonResponse(http.StatusTooManyRequests, ``),
	}}
	sleeper := &recordedSleep{}
	client := NewRetryingClient(adapter, WithSleep(sleeper.sleep))

	_, err := client.Call(context.Background(), Request{Query: "mutation { x }"},
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond, Factor: 3, MaxDelay: 250 * time.Millisecond}),
	)
	if err == nil {
		t.Fatalf("expected throttle exhaustion")
	}
	if adapter.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", adapter.calls)
	}
	if len(sleeper.waits) != 2 || sleeper.waits[0] != 100*time.Millisecond || sleeper.waits[1] != 250*time.Millisecond {
		t.Fatalf("unexpected waits %v", sleeper.waits)
	}
}

func TestRetryingClient_TopLevelErrorsAreTerminal(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		jsonResponse(http.StatusOK, `{"errors":[{"message":"Field 'nope' doesn't exist","path":["mutation","nope"]}],"data":{"v0":{"userErrors":[{"field":["price"],"message":"ignored"}]}}}`),
	}}
	sleeper := &recordedSleep{}
	client := NewRetryingClient(adapter, WithSleep(sleeper.sleep))

	reply, err := client.Call(context.Background(), Request{Query: "mutation { nope }"})
	if err == nil {
		t.Fatalf("expected terminal error")
	}
	if adapter.calls != 1 || len(sleeper.waits) != 0 {
		t.Fatalf("expected no retries, calls=%d waits=%d", adapter.calls, len(sleeper.waits))
	}
	callErr, ok := AsCallError(err)
	if !ok {
		t.Fatalf("expected call error, got %T", err)
	}
	if len(callErr.UserErrors) != 1 || callErr.UserErrors[0].Message != "Field 'nope' doesn't exist" {
		t.Fatalf("expected top level errors only, got %#v", callErr.UserErrors)
	}
	if len(callErr.UserErrors[0].Field) != 2 || callErr.UserErrors[0].Field[1] != "nope" {
		t.Fatalf("expected path to map onto field, got %#v", callErr.UserErrors[0].Field)
	}
	if !core.IsTransportFailure(err) {
		t.Fatalf("expected transport failure code")
	}
	if len(reply.UserErrors) != 1 {
		t.Fatalf("expected reply to carry the top level errors")
	}
}

func TestRetryingClient_ItemErrorsAreNotRetried(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		jsonResponse(http.StatusOK, `{"data":{"v0":{"userErrors":[{"field":["input","price"],"message":"Price must be positive"}]},"v1":{"userErrors":[]}}}`),
	}}
	client := NewRetryingClient(adapter, WithSleep((&recordedSleep{}).sleep))
	reply, err := client.Call(context.Background(), Request{Query: "mutation { x }"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if reply.Outcome != OutcomeItemErrors {
		t.Fatalf("expected item error outcome, got %q", reply.Outcome)
	}
	if len(reply.UserErrors) != 1 || reply.UserErrors[0].Message != "Price must be positive" {
		t.Fatalf("unexpected user errors %#v", reply.UserErrors)
	}
	if adapter.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", adapter.calls)
	}
}

func TestRetryingClient_NetworkErrorsAreTerminalUnlessThrottled(t *testing.T) {
	adapter := &scriptedAdapter{
		responses: []core.TransportResponse{{}, {}},
		errs:      []error{errors.New("dial tcp: connection refused")},
	}
	client := NewRetryingClient(adapter, WithSleep((&recordedSleep{}).sleep))
	if _, err := client.Call(context.Background(), Request{Query: "q"}); err == nil || adapter.calls != 1 {
		t.Fatalf("expected one terminal attempt, calls=%d err=%v", adapter.calls, err)
	}

	throttled := &scriptedAdapter{
		responses: []core.TransportResponse{{}, jsonResponse(http.StatusOK, okBody)},
		errs:      []error{goerrors.New("upstream rate limit", goerrors.CategoryRateLimit)},
	}
	client = NewRetryingClient(throttled, WithSleep((&recordedSleep{}).sleep))
	if _, err := client.Call(context.Background(), Request{Query: "q"}); err != nil {
		t.Fatalf("expected retry after rate limit error: %v", err)
	}
	if throttled.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", throttled.calls)
	}
}

func TestRetryingClient_ServerErrorStatusIsTerminal(t *testing.T) {
	adapter := &scriptedAdapter{responses: []core.TransportResponse{
		jsonResponse(http.StatusInternalServerError, `oops`),
	}}
	client := NewRetryingClient(adapter, WithSleep((&recordedSleep{}).sleep))
	_, err := client.Call(context.Background(), Request{Query: "q"})
	callErr, ok := AsCallError(err)
	if !ok || callErr.Status != http.StatusInternalServerError || callErr.Throttled {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestRetryingClient_OverHTTP(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if got := r.Header.Get("X-Shopify-Access-Token"); got != "shpat_test" {
			t.Errorf("expected access token header, got %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["query"] != "mutation Bulk { x }" {
			t.Errorf("unexpected query %v", payload["query"])
		}
		if n == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okBody))
	}))
	defer server.Close()

	var observed int
	client := NewRetryingClient(
		NewGraphQLAdapter(server.URL, server.Client()),
		WithSleep((&recordedSleep{}).sleep),
		WithResponseObserver(func(context.Context, core.TransportResponse) { observed++ }),
	)
	reply, err := client.Call(context.Background(), Request{
		Query:     "mutation Bulk { x }",
		Headers:   map[string]string{"X-Shopify-Access-Token": "shpat_test"},
		Variables: map[string]any{"v0": map[string]any{"id": "gid://shopify/ProductVariant/1"}},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if reply.Attempts != 2 || observed != 2 {
		t.Fatalf("expected 2 attempts observed, got attempts=%d observed=%d", reply.Attempts, observed)
	}
	if len(reply.Data) == 0 {
		t.Fatalf("expected data payload")
	}
}

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4
	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal || rich.TextCode != core.ErrorTransportFailure {
		t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestGraphQLAdapter_RequiresQuery(t *testing.T) {
	adapter := NewGraphQLAdapter("http://example.invalid/graphql", nil)
	_, err := adapter.Do(context.Background(), core.TransportRequest{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input envelope, got %v", err)
	}
}
