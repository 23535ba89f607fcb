package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-bulkedit/core"

	goerrors "github.com/goliatone/go-errors"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestApplyMessageRoundTrip(t *testing.T) {
	req := core.ApplyRequest{
		Shop:        "demo.myshopify.com",
		Description: "spring prices",
		Changes: []core.Change{
			{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("19.90")},
			{ItemID: "gid://shopify/ProductVariant/2", SKU: core.NewFieldValue("SKU-2"), Weight: core.NewFieldValue("0.5")},
		},
	}
	msg, err := NewApplyMessage(req, "idem-1")
	if err != nil {
		t.Fatalf("new apply message: %v", err)
	}
	if msg.JobID != JobIDApply || msg.IdempotencyKey != "idem-1" {
		t.Fatalf("unexpected message %#v", msg)
	}

	decoded, err := ApplyRequestFromMessage(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Shop != req.Shop || decoded.Description != req.Description || len(decoded.Changes) != 2 {
		t.Fatalf("unexpected decoded request %#v", decoded)
	}
	if decoded.Changes[0].Price == nil || decoded.Changes[0].Price.String() != "19.90" {
		t.Fatalf("expected price to survive verbatim, got %#v", decoded.Changes[0].Price)
	}
	if decoded.Changes[1].Weight == nil || decoded.Changes[1].Weight.String() != "0.5" {
		t.Fatalf("expected weight to survive, got %#v", decoded.Changes[1].Weight)
	}

	if _, err := NewApplyMessage(core.ApplyRequest{}, ""); !errors.Is(err, core.ErrMissingShop) {
		t.Fatalf("expected ErrMissingShop, got %v", err)
	}
	if _, err := ApplyRequestFromMessage(&job.ExecutionMessage{JobID: "other"}); err == nil {
		t.Fatalf("expected foreign job id to fail")
	}
}

func TestApplyEnqueuer_Enqueue(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	receipt, err := NewApplyEnqueuer(enqueuer).EnqueueApply(context.Background(), core.ApplyRequest{
		Shop:    "demo.myshopify.com",
		Changes: []core.Change{{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("1")}},
	}, "idem-2")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDApply || enqueuer.last.ScriptPath != ScriptPathApply {
		t.Fatalf("expected mapped go-job message, got %#v", enqueuer.last)
	}
	if receipt.DispatchID != "dispatch-1" {
		t.Fatalf("expected enqueue receipt, got %#v", receipt)
	}
	if enqueuer.last.DedupPolicy != job.DedupPolicyDrop {
		t.Fatalf("expected drop dedup policy, got %q", enqueuer.last.DedupPolicy)
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	first := policy.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       30 * time.Second,
		Reason:      " transient ",
	}, 1)
	if first.Disposition != queue.NackDispositionRetry || first.Delay != 10*time.Second || first.Reason != "transient" {
		t.Fatalf("unexpected first nack %#v", first)
	}
	if err := queue.ValidateNackOptions(first); err != nil {
		t.Fatalf("expected valid nack options: %v", err)
	}

	last := policy.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second}, 3)
	if last.Disposition != queue.NackDispositionDeadLetter || last.Delay != 0 {
		t.Fatalf("expected dead letter at max attempts, got %#v", last)
	}

	failed := RetryPolicy{MaxAttempts: 2}.NormalizeAttempt(queue.NackOptions{Disposition: queue.NackDispositionRetry}, 2)
	if failed.Disposition != queue.NackDispositionFailed {
		t.Fatalf("expected failed disposition without dead lettering, got %#v", failed)
	}

	fallback := RetryPolicy{}.NormalizeAttempt(queue.NackOptions{Delay: -time.Second}, 1)
	if fallback.Disposition != queue.NackDispositionRetry || fallback.Delay != 0 {
		t.Fatalf("expected retry when no disposition was chosen, got %#v", fallback)
	}
	if err := queue.ValidateNackOptions(fallback); err != nil {
		t.Fatalf("expected valid fallback nack options: %v", err)
	}
}

func TestApplyWorker_AcksOnSuccess(t *testing.T) {
	engine := &stubApplier{result: core.ApplyResult{OK: true, SuccessCount: 1, Total: 1, BatchID: "run_1"}}
	hook := &capturingHook{}
	delivery := newApplyDelivery(t)

	result, err := NewApplyWorker(engine, WithHook(hook)).Handle(context.Background(), delivery, 1)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.BatchID != "run_1" || !delivery.acked {
		t.Fatalf("expected ack with result, got %#v acked=%v", result, delivery.acked)
	}
	if engine.last.Shop != "demo.myshopify.com" {
		t.Fatalf("expected decoded request, got %#v", engine.last)
	}
	if hook.count("start") != 1 || hook.count("success") != 1 {
		t.Fatalf("unexpected hook events %v", hook.events)
	}
}

func TestApplyWorker_RequeuesThrottleFailures(t *testing.T) {
	throttled := goerrors.New("transport: throttled after 6 attempts", goerrors.CategoryRateLimit).
		WithTextCode(core.ErrorThrottleExceeded)
	engine := &stubApplier{err: throttled}
	hook := &capturingHook{}
	delivery := newApplyDelivery(t)

	w := NewApplyWorker(engine, WithHook(hook), WithRetryDelay(time.Second))
	if _, err := w.Handle(context.Background(), delivery, 2); !core.IsThrottleExceeded(err) {
		t.Fatalf("expected throttle error, got %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionRetry || delivery.nackOpts.Delay != 2*time.Second {
		t.Fatalf("expected delayed requeue, got %#v", delivery.nackOpts)
	}
	if hook.count("retry") != 1 {
		t.Fatalf("expected retry hook, got %v", hook.events)
	}

	delivery = newApplyDelivery(t)
	_, _ = w.Handle(context.Background(), delivery, 3)
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %#v", delivery.nackOpts)
	}
}

func TestApplyWorker_DeadLettersCallerErrors(t *testing.T) {
	engine := &stubApplier{err: core.NewNotInstalledError("demo.myshopify.com")}
	hook := &capturingHook{}
	delivery := newApplyDelivery(t)

	if _, err := NewApplyWorker(engine, WithHook(hook)).Handle(context.Background(), delivery, 1); !core.IsNotInstalled(err) {
		t.Fatalf("expected not installed error, got %v", err)
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter, got %#v", delivery.nackOpts)
	}
	if hook.count("failure") != 1 {
		t.Fatalf("expected failure hook, got %v", hook.events)
	}
}

func TestApplyWorker_DeadLettersUndecodableMessages(t *testing.T) {
	engine := &stubApplier{}
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{
		JobID:      JobIDApply,
		Parameters: map[string]any{paramShop: "demo", paramChanges: "{not json"},
	}}
	if _, err := NewApplyWorker(engine).Handle(context.Background(), delivery, 1); err == nil {
		t.Fatalf("expected decode error")
	}
	if delivery.nackOpts.Disposition != queue.NackDispositionDeadLetter || engine.calls != 0 {
		t.Fatalf("expected dead letter without apply, got %#v calls=%d", delivery.nackOpts, engine.calls)
	}
}

func TestWithLogger_BridgesToGoJob(t *testing.T) {
	w := NewApplyWorker(&stubApplier{}, WithLogger(nil, nil))
	if w.JobLogger() == nil {
		t.Fatalf("expected go-job logger bridge")
	}
}

func newApplyDelivery(t *testing.T) *stubQueueDelivery {
	t.Helper()
	msg, err := NewApplyMessage(core.ApplyRequest{
		Shop:    "demo.myshopify.com",
		Changes: []core.Change{{ItemID: "gid://shopify/ProductVariant/1", Price: core.NewFieldValue("1.00")}},
	}, "idem")
	if err != nil {
		t.Fatalf("new apply message: %v", err)
	}
	return &stubQueueDelivery{msg: msg}
}

type stubApplier struct {
	result core.ApplyResult
	err    error
	last   core.ApplyRequest
	calls  int
}

func (s *stubApplier) Apply(_ context.Context, req core.ApplyRequest) (core.ApplyResult, error) {
	s.calls++
	s.last = req
	return s.result, s.err
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	s.last = msg
	return queue.EnqueueReceipt{DispatchID: "dispatch-1", EnqueuedAt: time.Now()}, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	mu     sync.Mutex
	events []string
}

func (h *capturingHook) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, name)
}

func (h *capturingHook) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, event := range h.events {
		if event == name {
			total++
		}
	}
	return total
}

func (h *capturingHook) OnStart(context.Context, worker.Event)   { h.record("start") }
func (h *capturingHook) OnSuccess(context.Context, worker.Event) { h.record("success") }
func (h *capturingHook) OnFailure(context.Context, worker.Event) { h.record("failure") }
func (h *capturingHook) OnRetry(context.Context, worker.Event)   { h.record("retry") }
