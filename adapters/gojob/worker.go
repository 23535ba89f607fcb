package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-bulkedit/adapters/gologger"
	"github.com/goliatone/go-bulkedit/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultRetryDelay = 30 * time.Second

type Applier interface {
	Apply(ctx context.Context, req core.ApplyRequest) (core.ApplyResult, error)
}

type WorkerOption func(*ApplyWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *ApplyWorker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *ApplyWorker) {
		w.hook = hook
	}
}

func WithLogger(provider glog.LoggerProvider, logger glog.Logger) WorkerOption {
	return func(w *ApplyWorker) {
		_, resolved, _, jobLogger := gologger.ResolveForJob("bulkedit.worker", provider, logger)
		w.logger = resolved
		w.jobLogger = jobLogger
	}
}

func WithRetryDelay(delay time.Duration) WorkerOption {
	return func(w *ApplyWorker) {
		if delay > 0 {
			w.retryDelay = delay
		}
	}
}

// ApplyWorker runs queued apply requests through the engine. Throttle and
// transport failures are requeued with a bounded policy; anything the caller
// must fix is dead lettered.
type ApplyWorker struct {
	engine     Applier
	policy     RetryPolicy
	hook       worker.Hook
	logger     glog.Logger
	jobLogger  job.Logger
	retryDelay time.Duration
	now        func() time.Time
}

func NewApplyWorker(engine Applier, opts ...WorkerOption) *ApplyWorker {
	w := &ApplyWorker{
		engine:     engine,
		policy:     DefaultRetryPolicy(),
		logger:     glog.Nop(),
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(w)
	}
	return w
}

// JobLogger exposes the go-job view of the worker logger for queue runtimes.
func (w *ApplyWorker) JobLogger() job.Logger {
	if w == nil {
		return nil
	}
	return w.jobLogger
}

// Handle processes one delivery. attempt starts at 1.
func (w *ApplyWorker) Handle(ctx context.Context, delivery queue.Delivery, attempt int) (core.ApplyResult, error) {
	if w == nil || w.engine == nil {
		return core.ApplyResult{}, fmt.Errorf("gojob: apply worker is not configured")
	}
	if delivery == nil {
		return core.ApplyResult{}, fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	startedAt := w.now()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	w.emit(ctx, w.onStart, event)

	req, err := ApplyRequestFromMessage(msg)
	if err != nil {
		event.Err = err
		event.Duration = w.now().Sub(startedAt)
		w.emit(ctx, w.onFailure, event)
		nackErr := delivery.Nack(ctx, w.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      err.Error(),
		}, attempt))
		if nackErr != nil {
			return core.ApplyResult{}, nackErr
		}
		return core.ApplyResult{}, err
	}

	result, applyErr := w.engine.Apply(ctx, req)
	event.Duration = w.now().Sub(startedAt)
	if applyErr == nil {
		w.logger.Info("queued bulk apply done",
			"shop", req.Shop,
			"batch_id", result.BatchID,
			"success", result.SuccessCount,
			"errors", result.ErrorCount,
		)
		w.emit(ctx, w.onSuccess, event)
		return result, delivery.Ack(ctx)
	}

	event.Err = applyErr
	opts := queue.NackOptions{
		Disposition: queue.NackDispositionDeadLetter,
		Reason:      applyErr.Error(),
	}
	if retryable(applyErr) {
		opts.Disposition = queue.NackDispositionRetry
		opts.Delay = w.retryDelay * time.Duration(max(attempt, 1))
	}
	normalized := w.policy.NormalizeAttempt(opts, attempt)
	event.Delay = normalized.Delay
	if normalized.Disposition == queue.NackDispositionRetry {
		w.emit(ctx, w.onRetry, event)
	} else {
		w.emit(ctx, w.onFailure, event)
	}
	w.logger.Warn("queued bulk apply failed",
		"shop", req.Shop,
		"attempt", attempt,
		"disposition", string(normalized.Disposition),
		"delay_ms", normalized.Delay.Milliseconds(),
		"error", applyErr,
	)
	if err := delivery.Nack(ctx, normalized); err != nil {
		return result, err
	}
	return result, applyErr
}

func retryable(err error) bool {
	return core.IsThrottleExceeded(err) || core.IsTransportFailure(err)
}

func (w *ApplyWorker) onStart(ctx context.Context, event worker.Event)   { w.hook.OnStart(ctx, event) }
func (w *ApplyWorker) onSuccess(ctx context.Context, event worker.Event) { w.hook.OnSuccess(ctx, event) }
func (w *ApplyWorker) onFailure(ctx context.Context, event worker.Event) { w.hook.OnFailure(ctx, event) }
func (w *ApplyWorker) onRetry(ctx context.Context, event worker.Event)   { w.hook.OnRetry(ctx, event) }

func (w *ApplyWorker) emit(ctx context.Context, fn func(context.Context, worker.Event), event worker.Event) {
	if w.hook == nil {
		return
	}
	fn(ctx, event)
}
