package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-bulkedit/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDApply      = "bulkedit.apply"
	ScriptPathApply = "bulkedit/apply"

	paramShop        = "shop"
	paramDescription = "description"
	paramChanges     = "changes"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        5 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
// A missing disposition means retry. Retries past MaxAttempts become dead
// letters, or plain failures when DeadLetterOnMax is off.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
		return out
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	return out
}

// NewApplyMessage packs an apply request into a go-job execution message.
// Changes travel as a JSON string so queue backends that serialize
// parameters keep field values verbatim.
func NewApplyMessage(req core.ApplyRequest, idempotencyKey string) (*job.ExecutionMessage, error) {
	shop := strings.TrimSpace(req.Shop)
	if shop == "" {
		return nil, core.ErrMissingShop
	}
	changes, err := json.Marshal(req.Changes)
	if err != nil {
		return nil, fmt.Errorf("gojob: encode changes: %w", err)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDApply,
		ScriptPath: ScriptPathApply,
		Parameters: map[string]any{
			paramShop:        shop,
			paramDescription: req.Description,
			paramChanges:     string(changes),
		},
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    job.DedupPolicyDrop,
	}, nil
}

// ApplyRequestFromMessage is the inverse of NewApplyMessage.
func ApplyRequestFromMessage(msg *job.ExecutionMessage) (core.ApplyRequest, error) {
	if msg == nil {
		return core.ApplyRequest{}, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDApply {
		return core.ApplyRequest{}, fmt.Errorf("gojob: unexpected job id %q", msg.JobID)
	}
	req := core.ApplyRequest{
		Shop:        stringParam(msg.Parameters, paramShop),
		Description: stringParam(msg.Parameters, paramDescription),
	}
	raw := stringParam(msg.Parameters, paramChanges)
	if raw == "" {
		return req, nil
	}
	if err := json.Unmarshal([]byte(raw), &req.Changes); err != nil {
		return core.ApplyRequest{}, fmt.Errorf("gojob: decode changes: %w", err)
	}
	return req, nil
}

type ApplyEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewApplyEnqueuer(enqueuer queue.Enqueuer) *ApplyEnqueuer {
	return &ApplyEnqueuer{enqueuer: enqueuer}
}

func (a *ApplyEnqueuer) EnqueueApply(ctx context.Context, req core.ApplyRequest, idempotencyKey string) (queue.EnqueueReceipt, error) {
	if a == nil || a.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := NewApplyMessage(req, idempotencyKey)
	if err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return a.enqueuer.Enqueue(ctx, msg)
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if typed, ok := value.(string); ok {
		return typed
	}
	return fmt.Sprint(value)
}
