package core

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// FixedPacer waits a constant pause before each call.
type FixedPacer struct {
	Pause time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewFixedPacer(pause time.Duration) *FixedPacer {
	return &FixedPacer{Pause: pause}
}

func (p *FixedPacer) Wait(ctx context.Context) error {
	if p == nil || p.Pause <= 0 {
		return nil
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return sleep(ctx, p.Pause)
}

// TokenBucketPacer paces batches with a token bucket sized to the remote
// service's documented request rate.
type TokenBucketPacer struct {
	limiter *rate.Limiter
}

func NewTokenBucketPacer(requestsPerSecond float64, burst int) *TokenBucketPacer {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	// the first batch runs immediately, the bucket only governs the gaps.
	limiter.AllowN(time.Now(), burst)
	return &TokenBucketPacer{limiter: limiter}
}

func (p *TokenBucketPacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func PacerFromConfig(cfg Config) Pacer {
	switch strings.TrimSpace(strings.ToLower(cfg.Pacing.Mode)) {
	case PacingModeTokenBucket:
		return NewTokenBucketPacer(cfg.Pacing.RequestsPerSecond, cfg.Pacing.Burst)
	default:
		return NewFixedPacer(cfg.InterBatchPause())
	}
}

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ Pacer = (*FixedPacer)(nil)
	_ Pacer = (*TokenBucketPacer)(nil)
)
