package transport

import (
	"math"
	"time"

	"github.com/goliatone/go-bulkedit/core"
	"github.com/sethvargo/go-retry"
)

// RetryPolicy is the throttle backoff schedule: the n-th retry (n from 0)
// waits min(BaseDelay * Factor^n, MaxDelay).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Factor     float64
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		Factor:     2,
		MaxDelay:   8 * time.Second,
	}
}

func RetryPolicyFromConfig(cfg core.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay(),
		Factor:     cfg.Factor,
		MaxDelay:   cfg.MaxDelay(),
	}.normalized()
}

func (p RetryPolicy) Delay(retry int) time.Duration {
	p = p.normalized()
	if retry < 0 {
		retry = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(retry))
	if p.MaxDelay > 0 && (delay > float64(p.MaxDelay) || math.IsInf(delay, 1)) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Backoff returns a fresh schedule that stops after MaxRetries waits.
func (p RetryPolicy) Backoff() retry.Backoff {
	p = p.normalized()
	next := 0
	schedule := retry.BackoffFunc(func() (time.Duration, bool) {
		delay := p.Delay(next)
		next++
		return delay, false
	})
	return retry.WithMaxRetries(uint64(p.MaxRetries), schedule)
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Factor < 1 {
		p.Factor = 1
	}
	if p.MaxDelay < 0 {
		p.MaxDelay = 0
	}
	return p
}
