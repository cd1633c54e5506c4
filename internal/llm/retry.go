package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryStep  = 10 * time.Second
)

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxRetries int
	Step       time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	step := p.Step
	if step <= 0 {
		step = DefaultRetryStep
	}
	var b backoff.BackOff = &linearBackOff{step: step}
	// WithMaxRetries treats 0 as unlimited
	if p.MaxRetries <= 0 {
		b = &backoff.StopBackOff{}
	} else {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	return backoff.WithContext(b, ctx)
}
