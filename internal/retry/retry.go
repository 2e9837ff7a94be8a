// Package retry runs target API calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/takak2166/confluence2openwebui/internal/logger"
	"github.com/takak2166/confluence2openwebui/internal/syncerr"
)

// Policy is immutable retry configuration shared by all container groups
type Policy struct {
	BackoffFactor float64       // Seconds; the delay before retry n is factor * 2^(n-1)
	MaxRetries    int           // Retries after the first attempt
	MaxBackoff    time.Duration // Ceiling for a single delay, 0 means none
	statusCodes   map[int]struct{}
	newTimer      func() backoff.Timer
}

// Option customizes a Policy
type Option func(*Policy)

// WithTimer replaces the real timer, mainly for tests. fn is called once per
// retry sequence.
func WithTimer(fn func() backoff.Timer) Option {
	return func(p *Policy) {
		p.newTimer = fn
	}
}

// NewPolicy creates a policy retrying the given HTTP status codes
func NewPolicy(backoffFactor float64, maxRetries int, maxBackoff time.Duration, statusCodes []int, opts ...Option) *Policy {
	p := &Policy{
		BackoffFactor: backoffFactor,
		MaxRetries:    maxRetries,
		MaxBackoff:    maxBackoff,
		statusCodes:   make(map[int]struct{}, len(statusCodes)),
	}
	for _, code := range statusCodes {
		p.statusCodes[code] = struct{}{}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retryable classifies an error. Network failures always retry, auth and
// validation failures never do, and HTTP failures retry when their status is
// in the configured set.
func (p *Policy) Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, syncerr.ErrCanceled), errors.Is(err, syncerr.ErrAuth),
		errors.Is(err, syncerr.ErrValidation), errors.Is(err, syncerr.ErrContentRead):
		return false
	case errors.Is(err, syncerr.ErrNetwork):
		return true
	}
	if code := syncerr.StatusCode(err); code != 0 {
		_, ok := p.statusCodes[code]
		return ok
	}
	return false
}

// exponential returns a fresh jitter-free backoff doubling from the factor
func (p *Policy) exponential() *backoff.ExponentialBackOff {
	maxInterval := p.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Duration(p.BackoffFactor * float64(time.Second)),
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Backoff returns the delay before retry number n, starting at 1
func (p *Policy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	b := p.exponential()
	var d time.Duration
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// retryAfter stretches the next delay to the server's Retry-After hint,
// still bounded by the ceiling.
type retryAfter struct {
	backoff.BackOff
	hint    time.Duration
	ceiling time.Duration
}

func (b *retryAfter) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
		if b.ceiling > 0 && next > b.ceiling {
			next = b.ceiling
		}
	}
	b.hint = 0
	return next
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or
// retries are exhausted. Each attempt runs on a context that ignores run
// cancellation, so an attempt in flight always finishes; cancellation is
// observed between attempts and reported as syncerr.ErrCanceled.
func (p *Policy) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Execute for operations that return a value
func Do[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attemptCtx := context.WithoutCancel(ctx)

	hinted := &retryAfter{BackOff: p.exponential(), ceiling: p.MaxBackoff}
	var b backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(hinted, uint64(p.MaxRetries))
	}

	attempts := 0
	operation := func() (T, error) {
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(syncerr.New(syncerr.ErrCanceled, op, err))
		}
		attempts++
		result, err := fn(attemptCtx)
		if err == nil {
			return result, nil
		}
		if !p.Retryable(err) {
			return zero, backoff.Permanent(err)
		}
		hinted.hint = syncerr.RetryAfter(err)
		return zero, err
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn("Retrying after transient failure", map[string]interface{}{
			"op":      op,
			"attempt": attempts,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
	}

	var timer backoff.Timer
	if p.newTimer != nil {
		timer = p.newTimer()
	}

	result, err := backoff.RetryNotifyWithTimerAndData(operation, backoff.WithContext(b, ctx), notify, timer)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, syncerr.ErrCanceled):
		return zero, err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Canceled while waiting between attempts
		return zero, syncerr.New(syncerr.ErrCanceled, op, err)
	}

	if p.Retryable(err) {
		logger.Warn("Retries exhausted", map[string]interface{}{
			"op":       op,
			"attempts": attempts,
			"error":    err.Error(),
		})
	}
	return zero, err
}
