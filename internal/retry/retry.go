package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"

	"github.com/cenkalti/backoff/v4"
)

// Class tells the retry loop what to do with a failed attempt.
type Class int

const (
	// Retryable covers network failures and 5xx responses.
	Retryable Class = iota
	// NonRetryable covers 4xx responses and local validation errors.
	NonRetryable
	// Cancelled means the caller gave up; no further attempts are made.
	Cancelled
)

func (c Class) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case NonRetryable:
		return "non-retryable"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Outcome is a classified failure. It is built once where the failure is
// observed (the HTTP boundary) and carried unchanged through the retry loop.
type Outcome struct {
	Class  Class
	Status int // HTTP status, 0 when no response was received.
	Err    error
}

func (o *Outcome) Error() string {
	if o.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", o.Class, o.Status, o.Err)
	}
	return fmt.Sprintf("%s: %v", o.Class, o.Err)
}

func (o *Outcome) Unwrap() error { return o.Err }

// Fail wraps err in an Outcome of the given class.
func Fail(class Class, status int, err error) error {
	return &Outcome{Class: class, Status: status, Err: err}
}

// Classify returns the class of err. Context cancellation is Cancelled and
// errors that carry no Outcome are treated as Retryable.
func Classify(err error) Class {
	if err == nil {
		return NonRetryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, kerrors.ErrCancelled) {
		return Cancelled
	}
	var o *Outcome
	if errors.As(err, &o) {
		return o.Class
	}
	return Retryable
}

// Policy bounds how often and how quickly an operation is retried.
type Policy struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration

	// OnRetry, when set, is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, delay time.Duration, err error)

	timer  backoff.Timer
	jitter func(max time.Duration) time.Duration
}

// DefaultPolicy returns 3 attempts, a 1s base delay and up to 500ms jitter.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxJitter: 500 * time.Millisecond}
}

// Delay returns the pause before attempt+1 excluding jitter.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// doubling is a backoff.BackOff yielding BaseDelay*2^n plus jitter.
type doubling struct {
	policy  Policy
	jitter  func(max time.Duration) time.Duration
	attempt int
}

func (d *doubling) NextBackOff() time.Duration {
	delay := d.policy.Delay(d.attempt) + d.jitter(d.policy.MaxJitter)
	d.attempt++
	return delay
}

func (d *doubling) Reset() { d.attempt = 0 }

// Do runs op until it succeeds, fails with a non-retryable or cancelled
// outcome, or MaxRetries attempts have been made. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = randomJitter
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&doubling{policy: p, jitter: jitter}, uint64(attempts-1)),
		ctx,
	)

	retries := 0
	notify := func(err error, delay time.Duration) {
		retries++
		if p.OnRetry != nil {
			p.OnRetry(retries, delay, err)
		}
	}

	stopped := false
	err := backoff.RetryNotifyWithTimer(func() error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			stopped = true
			return backoff.Permanent(Fail(Cancelled, 0, ctxErr))
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		switch Classify(err) {
		case Cancelled, NonRetryable:
			stopped = true
			return backoff.Permanent(err)
		}
		return err
	}, b, notify, p.timer)

	switch {
	case err == nil:
		return nil
	case stopped:
		return err
	case ctx.Err() != nil:
		return Fail(Cancelled, 0, ctx.Err())
	}
	return fmt.Errorf("giving up after %d attempts: %w", attempts, err)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
