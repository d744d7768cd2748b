// Package retry runs an operation a bounded number of times, retrying only
// on an explicit allow-list of error kinds.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures Do.
type Policy struct {
	// Attempts is the total number of calls, including the first. Values
	// below 1 are treated as 1.
	Attempts int

	// On lists the error kinds that allow another attempt, matched with
	// errors.Is. Any other error is returned at once.
	On []error

	// Delay is the pause between attempts. Zero retries immediately.
	Delay time.Duration

	// OnFailure, if set, is called after every failed attempt with the
	// 1-based attempt number.
	OnFailure func(attempt int, err error)
}

func (p Policy) retryable(err error) bool {
	for _, kind := range p.On {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// Do calls fn until it succeeds, returns an error outside p.On, or p.Attempts
// calls have been made. The last error is returned unwrapped. A done context
// stops further attempts and its error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)

	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.Delay > 0 {
		b = backoff.NewConstantBackOff(p.Delay)
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	operation := func() (T, error) {
		attempt++

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}
		if !p.retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.RetryWithData(operation, b)
}
