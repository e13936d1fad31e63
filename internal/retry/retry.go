package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 5 * time.Second
	defaultMaxJitter   = 3 * time.Second
)

// Policy controls how Do retries a failing operation.
type Policy struct {
	MaxAttempts int           // total attempts including the first; <= 0 means 3
	BaseDelay   time.Duration // fixed wait before every retry
	MaxJitter   time.Duration // uniform random [0, MaxJitter) added to BaseDelay

	// Retryable filters which errors are retried. Nil retries every error.
	Retryable func(error) bool

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns the policy used for upstream reading-platform calls:
// three attempts, waiting 5s plus up to 3s of jitter between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxJitter:   defaultMaxJitter,
	}
}

// Func is an operation that can be retried.
type Func[T any] func(ctx context.Context) (T, error)

// sleep waits for d or until ctx is done. Tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds or the policy's attempts are exhausted. The
// error of the last attempt is returned unchanged so callers can still
// inspect it with errors.As. A cancelled context during a wait returns
// ctx.Err().
func Do[T any](ctx context.Context, p Policy, fn Func[T]) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts {
			return zero, err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}

		delay := p.delay()
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if werr := sleep(ctx, delay); werr != nil {
			return zero, werr
		}
	}
}

func (p Policy) delay() time.Duration {
	d := p.BaseDelay
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.MaxJitter)))
	}
	return d
}
