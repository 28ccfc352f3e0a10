package llm

import (
	"context"
	"fmt"
)

// DefaultMaxRetries validation retries after the first attempt.
const DefaultMaxRetries = 3

// Rejection is the previous attempt's output and why the predicate refused it.
type Rejection[T any] struct {
	Attempt int
	Value   T
	Err     error
}

// ExhaustedError is returned by Retry once every attempt was rejected.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no valid result after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Retry calls fn until accept returns nil, at most 1+retries times.
// An error from fn is fatal and returned as is; only predicate rejections are
// retried. fn receives the previous rejection (nil on the first attempt) so it
// can feed the failure back into the next request.
func Retry[T any](
	ctx context.Context,
	retries int,
	fn func(ctx context.Context, prev *Rejection[T]) (T, error),
	accept func(T) error,
) (T, int, error) {
	var zero T
	if retries < 0 {
		retries = 0
	}

	var prev *Rejection[T]
	attempts := 0
	for attempts < retries+1 {
		if err := ctx.Err(); err != nil {
			return zero, attempts, err
		}

		attempts++
		value, err := fn(ctx, prev)
		if err != nil {
			return zero, attempts, err
		}

		if err := accept(value); err != nil {
			prev = &Rejection[T]{Attempt: attempts, Value: value, Err: err}
			continue
		}
		return value, attempts, nil
	}

	return zero, attempts, &ExhaustedError{Attempts: attempts, Last: prev.Err}
}
