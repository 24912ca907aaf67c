package flowerrors

import (
	"context"
	"math"
	"sync"
	"time"

	crdb "github.com/cockroachdb/errors"
	"github.com/zoobzio/clockz"

	"github.com/lguimbarda/chunkflow/flow/core"
)

// ErrMaxRetries is returned when the maximum number of retries has been exceeded.
var ErrMaxRetries = crdb.New("max retries exceeded")

// ErrCircuitOpen is returned when a circuit breaker is in the open state.
var ErrCircuitOpen = core.WithKind(crdb.New("circuit breaker is open"), core.KindResource)

// BackoffStrategy defines how to calculate delay between retries.
type BackoffStrategy func(attempt int) time.Duration

// ConstantBackoff returns a BackoffStrategy that always waits the same duration.
func ConstantBackoff(delay time.Duration) BackoffStrategy {
	return func(int) time.Duration {
		return delay
	}
}

// LinearBackoff returns a BackoffStrategy that increases delay linearly.
func LinearBackoff(initialDelay time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		return time.Duration(attempt+1) * initialDelay
	}
}

// ExponentialBackoff returns a BackoffStrategy that doubles delay each attempt.
// The delay is capped at maxDelay if provided (use 0 for no cap).
func ExponentialBackoff(initialDelay, maxDelay time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		delay := initialDelay * time.Duration(math.Pow(2, float64(attempt)))
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
		return delay
	}
}

type retryConfig struct {
	backoff     BackoffStrategy
	shouldRetry func(err error, attempt int) bool
	clock       clockz.Clock
}

// RetryOption configures Retry.
type RetryOption func(*retryConfig)

// WithBackoff waits between attempts according to strategy.
func WithBackoff(strategy BackoffStrategy) RetryOption {
	return func(c *retryConfig) { c.backoff = strategy }
}

// RetryIf retries only while shouldRetry returns true. attempt is 0-indexed.
func RetryIf(shouldRetry func(err error, attempt int) bool) RetryOption {
	return func(c *retryConfig) { c.shouldRetry = shouldRetry }
}

// WithClock sets the clock used to wait between attempts.
func WithClock(clock clockz.Clock) RetryOption {
	return func(c *retryConfig) { c.clock = clock }
}

// retriesExhausted reports the last failure of an exhausted Retry. It is
// both ErrMaxRetries and the last error.
type retriesExhausted struct {
	last error
}

func (e *retriesExhausted) Error() string {
	return ErrMaxRetries.Error() + ": " + e.last.Error()
}

func (e *retriesExhausted) Is(target error) bool { return target == ErrMaxRetries }

func (e *retriesExhausted) Unwrap() error { return e.last }

// Retry creates a Converter that runs operation on each chunk, retrying up
// to maxRetries times. Cancellation and invalid input are never retried.
// When every attempt fails, the error reported matches both ErrMaxRetries
// and the last failure.
func Retry[T, OUT any](maxRetries int, operation func(context.Context, T) (OUT, error), opts ...RetryOption) core.Converter[T, OUT] {
	if maxRetries < 0 {
		maxRetries = 0
	}
	cfg := retryConfig{
		shouldRetry: func(err error, _ int) bool {
			k := core.KindOf(err)
			return k != core.KindCancelled && k != core.KindInvalidInput
		},
		clock: clockz.RealClock,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return core.Convert(func(ctx context.Context, chunk T) (OUT, bool, error) {
		var zero OUT
		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if err := ctx.Err(); err != nil {
				return zero, false, core.WithKind(err, core.KindCancelled)
			}
			result, err := operation(ctx, chunk)
			if err == nil {
				return result, true, nil
			}
			lastErr = err
			if attempt == maxRetries || !cfg.shouldRetry(err, attempt) {
				break
			}
			if cfg.backoff != nil {
				select {
				case <-ctx.Done():
					return zero, false, core.WithKind(ctx.Err(), core.KindCancelled)
				case <-cfg.clock.After(cfg.backoff(attempt)):
				}
			}
		}
		if maxRetries > 0 && core.KindOf(lastErr) != core.KindCancelled {
			lastErr = &retriesExhausted{last: lastErr}
		}
		return zero, false, lastErr
	})
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops calling a failing operation for resetTimeout after
// failureThreshold consecutive failures, then lets calls through again one
// at a time until halfOpenSuccesses of them succeed.
type CircuitBreaker[T, OUT any] struct {
	operation         func(context.Context, T) (OUT, error)
	failureThreshold  int
	resetTimeout      time.Duration
	halfOpenSuccesses int
	clock             clockz.Clock

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker[T, OUT any](
	operation func(context.Context, T) (OUT, error),
	failureThreshold int,
	resetTimeout time.Duration,
	halfOpenSuccesses int,
) *CircuitBreaker[T, OUT] {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	if halfOpenSuccesses <= 0 {
		halfOpenSuccesses = 1
	}

	return &CircuitBreaker[T, OUT]{
		operation:         operation,
		failureThreshold:  failureThreshold,
		resetTimeout:      resetTimeout,
		halfOpenSuccesses: halfOpenSuccesses,
		clock:             clockz.RealClock,
	}
}

// WithClock sets the clock used to time the open state.
func (cb *CircuitBreaker[T, OUT]) WithClock(clock clockz.Clock) *CircuitBreaker[T, OUT] {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.clock = clock
	return cb
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker[T, OUT]) Execute(ctx context.Context, value T) (OUT, error) {
	cb.mu.Lock()
	if cb.state == CircuitOpen && cb.clock.Since(cb.lastFailure) >= cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.successes = 0
	}
	if cb.state == CircuitOpen {
		cb.mu.Unlock()
		var zero OUT
		return zero, ErrCircuitOpen
	}
	cb.mu.Unlock()

	result, err := cb.operation(ctx, value)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.clock.Now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
		return result, err
	}

	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.halfOpenSuccesses {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	} else {
		cb.failures = 0
	}
	return result, nil
}

// State returns the current circuit state.
func (cb *CircuitBreaker[T, OUT]) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Converter runs every chunk through the breaker.
func (cb *CircuitBreaker[T, OUT]) Converter() core.Converter[T, OUT] {
	return core.Convert(func(ctx context.Context, chunk T) (OUT, bool, error) {
		out, err := cb.Execute(ctx, chunk)
		return out, err == nil, err
	})
}

// FallbackValue creates a Transformer that replaces errors with a default value.
func FallbackValue[T any](defaultValue T) core.Transformer[T, T] {
	return CatchError(func(error) bool { return true }, func(error) (T, error) {
		return defaultValue, nil
	})
}

// RecoverPanic replaces errors caused by a panicking transform with the
// result of recoverFn.
func RecoverPanic[T any](recoverFn func(panicValue any) (T, error)) core.Transformer[T, T] {
	return CatchError(
		func(err error) bool {
			var p core.ErrPanic
			return crdb.As(err, &p)
		},
		func(err error) (T, error) {
			var p core.ErrPanic
			crdb.As(err, &p)
			return recoverFn(p.Value)
		},
	)
}
