package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/utils"
)

// ErrRetriesExhausted wraps the final provider error once the attempt
// budget is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

const (
	DefaultMaxAttempts = 3
	defaultBackoffUnit = time.Second
)

// Executor runs operations under a bounded retry policy with exponential
// backoff and jitter. The zero value is not usable; construct with New.
type Executor struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BackoffUnit scales the exponential delay. After failed attempt k the
	// executor waits (2^k + jitter) * BackoffUnit. Tests shrink this.
	BackoffUnit time.Duration
	// RetryIf decides whether an error is transient. Nil retries everything
	// except context cancellation.
	RetryIf func(error) bool

	jitter func() float64
}

func New(maxAttempts int) Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return Executor{
		MaxAttempts: maxAttempts,
		BackoffUnit: defaultBackoffUnit,
		jitter:      rand.Float64,
	}
}

func defaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Do invokes op until it succeeds or the attempt budget is spent. Every
// attempt is logged under the given operation name. The returned attempt
// count includes the final (successful or failed) attempt.
func Do[T any](ctx context.Context, ex Executor, name string, op func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	maxAttempts := ex.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	backoffUnit := ex.BackoffUnit
	if backoffUnit <= 0 {
		backoffUnit = defaultBackoffUnit
	}
	retryIf := ex.RetryIf
	if retryIf == nil {
		retryIf = defaultRetryIf
	}
	jitter := ex.jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	log := logging.NewLogger(ctx).WithFields(logging.Fields{"operation": name})
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, attempt - 1, utils.WrapIfNotNil(ctx.Err(), name)
		default:
		}

		log.Debugf("attempt %d/%d", attempt, maxAttempts)
		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Infof("succeeded after %d attempts", attempt)
			}
			return result, attempt, nil
		}
		lastErr = err

		if !retryIf(err) {
			log.Errorf("non-retryable error on attempt %d: %v", attempt, err)
			return zero, attempt, utils.WrapIfNotNil(err, name)
		}
		if attempt == maxAttempts {
			break
		}

		wait := backoff(attempt, backoffUnit, jitter())
		log.Warnf("attempt %d/%d failed: %v; retrying in %s", attempt, maxAttempts, err, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, utils.WrapIfNotNil(ctx.Err(), name)
		case <-timer.C:
		}
	}

	log.Errorf("all %d attempts failed, final error: %v", maxAttempts, lastErr)
	return zero, maxAttempts, utils.WrapIfNotNil(errors.Join(ErrRetriesExhausted, lastErr), name)
}

// DoFunc is Do for operations returning only an error.
func DoFunc(ctx context.Context, ex Executor, name string, op func(ctx context.Context) error) (int, error) {
	_, attempts, err := Do(ctx, ex, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return attempts, err
}

func backoff(attempt int, unit time.Duration, jitter float64) time.Duration {
	seconds := math.Pow(2, float64(attempt)) + jitter
	return time.Duration(seconds * float64(unit))
}
