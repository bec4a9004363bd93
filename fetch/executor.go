package fetch

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const (
	defaultMaxAttempts     = 3
	defaultBaseDelay       = 500 * time.Millisecond
	defaultMaxDelay        = 30 * time.Second
	defaultExponentialBase = 2.0
)

// Executor runs a single-source call under retry-with-backoff and circuit
// breaker gating. Every attempt is recorded against the source's health so
// the breaker sees individual attempts, not whole Execute calls.
type Executor struct {
	logger  types.Logger
	tracker types.SourceTracker
}

func NewExecutor(logger types.Logger, tracker types.SourceTracker) *Executor {
	return &Executor{
		logger:  logger,
		tracker: tracker,
	}
}

// Execute calls fn up to the source's configured attempt budget. Only
// retryable failures consume attempts; everything else propagates
// immediately. An open circuit fails fast without a network call.
func (e *Executor) Execute(ctx context.Context, source *types.SourceConfig, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	retry := retryParams(source)

	var lastErr error
	for attempt := 0; attempt < retry.maxAttempts; attempt++ {
		if e.tracker.IsOpen(source.Name) {
			return nil, types.Errorf(types.ErrCircuitOpen, "source %s circuit is open", source.Name)
		}

		start := time.Now()
		result, err := fn(ctx)
		duration := time.Since(start)

		e.tracker.RecordOutcome(source.Name, err == nil, duration)

		if err == nil {
			return result, nil
		}
		lastErr = err

		if !types.Retryable(err) {
			return nil, err
		}

		if attempt < retry.maxAttempts-1 {
			delay := backoffDelay(attempt, retry)
			e.logger.Debug("retrying source call",
				zap.String("source", source.Name),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, types.Errorf(types.ErrTimeout, "source %s: %v", source.Name, ctx.Err())
			}
		}
	}

	return nil, lastErr
}

type retrySettings struct {
	maxAttempts     int
	baseDelay       time.Duration
	maxDelay        time.Duration
	exponentialBase float64
	jitter          bool
}

func retryParams(source *types.SourceConfig) retrySettings {
	settings := retrySettings{
		maxAttempts:     defaultMaxAttempts,
		baseDelay:       defaultBaseDelay,
		maxDelay:        defaultMaxDelay,
		exponentialBase: defaultExponentialBase,
	}

	if source.Retry == nil {
		return settings
	}

	if source.Retry.MaxAttempts > 0 {
		settings.maxAttempts = source.Retry.MaxAttempts
	}
	if source.Retry.BaseDelay > 0 {
		settings.baseDelay = source.Retry.BaseDelay
	}
	if source.Retry.MaxDelay > 0 {
		settings.maxDelay = source.Retry.MaxDelay
	}
	if source.Retry.ExponentialBase > 0 {
		settings.exponentialBase = source.Retry.ExponentialBase
	}
	settings.jitter = source.Retry.Jitter

	return settings
}

// backoffDelay computes min(baseDelay * exponentialBase^attempt, maxDelay)
// with optional ±10% jitter.
func backoffDelay(attempt int, retry retrySettings) time.Duration {
	delay := time.Duration(float64(retry.baseDelay) * math.Pow(retry.exponentialBase, float64(attempt)))
	if delay > retry.maxDelay || delay <= 0 {
		delay = retry.maxDelay
	}

	if retry.jitter {
		delay = time.Duration(float64(delay) * (0.9 + 0.2*rand.Float64()))
	}

	return delay
}
