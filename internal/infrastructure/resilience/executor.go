package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// attempt is the explicit per-try state threaded through the retry loop.
// Concurrent executions of the same operation each carry their own value, so
// no mutable counters are shared between in-flight calls.
type attempt struct {
	operation string
	number    int
	max       int
	backoff   time.Duration
}

func (a attempt) last() bool { return a.number >= a.max }

func (a attempt) next(cfg Config) attempt {
	backoff := time.Duration(float64(a.backoff) * cfg.RetryMultiplier)
	if backoff > cfg.RetryMaxBackoff {
		backoff = cfg.RetryMaxBackoff
	}
	return attempt{
		operation: a.operation,
		number:    a.number + 1,
		max:       a.max,
		backoff:   backoff,
	}
}

// Executor runs operations under a retry policy and a per-operation circuit
// breaker. The breaker is keyed by operation name, so failure state is
// tracked per logical endpoint and cleared by that endpoint's next success.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.run(ctx, op, fn, classifier)
	}

	breaker := e.circuitBreaker(op, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.run(ctx, op, fn, classifier)
	})
	return err
}

func (e *Executor) run(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	state := attempt{
		operation: operation,
		number:    1,
		max:       e.cfg.RetryMaxAttempts,
		backoff:   e.cfg.RetryInitialBackoff,
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := classifier(err)
		if !class.Retryable || state.last() {
			return err
		}

		slog.Warn("retry_attempt",
			"operation", state.operation,
			"attempt", state.number,
			"max_attempts", state.max,
			"backoff_ms", float64(state.backoff.Microseconds())/1000.0,
			"error", err,
		)

		// Cancellation during the backoff wait must prevent the retried
		// request from ever being issued.
		if err := e.wait(ctx, state.backoff, err); err != nil {
			return err
		}

		state = state.next(e.cfg)
	}
}

func (e *Executor) wait(ctx context.Context, backoff time.Duration, cause error) error {
	if backoff <= 0 {
		return nil
	}
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return cause
	case <-timer.C:
		return nil
	}
}

func (e *Executor) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
