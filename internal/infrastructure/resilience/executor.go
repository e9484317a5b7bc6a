package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor what to do with a failed call.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
	// RetryAfter is a server hint for the next attempt, such as a 429 Retry-After header.
	RetryAfter time.Duration
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives retry and breaker events. Either callback may be nil.
type Observer struct {
	OnRetry       func(operation string, attempt int, err error)
	OnStateChange func(operation, from, to string)
}

type Option func(*Executor)

func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// Executor runs outbound calls with bounded exponential retries behind one
// circuit breaker per operation name.
type Executor struct {
	cfg      Config
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: %s: operation callback is nil", operation)
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = failFast
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, fn, classifier)
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, op, fn, classifier)
	})
	return err
}

// BreakerState reports the breaker state for operation, or "" if none exists yet.
func (e *Executor) BreakerState(operation string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[operation]; ok {
		return b.State().String()
	}
	return ""
}

func (e *Executor) retry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	backoff := e.cfg.RetryInitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		class := classifier(err)
		if !class.Retryable || attempt >= e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.wait(backoff, class.RetryAfter)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.observer.OnRetry != nil {
			e.observer.OnRetry(operation, attempt, err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}
}

func (e *Executor) wait(backoff, retryAfter time.Duration) time.Duration {
	wait := min(backoff, e.cfg.RetryMaxBackoff)
	if e.cfg.RetryJitter > 0 {
		wait -= time.Duration(float64(wait) * e.cfg.RetryJitter * rand.Float64())
	}
	if retryAfter > wait {
		wait = min(retryAfter, e.cfg.RetryAfterCap)
	}
	return wait
}

func (e *Executor) breaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.breakers[operation]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if e.observer.OnStateChange != nil {
				e.observer.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	e.breakers[operation] = b
	return b
}

// IsCircuitOpen reports whether err came from a breaker rejecting the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func failFast(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
