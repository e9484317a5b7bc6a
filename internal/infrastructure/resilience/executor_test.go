package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func retryable(target error) ErrorClassifier {
	return func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, target), RecordFailure: true}
	}
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	var retried []int
	exec := NewExecutor(fastConfig(), WithObserver(Observer{
		OnRetry: func(_ string, attempt int, _ error) { retried = append(retried, attempt) },
	}))

	errBusy := errors.New("busy")
	calls := 0
	err := exec.Execute(context.Background(), "openai.embeddings", func(context.Context) error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	}, retryable(errBusy))
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("unexpected retry notifications: %v", retried)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastConfig())

	errBusy := errors.New("busy")
	calls := 0
	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		calls++
		return errBusy
	}, retryable(errBusy))
	if !errors.Is(err, errBusy) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestPermanentFailureIsNotRetried(t *testing.T) {
	exec := NewExecutor(fastConfig())

	errBadRequest := errors.New("bad request")
	calls := 0
	err := exec.Execute(context.Background(), "openai.chat", func(context.Context) error {
		calls++
		return errBadRequest
	}, nil)
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryInitialBackoff = time.Second
	cfg.RetryMaxBackoff = time.Second
	exec := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errBusy := errors.New("busy")
	calls := 0
	err := exec.Execute(ctx, "vision.annotate", func(context.Context) error {
		calls++
		cancel()
		return errBusy
	}, retryable(errBusy))
	if !errors.Is(err, errBusy) {
		t.Fatalf("expected last error after cancel, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWaitHonoursRetryAfterUpToCap(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryAfterCap = 50 * time.Millisecond
	exec := NewExecutor(cfg)

	if got := exec.wait(time.Millisecond, 20*time.Millisecond); got != 20*time.Millisecond {
		t.Fatalf("expected Retry-After to stretch wait, got %v", got)
	}
	if got := exec.wait(time.Millisecond, time.Minute); got != 50*time.Millisecond {
		t.Fatalf("expected Retry-After to be capped, got %v", got)
	}
	if got := exec.wait(time.Second, 0); got != 2*time.Millisecond {
		t.Fatalf("expected backoff to be capped at max, got %v", got)
	}
}

func TestJitterOnlyShortensWait(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxBackoff = 100 * time.Millisecond
	cfg.RetryJitter = 0.5
	exec := NewExecutor(cfg)

	for i := 0; i < 50; i++ {
		got := exec.wait(100*time.Millisecond, 0)
		if got > 100*time.Millisecond || got <= 50*time.Millisecond {
			t.Fatalf("jittered wait out of range: %v", got)
		}
	}
}

func TestBreakerOpensAndReportsStateChange(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []string
	)
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg, WithObserver(Observer{
		OnStateChange: func(op, from, to string) {
			mu.Lock()
			transitions = append(transitions, op+":"+from+"->"+to)
			mu.Unlock()
		},
	}))

	errDown := errors.New("down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "openai.chat", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected downstream error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "openai.chat", func(context.Context) error {
		t.Fatalf("open breaker must not call the operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if got := exec.BreakerState("openai.chat"); got != "open" {
		t.Fatalf("expected open breaker, got %q", got)
	}
	if exec.BreakerState("openai.embeddings") != "" {
		t.Fatalf("unused operation must not have a breaker")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "openai.chat:closed->open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(5, false)
	if cfg.RetryMaxAttempts != 5 || cfg.BreakerEnabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	cfg = FromSettings(0, true)
	if cfg.RetryMaxAttempts != DefaultConfig().RetryMaxAttempts || !cfg.BreakerEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
