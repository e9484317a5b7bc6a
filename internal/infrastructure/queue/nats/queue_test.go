package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func TestJobCodecRoundTrip(t *testing.T) {
	enqueued := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	payload, err := EncodeJob(domain.ProcessingJob{FileID: "f-1", Attempt: 2, EnqueuedAt: enqueued})
	if err != nil {
		t.Fatalf("EncodeJob() error = %v", err)
	}

	job, err := DecodeJob(payload)
	if err != nil {
		t.Fatalf("DecodeJob() error = %v", err)
	}
	if job.FileID != "f-1" || job.Attempt != 2 || !job.EnqueuedAt.Equal(enqueued) {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	if _, err := DecodeJob([]byte("not msgpack")); err == nil {
		t.Fatalf("expected decode error")
	}
	empty, _ := EncodeJob(domain.ProcessingJob{})
	if _, err := DecodeJob(empty); err == nil {
		t.Fatalf("expected error for empty file id")
	}
}

func TestHandleMessageAppliesTimeoutAndReports(t *testing.T) {
	payload, _ := EncodeJob(domain.ProcessingJob{FileID: "f-1", Attempt: 1})

	var (
		hadDeadline bool
		reported    error
	)
	handler := func(ctx context.Context, job domain.ProcessingJob) error {
		_, hadDeadline = ctx.Deadline()
		return errors.New("boom")
	}
	handleMessage(context.Background(), payload, handler, Options{
		HandlerTimeout: time.Minute,
		OnHandled: func(_ domain.ProcessingJob, _ time.Duration, err error) {
			reported = err
		},
	})

	if !hadDeadline {
		t.Fatalf("expected handler context deadline")
	}
	if reported == nil || reported.Error() != "boom" {
		t.Fatalf("expected handler error to be reported, got %v", reported)
	}
}

func TestPublishErrorsBecomeTemporary(t *testing.T) {
	err := asTemporary(nats.ErrNoServers)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}

	plain := errors.New("bad subject")
	if got := asTemporary(plain); got != plain {
		t.Fatalf("expected non-retryable error to pass through, got %v", got)
	}

	if class := classifyPublishError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("context cancellation must not retry or trip the breaker")
	}
	if asTemporary(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

func TestReconnectingPublishIsRetryable(t *testing.T) {
	if class := classifyPublishError(nats.ErrConnectionReconnecting); !class.Retryable {
		t.Fatalf("publish during reconnect should be retried")
	}
	if class := classifyPublishError(nats.ErrMaxPayload); class.Retryable || !class.RecordFailure {
		t.Fatalf("oversized payload is permanent, got %+v", class)
	}
}
