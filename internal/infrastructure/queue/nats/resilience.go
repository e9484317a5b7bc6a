package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

// transientPublishErrors clear up once the client reconnects.
var transientPublishErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
}

// classifyPublishError retries connection-level failures. Payload and subject
// errors are permanent and count against the breaker.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	for _, transient := range transientPublishErrors {
		if errors.Is(err, transient) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// asTemporary marks retryable publish failures as domain.ErrTemporary so the
// upload is reported as 503 and the file stays pending for the stuck sweep.
func asTemporary(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyPublishError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "publish processing job", err)
	}
	return err
}
