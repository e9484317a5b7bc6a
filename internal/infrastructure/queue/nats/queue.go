package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

const workerGroup = "workers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// HandlerTimeout bounds one job; zero leaves the handler unbounded.
	HandlerTimeout time.Duration
	OnHandled      func(job domain.ProcessingJob, duration time.Duration, err error)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docvault"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishFileUploaded(ctx context.Context, job domain.ProcessingJob) error {
	payload, err := EncodeJob(job)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return asTemporary(err)
	}
	return nil
}

// SubscribeFileUploaded joins the worker queue group and blocks until ctx is done,
// then drains in-flight messages.
func (q *Queue) SubscribeFileUploaded(ctx context.Context, handler func(context.Context, domain.ProcessingJob) error) error {
	return q.subscribe(ctx, handler, Options{})
}

func (q *Queue) SubscribeWithOptions(
	ctx context.Context,
	handler func(context.Context, domain.ProcessingJob) error,
	options Options,
) error {
	return q.subscribe(ctx, handler, options)
}

func (q *Queue) subscribe(
	ctx context.Context,
	handler func(context.Context, domain.ProcessingJob) error,
	options Options,
) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handleMessage(ctx, msg.Data, handler, options)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func handleMessage(
	ctx context.Context,
	data []byte,
	handler func(context.Context, domain.ProcessingJob) error,
	options Options,
) {
	job, err := DecodeJob(data)
	if err != nil {
		slog.Error("processing_job_decode_failed", "error", err, "bytes", len(data))
		return
	}

	var (
		handlerCtx context.Context
		cancel     context.CancelFunc
	)
	if options.HandlerTimeout > 0 {
		handlerCtx, cancel = context.WithTimeout(ctx, options.HandlerTimeout)
	} else {
		handlerCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	started := time.Now()
	err = handler(handlerCtx, job)
	if options.OnHandled != nil {
		options.OnHandled(job, time.Since(started), err)
	}
	if err != nil {
		slog.Error("processing_job_failed", "file_id", job.FileID, "attempt", job.Attempt, "error", err)
	}
}

func EncodeJob(job domain.ProcessingJob) ([]byte, error) {
	payload, err := msgpack.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode processing job: %w", err)
	}
	return payload, nil
}

func DecodeJob(data []byte) (domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	if err := msgpack.Unmarshal(data, &job); err != nil {
		return domain.ProcessingJob{}, fmt.Errorf("decode processing job: %w", err)
	}
	if job.FileID == "" {
		return domain.ProcessingJob{}, errors.New("decode processing job: empty file id")
	}
	return job, nil
}
