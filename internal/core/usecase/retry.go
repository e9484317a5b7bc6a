package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const stuckScanLimit = 200

type RetryUseCase struct {
	repo         ports.FileRepository
	queue        ports.MessageQueue
	stuckTimeout time.Duration
	maxRetries   int
	now          func() time.Time
}

func NewRetryUseCase(
	repo ports.FileRepository,
	queue ports.MessageQueue,
	stuckTimeout time.Duration,
	maxRetries int,
) *RetryUseCase {
	if stuckTimeout <= 0 {
		stuckTimeout = 10 * time.Minute
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryUseCase{
		repo:         repo,
		queue:        queue,
		stuckTimeout: stuckTimeout,
		maxRetries:   maxRetries,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (uc *RetryUseCase) ListStuck(ctx context.Context, userID string) ([]domain.File, error) {
	files, err := uc.repo.ListStuck(ctx, userID, uc.now().Add(-uc.stuckTimeout), stuckScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list stuck files: %w", err)
	}
	return files, nil
}

func (uc *RetryUseCase) RetryStuck(ctx context.Context, userID string) (domain.RetryReport, error) {
	report := domain.RetryReport{Requeued: []string{}, Failed: []string{}}

	stuck, err := uc.ListStuck(ctx, userID)
	if err != nil {
		return report, err
	}

	for _, file := range stuck {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if file.RetryCount >= uc.maxRetries {
			msg := fmt.Sprintf("retry limit exceeded after %d attempts", file.RetryCount)
			if err := uc.repo.TransitionStatus(ctx, file.ID, file.Status, domain.StatusError, msg); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", file.ID, err))
				continue
			}
			report.Failed = append(report.Failed, file.ID)
			continue
		}

		if _, err := uc.requeue(ctx, &file); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", file.ID, err))
			continue
		}
		report.Requeued = append(report.Requeued, file.ID)
	}

	if len(stuck) > 0 {
		slog.Info("stuck_files_retried",
			"user_id", userID,
			"found", len(stuck),
			"requeued", len(report.Requeued),
			"failed", len(report.Failed),
			"errors", len(report.Errors),
		)
	}
	return report, nil
}

func (uc *RetryUseCase) RetryFile(ctx context.Context, userID, id string) (*domain.File, error) {
	file, err := uc.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}

	if inFlight(file, uc.now(), uc.stuckTimeout) {
		return nil, domain.WrapError(domain.ErrConflict, "retry file", fmt.Errorf("file is already %s", file.Status))
	}
	return uc.requeue(ctx, file)
}

// inFlight reports whether a pending or processing file was touched recently enough
// that a worker may still own it.
func inFlight(file *domain.File, now time.Time, stuckTimeout time.Duration) bool {
	if file.Status != domain.StatusPending && file.Status != domain.StatusProcessing {
		return false
	}
	return file.UpdatedAt.After(now.Add(-stuckTimeout))
}

func (uc *RetryUseCase) requeue(ctx context.Context, file *domain.File) (*domain.File, error) {
	if !domain.CanTransition(file.Status, domain.StatusPending) {
		return nil, domain.WrapError(domain.ErrConflict, "requeue", fmt.Errorf("cannot retry from status %s", file.Status))
	}

	updated, err := uc.repo.Requeue(ctx, file.ID, file.Status)
	if err != nil {
		return nil, fmt.Errorf("reset status=pending: %w", err)
	}

	job := domain.ProcessingJob{
		FileID:     updated.ID,
		Attempt:    updated.RetryCount + 1,
		EnqueuedAt: uc.now(),
	}
	if err := uc.queue.PublishFileUploaded(ctx, job); err != nil {
		return nil, fmt.Errorf("publish processing job: %w", err)
	}
	return updated, nil
}
