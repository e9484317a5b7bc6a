package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func fileWith(id string, status domain.ProcessingStatus, retries int, updatedAgo time.Duration) domain.File {
	updated := time.Now().UTC().Add(-updatedAgo)
	return domain.File{
		ID:         id,
		UserID:     "u1",
		Status:     status,
		RetryCount: retries,
		CreatedAt:  updated,
		UpdatedAt:  updated,
	}
}

func TestRetryStuckRequeuesAndFails(t *testing.T) {
	repo := newMemoryFileRepo(
		fileWith("a", domain.StatusPending, 0, time.Hour),
		fileWith("b", domain.StatusProcessing, 1, time.Hour),
		fileWith("c", domain.StatusProcessing, 3, time.Hour),
		fileWith("d", domain.StatusProcessing, 0, time.Minute),
		fileWith("e", domain.StatusCompleted, 0, time.Hour),
	)
	queue := &recordingQueue{}
	uc := NewRetryUseCase(repo, queue, 10*time.Minute, 3)

	report, err := uc.RetryStuck(context.Background(), "")
	if err != nil {
		t.Fatalf("RetryStuck() error = %v", err)
	}
	if strings.Join(report.Requeued, ",") != "a,b" {
		t.Fatalf("unexpected requeued %v", report.Requeued)
	}
	if strings.Join(report.Failed, ",") != "c" {
		t.Fatalf("unexpected failed %v", report.Failed)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("unexpected errors %v", report.Errors)
	}

	if repo.status("a") != domain.StatusPending || repo.files["a"].RetryCount != 1 {
		t.Fatalf("expected a requeued with retry count 1, got %+v", repo.files["a"])
	}
	if repo.status("c") != domain.StatusError || !strings.Contains(repo.files["c"].Error, "retry limit exceeded") {
		t.Fatalf("expected c failed with retry limit, got %+v", repo.files["c"])
	}
	if repo.status("d") != domain.StatusProcessing {
		t.Fatalf("fresh processing file must be left alone")
	}
	if len(queue.jobs) != 2 || queue.jobs[1].FileID != "b" || queue.jobs[1].Attempt != 3 {
		t.Fatalf("unexpected jobs %+v", queue.jobs)
	}
}

func TestRetryStuckCollectsPublishErrors(t *testing.T) {
	repo := newMemoryFileRepo(fileWith("a", domain.StatusPending, 0, time.Hour))
	uc := NewRetryUseCase(repo, &recordingQueue{err: errors.New("nats down")}, time.Minute, 3)

	report, err := uc.RetryStuck(context.Background(), "u1")
	if err != nil {
		t.Fatalf("RetryStuck() error = %v", err)
	}
	if len(report.Errors) != 1 || len(report.Requeued) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRetryFile(t *testing.T) {
	repo := newMemoryFileRepo(
		fileWith("err", domain.StatusError, 0, time.Minute),
		fileWith("busy", domain.StatusProcessing, 0, time.Minute),
		fileWith("stale", domain.StatusProcessing, 0, time.Hour),
		fileWith("fresh", domain.StatusPending, 0, time.Minute),
	)
	queue := &recordingQueue{}
	uc := NewRetryUseCase(repo, queue, 10*time.Minute, 3)

	file, err := uc.RetryFile(context.Background(), "u1", "err")
	if err != nil {
		t.Fatalf("RetryFile(err) error = %v", err)
	}
	if file.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", file.Status)
	}

	if _, err := uc.RetryFile(context.Background(), "u1", "busy"); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for active processing, got %v", err)
	}

	if _, err := uc.RetryFile(context.Background(), "u1", "fresh"); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for a recently queued file, got %v", err)
	}
	if repo.files["fresh"].RetryCount != 0 {
		t.Fatalf("recently queued file must not be requeued, got %+v", repo.files["fresh"])
	}

	if _, err := uc.RetryFile(context.Background(), "u1", "stale"); err != nil {
		t.Fatalf("RetryFile(stale) error = %v", err)
	}

	if _, err := uc.RetryFile(context.Background(), "someone-else", "err"); !domain.IsKind(err, domain.ErrFileNotFound) {
		t.Fatalf("expected not found for foreign file, got %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(queue.jobs))
	}
}

func TestListStuckUsesTimeout(t *testing.T) {
	repo := newMemoryFileRepo(
		fileWith("old", domain.StatusPending, 0, 20*time.Minute),
		fileWith("new", domain.StatusPending, 0, 5*time.Minute),
	)
	uc := NewRetryUseCase(repo, &recordingQueue{}, 10*time.Minute, 3)

	files, err := uc.ListStuck(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListStuck() error = %v", err)
	}
	if len(files) != 1 || files[0].ID != "old" {
		t.Fatalf("unexpected stuck files %+v", files)
	}
}
