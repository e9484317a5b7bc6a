package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

type ProcessFileUseCase struct {
	repo           ports.FileRepository
	metadata       ports.MetadataRepository
	extractor      ports.ContentExtractor
	analyzer       ports.Analyzer
	chunker        ports.Chunker
	embedder       ports.Embedder
	maxEmbedChunks int
}

func NewProcessFileUseCase(
	repo ports.FileRepository,
	metadata ports.MetadataRepository,
	extractor ports.ContentExtractor,
	analyzer ports.Analyzer,
	chunker ports.Chunker,
	embedder ports.Embedder,
	maxEmbedChunks int,
) *ProcessFileUseCase {
	if maxEmbedChunks <= 0 {
		maxEmbedChunks = 8
	}
	return &ProcessFileUseCase{
		repo:           repo,
		metadata:       metadata,
		extractor:      extractor,
		analyzer:       analyzer,
		chunker:        chunker,
		embedder:       embedder,
		maxEmbedChunks: maxEmbedChunks,
	}
}

func (uc *ProcessFileUseCase) ProcessJob(ctx context.Context, job domain.ProcessingJob) error {
	return uc.ProcessByID(ctx, job.FileID)
}

func (uc *ProcessFileUseCase) ProcessByID(ctx context.Context, fileID string) error {
	claimed, err := uc.claim(ctx, fileID)
	if err != nil || !claimed {
		return err
	}

	meta, err := uc.processPipeline(ctx, fileID)
	if err != nil {
		if failErr := uc.markFailed(ctx, fileID, err); failErr != nil {
			return errors.Join(err, fmt.Errorf("mark error status: %w", failErr))
		}
		return err
	}

	if err := uc.persistMetadata(ctx, meta); err != nil {
		if failErr := uc.markFailed(ctx, fileID, err); failErr != nil {
			return errors.Join(err, fmt.Errorf("mark error status: %w", failErr))
		}
		return err
	}

	if err := uc.repo.TransitionStatus(ctx, fileID, domain.StatusProcessing, domain.StatusCompleted, ""); err != nil {
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

// claim moves the file to processing. A false result with nil error means another
// delivery already owns or finished the file.
func (uc *ProcessFileUseCase) claim(ctx context.Context, fileID string) (bool, error) {
	err := uc.repo.TransitionStatus(ctx, fileID, domain.StatusPending, domain.StatusProcessing, "")
	if err == nil {
		return true, nil
	}
	if !domain.IsKind(err, domain.ErrConflict) {
		return false, fmt.Errorf("set status=processing: %w", err)
	}

	file, getErr := uc.repo.GetByID(ctx, "", fileID)
	if getErr != nil {
		return false, fmt.Errorf("set status=processing: %w", errors.Join(err, getErr))
	}
	switch file.Status {
	case domain.StatusProcessing, domain.StatusCompleted:
		slog.Info("duplicate_processing_job_skipped", "file_id", fileID, "status", file.Status)
		return false, nil
	default:
		return false, fmt.Errorf("set status=processing from %s: %w", file.Status, err)
	}
}

func (uc *ProcessFileUseCase) processPipeline(ctx context.Context, fileID string) (*domain.FileMetadata, error) {
	file, err := uc.repo.GetByID(ctx, "", fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch file by id: %w", err)
	}

	extraction, err := uc.extract(ctx, file)
	if err != nil {
		return nil, err
	}

	analysis, err := uc.analyze(ctx, file, extraction.Text)
	if err != nil {
		return nil, err
	}

	chunks, err := uc.chunk(extraction.Text)
	if err != nil {
		return nil, err
	}

	vector, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &domain.FileMetadata{
		FileID:           file.ID,
		Summary:          analysis.Summary,
		Keywords:         nonNil(analysis.Keywords),
		Topics:           nonNil(analysis.Topics),
		Categories:       nonNil(analysis.Categories),
		ExtractedText:    extraction.Text,
		ExtractionMethod: extraction.Method,
		PageCount:        extraction.PageCount,
		Embedding:        vector,
		Confidence:       clamp01(analysis.Confidence),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (uc *ProcessFileUseCase) extract(ctx context.Context, file *domain.File) (domain.Extraction, error) {
	extraction, err := uc.extractor.Extract(ctx, file)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract text: %w", err)
	}
	if extraction.Text == "" {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtractionFailed, "extract text", errors.New("empty extracted text"))
	}
	return extraction, nil
}

func (uc *ProcessFileUseCase) analyze(ctx context.Context, file *domain.File, text string) (domain.Analysis, error) {
	analysis, err := uc.analyzer.Analyze(ctx, file.OriginalName, text)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("analyze text: %w", err)
	}
	return analysis, nil
}

func (uc *ProcessFileUseCase) chunk(text string) ([]string, error) {
	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk text", errors.New("chunking produced zero chunks"))
	}
	if len(chunks) > uc.maxEmbedChunks {
		chunks = chunks[:uc.maxEmbedChunks]
	}
	return chunks, nil
}

func (uc *ProcessFileUseCase) embed(ctx context.Context, chunks []string) ([]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}
	pooled, err := meanPool(vectors)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed chunks", err)
	}
	return pooled, nil
}

func (uc *ProcessFileUseCase) persistMetadata(ctx context.Context, meta *domain.FileMetadata) error {
	if err := uc.metadata.Save(ctx, meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (uc *ProcessFileUseCase) markFailed(ctx context.Context, fileID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.repo.TransitionStatus(ctx, fileID, domain.StatusProcessing, domain.StatusError, processErr.Error())
}

// meanPool averages chunk vectors and L2-normalizes the result.
func meanPool(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, errors.New("no vectors to pool")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("empty embedding vector")
	}
	sum := make([]float64, dim)
	for _, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("embedding dimension mismatch: %d/%d", len(vec), dim)
		}
		for i, v := range vec {
			sum[i] += float64(v)
		}
	}

	var norm float64
	for i := range sum {
		sum[i] /= float64(len(vectors))
		norm += sum[i] * sum[i]
	}
	norm = math.Sqrt(norm)

	out := make([]float32, dim)
	for i, v := range sum {
		if norm > 0 {
			v /= norm
		}
		out[i] = float32(v)
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
