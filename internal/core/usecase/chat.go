package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const chatContextChars = 12000

type ChatUseCase struct {
	files     ports.FileRepository
	metadata  ports.MetadataRepository
	embedder  ports.Embedder
	generator ports.AnswerGenerator
	topK      int
	minScore  float64
}

func NewChatUseCase(
	files ports.FileRepository,
	metadata ports.MetadataRepository,
	embedder ports.Embedder,
	generator ports.AnswerGenerator,
	topK int,
	minScore float64,
) *ChatUseCase {
	if topK <= 0 {
		topK = 5
	}
	return &ChatUseCase{
		files:     files,
		metadata:  metadata,
		embedder:  embedder,
		generator: generator,
		topK:      topK,
		minScore:  minScore,
	}
}

func (uc *ChatUseCase) Ask(ctx context.Context, req domain.ChatRequest) (*domain.Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("question is required"))
	}

	var (
		sources []domain.SearchHit
		err     error
	)
	if req.FileID != "" {
		sources, err = uc.fileContext(ctx, req.UserID, req.FileID)
	} else {
		sources, err = uc.searchContext(ctx, req.UserID, question)
	}
	if err != nil {
		return nil, err
	}

	text, err := uc.generator.GenerateAnswer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &domain.Answer{Text: text, Sources: sources}, nil
}

func (uc *ChatUseCase) fileContext(ctx context.Context, userID, fileID string) ([]domain.SearchHit, error) {
	file, err := uc.files.GetByID(ctx, userID, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch file: %w", err)
	}
	if file.Status != domain.StatusCompleted {
		return nil, domain.WrapError(domain.ErrConflict, "chat", fmt.Errorf("file is %s", file.Status))
	}
	meta, err := uc.metadata.Get(ctx, file.ID, true)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}

	return []domain.SearchHit{{
		FileID:       file.ID,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		Summary:      meta.Summary,
		Keywords:     meta.Keywords,
		Categories:   meta.Categories,
		TextPreview:  truncateRunes(meta.ExtractedText, chatContextChars),
		Score:        1,
	}}, nil
}

func (uc *ChatUseCase) searchContext(ctx context.Context, userID, question string) ([]domain.SearchHit, error) {
	vector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	hits, err := uc.metadata.SearchSimilar(ctx, vector, domain.SearchFilter{UserID: userID, MinScore: uc.minScore}, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	return hits, nil
}

func truncateRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
