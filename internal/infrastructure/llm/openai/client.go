package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Options struct {
	BaseURL            string
	APIKey             string
	ChatModel          string
	EmbedModel         string
	EmbedDimensions    int
	TranscribeModel    string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL         string
	apiKey          string
	chatModel       string
	embedModel      string
	embedDims       int
	transcribeModel string
	httpClient      *http.Client
	executor        *resilience.Executor
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	chatModel := opts.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	embedModel := opts.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	transcribeModel := opts.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}
	return &Client{
		baseURL:         baseURL,
		apiKey:          opts.APIKey,
		chatModel:       chatModel,
		embedModel:      embedModel,
		embedDims:       opts.EmbedDimensions,
		transcribeModel: transcribeModel,
		httpClient:      &http.Client{Timeout: timeout},
		executor:        opts.ResilienceExecutor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, operation string, messages []chatMessage, jsonMode bool) (string, error) {
	req := chatRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: 0.2,
	}
	if jsonMode {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}

	var resp chatResponse
	if err := c.postJSON(ctx, "/chat/completions", req, &resp, operation); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai %s: empty choices", operation)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Analyzer asks the chat model for a structured description of a document.
type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) Analyze(ctx context.Context, filename, text string) (domain.Analysis, error) {
	raw, err := a.client.chat(ctx, "analyze", []chatMessage{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: buildAnalysisPrompt(filename, text)},
	}, true)
	if err != nil {
		return domain.Analysis{}, err
	}

	var result domain.Analysis
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &result); err != nil {
		return domain.Analysis{}, fmt.Errorf("parse analysis json: %w", err)
	}
	result.Keywords = dedupeStrings(result.Keywords)
	result.Topics = dedupeStrings(result.Topics)
	result.Categories = dedupeStrings(result.Categories)
	return result, nil
}

const embedBatchSize = 64

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]

		var resp embeddingResponse
		req := embeddingRequest{Model: e.client.embedModel, Input: batch, Dimensions: e.client.embedDims}
		if err := e.client.postJSON(ctx, "/embeddings", req, &resp, "embed"); err != nil {
			return nil, err
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embed: expected %d vectors, got %d", len(batch), len(resp.Data))
		}

		vectors := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) {
				return nil, fmt.Errorf("openai embed: index %d out of range", item.Index)
			}
			vectors[item.Index] = item.Embedding
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, sources []domain.SearchHit) (string, error) {
	return g.client.chat(ctx, "answer", []chatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: buildAnswerPrompt(question, sources)},
	}, false)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func dedupeStrings(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
