package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/api/option"

	httpadapter "github.com/kirillkom/docvault/internal/adapters/http"
	mcpadapter "github.com/kirillkom/docvault/internal/adapters/mcp"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/core/usecase"
	"github.com/kirillkom/docvault/internal/infrastructure/chunking"
	"github.com/kirillkom/docvault/internal/infrastructure/drive"
	"github.com/kirillkom/docvault/internal/infrastructure/export"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor/tesseract"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor/vision"
	"github.com/kirillkom/docvault/internal/infrastructure/llm/openai"
	"github.com/kirillkom/docvault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docvault/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
	"github.com/kirillkom/docvault/internal/infrastructure/storage/gcs"
	"github.com/kirillkom/docvault/internal/infrastructure/storage/localfs"
)

const spreadsheetMaxRows = 5000

type App struct {
	Config config.Config

	Queue    *nats.Queue
	Sessions *postgres.UserRepository

	IngestUC  *usecase.IngestFileUseCase
	CatalogUC *usecase.FileCatalogUseCase
	ProcessUC *usecase.ProcessFileUseCase
	RetryUC   *usecase.RetryUseCase
	SearchUC  *usecase.SearchUseCase
	ChatUC    *usecase.ChatUseCase
	ReportUC  *usecase.ReportUseCase
	AuthUC    *usecase.AuthUseCase

	closers []func()
}

type options struct {
	observer   func(step string, chars int, err error)
	resilience resilience.Observer
}

type Option func(*options)

// WithExtractionObserver is called after every extraction step attempt.
func WithExtractionObserver(fn func(step string, chars int, err error)) Option {
	return func(opts *options) {
		opts.observer = fn
	}
}

// WithResilienceObserver receives retry and circuit breaker events from outbound clients.
func WithResilienceObserver(o resilience.Observer) Option {
	return func(opts *options) {
		opts.resilience = o
	}
}

func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newStorage(ctx, cfg, app)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(
		resilience.FromSettings(cfg.ResilienceMaxAttempts, cfg.ResilienceBreakerOn),
		resilience.WithObserver(o.resilience),
	)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.Queue = queue
	app.closers = append(app.closers, queue.Close)

	llm := openai.New(openai.Options{
		BaseURL:            cfg.OpenAIBaseURL,
		APIKey:             cfg.OpenAIAPIKey,
		ChatModel:          cfg.OpenAIChatModel,
		EmbedModel:         cfg.OpenAIEmbedModel,
		EmbedDimensions:    cfg.EmbeddingDimensions,
		TranscribeModel:    cfg.OpenAITranscribeModel,
		Timeout:            time.Duration(cfg.OpenAITimeoutSeconds) * time.Second,
		ResilienceExecutor: executor,
	})
	analyzer := openai.NewAnalyzer(llm)
	embedder := openai.NewEmbedder(llm)
	generator := openai.NewGenerator(llm)

	steps, err := extractionSteps(ctx, cfg, llm, executor)
	if err != nil {
		return nil, err
	}
	chain := extractor.NewChain(storage, extractor.Options{
		MinChars:    cfg.MinExtractedChars,
		MaxBytes:    cfg.MaxProcessBytes,
		PageCounter: pdftext.PageCount,
		Observe:     o.observer,
	}, steps...)

	files := postgres.NewFileRepository(db)
	metadata := postgres.NewMetadataRepository(db)
	history := postgres.NewSearchHistoryRepository(db)
	users := postgres.NewUserRepository(db)
	app.Sessions = users

	var resolver ports.LinkResolver
	if cfg.DriveImportEnabled {
		resolver = drive.NewResolver(cfg.DriveBaseURL, time.Duration(cfg.OpenAITimeoutSeconds)*time.Second)
	}

	app.IngestUC = usecase.NewIngestFileUseCase(files, storage, queue, resolver, cfg.MaxUploadBytes)
	app.CatalogUC = usecase.NewFileCatalogUseCase(files, metadata, storage, cfg.StuckTimeout())
	app.ProcessUC = usecase.NewProcessFileUseCase(files, metadata, chain, analyzer, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), embedder, cfg.MaxEmbedChunks)
	app.RetryUC = usecase.NewRetryUseCase(files, queue, cfg.StuckTimeout(), cfg.MaxProcessingRetries)
	app.SearchUC = usecase.NewSearchUseCase(embedder, metadata, history, cfg.SearchDefaultLimit, cfg.SearchMinScore)
	app.ChatUC = usecase.NewChatUseCase(files, metadata, embedder, generator, cfg.ChatTopK, cfg.SearchMinScore)
	app.ReportUC = usecase.NewReportUseCase(files, metadata, export.NewXLSXReportWriter(), export.NewSCORMBuilder())
	app.AuthUC = usecase.NewAuthUseCase(users, cfg.SessionTTL())

	ok = true
	return app, nil
}

// HTTPServices exposes the use cases as the HTTP adapter's inbound ports.
func (a *App) HTTPServices() httpadapter.Services {
	return httpadapter.Services{
		Ingest:  a.IngestUC,
		Catalog: a.CatalogUC,
		Retry:   a.RetryUC,
		Search:  a.SearchUC,
		Chat:    a.ChatUC,
		Reports: a.ReportUC,
		Auth:    a.AuthUC,
	}
}

func (a *App) MCPServices() mcpadapter.Services {
	return mcpadapter.Services{
		Search:  a.SearchUC,
		Catalog: a.CatalogUC,
		Retry:   a.RetryUC,
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newStorage(ctx context.Context, cfg config.Config, app *App) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "gcs":
		var opts []option.ClientOption
		if cfg.GCSCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
		}
		storage, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSPrefix, opts...)
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		app.closers = append(app.closers, func() { _ = storage.Close() })
		return storage, nil
	default:
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		return storage, nil
	}
}

// extractionSteps orders the fallback chain from cheapest to most expensive.
func extractionSteps(ctx context.Context, cfg config.Config, llm *openai.Client, executor *resilience.Executor) ([]extractor.Step, error) {
	steps := []extractor.Step{
		plaintext.NewExtractor(),
		spreadsheet.NewExtractor(spreadsheetMaxRows),
		pdftext.NewExtractor(),
	}
	if cfg.WhisperEnabled {
		steps = append(steps, openai.NewTranscriber(llm))
	}
	if cfg.TesseractEnabled {
		steps = append(steps, tesseract.NewExtractor(tesseract.Options{
			Languages:         cfg.TesseractLanguages,
			MaxPages:          cfg.OCRMaxPages,
			Concurrency:       cfg.OCRConcurrency,
			DisablePreprocess: !cfg.TesseractPreprocess,
		}))
	}
	if cfg.VisionEnabled {
		var opts []option.ClientOption
		if cfg.VisionCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.VisionCredentialsFile))
		}
		v, err := vision.New(ctx, executor, opts...)
		if err != nil {
			return nil, fmt.Errorf("init vision client: %w", err)
		}
		steps = append(steps, v)
	}

	names := make([]string, 0, len(steps))
	for _, step := range steps {
		names = append(names, step.Name())
	}
	slog.Info("extraction_chain_configured", "steps", names)
	return steps, nil
}
