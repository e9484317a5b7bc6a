package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
)

const (
	featureDocumentText = "DOCUMENT_TEXT_DETECTION"
	// maxFilePages is the page limit of a synchronous files:annotate call.
	maxFilePages = 5
)

// Extractor sends images and the first PDF pages to Google Cloud Vision.
type Extractor struct {
	svc      *visionapi.Service
	executor *resilience.Executor
}

func New(ctx context.Context, executor *resilience.Executor, opts ...option.ClientOption) (*Extractor, error) {
	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &Extractor{svc: svc, executor: executor}, nil
}

func (e *Extractor) Name() string {
	return domain.MethodVision
}

func (e *Extractor) Supports(file *domain.File) bool {
	return file.Kind == domain.KindImage || file.MimeType == "application/pdf"
}

func (e *Extractor) Extract(ctx context.Context, file *domain.File, data []byte) (domain.Extraction, error) {
	content := base64.StdEncoding.EncodeToString(data)
	features := []*visionapi.Feature{{Type: featureDocumentText}}

	var out domain.Extraction
	call := func(ctx context.Context) error {
		var err error
		if file.MimeType == "application/pdf" {
			out, err = e.annotateFile(ctx, content, features)
		} else {
			out, err = e.annotateImage(ctx, content, features)
		}
		return err
	}

	var err error
	if e.executor != nil {
		err = e.executor.Execute(ctx, "vision.annotate", call, classifyVisionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		if classifyVisionError(err).Retryable {
			return domain.Extraction{}, domain.WrapError(domain.ErrTemporary, "vision annotate", err)
		}
		return domain.Extraction{}, fmt.Errorf("vision annotate: %w", err)
	}
	return out, nil
}

func (e *Extractor) annotateImage(ctx context.Context, content string, features []*visionapi.Feature) (domain.Extraction, error) {
	resp, err := e.svc.Images.Annotate(&visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:    &visionapi.Image{Content: content},
			Features: features,
		}},
	}).Context(ctx).Do()
	if err != nil {
		return domain.Extraction{}, err
	}
	if len(resp.Responses) == 0 {
		return domain.Extraction{}, errors.New("empty image response")
	}
	text, err := responseText(resp.Responses[0])
	if err != nil {
		return domain.Extraction{}, err
	}
	return domain.Extraction{Text: text, Method: domain.MethodVision, PageCount: 1}, nil
}

func (e *Extractor) annotateFile(ctx context.Context, content string, features []*visionapi.Feature) (domain.Extraction, error) {
	pages := make([]int64, 0, maxFilePages)
	for i := 1; i <= maxFilePages; i++ {
		pages = append(pages, int64(i))
	}

	resp, err := e.svc.Files.Annotate(&visionapi.BatchAnnotateFilesRequest{
		Requests: []*visionapi.AnnotateFileRequest{{
			InputConfig: &visionapi.InputConfig{Content: content, MimeType: "application/pdf"},
			Features:    features,
			Pages:       pages,
		}},
	}).Context(ctx).Do()
	if err != nil {
		return domain.Extraction{}, err
	}
	if len(resp.Responses) == 0 {
		return domain.Extraction{}, errors.New("empty file response")
	}
	fileResp := resp.Responses[0]
	if fileResp.Error != nil && fileResp.Error.Message != "" {
		return domain.Extraction{}, fmt.Errorf("vision file error %d: %s", fileResp.Error.Code, fileResp.Error.Message)
	}

	var b strings.Builder
	for i, page := range fileResp.Responses {
		text, err := responseText(page)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("page %d: %w", i+1, err)
		}
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", i+1, text)
	}
	return domain.Extraction{Text: b.String(), Method: domain.MethodVision, PageCount: int(fileResp.TotalPages)}, nil
}

func responseText(resp *visionapi.AnnotateImageResponse) (string, error) {
	if resp == nil {
		return "", nil
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", fmt.Errorf("vision error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.FullTextAnnotation == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.FullTextAnnotation.Text), nil
}

func classifyVisionError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
