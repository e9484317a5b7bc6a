package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const reportPageSize = 200

type ReportUseCase struct {
	files    ports.FileRepository
	metadata ports.MetadataRepository
	xlsx     ports.FilesReportWriter
	scorm    ports.PackageBuilder
}

func NewReportUseCase(
	files ports.FileRepository,
	metadata ports.MetadataRepository,
	xlsx ports.FilesReportWriter,
	scorm ports.PackageBuilder,
) *ReportUseCase {
	return &ReportUseCase{
		files:    files,
		metadata: metadata,
		xlsx:     xlsx,
		scorm:    scorm,
	}
}

func (uc *ReportUseCase) WriteFilesReport(ctx context.Context, userID string, w io.Writer) error {
	var all []domain.FileSummary
	for offset := 0; ; offset += reportPageSize {
		page, err := uc.files.List(ctx, domain.FileQuery{UserID: userID, Limit: reportPageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("list files for report: %w", err)
		}
		all = append(all, page...)
		if len(page) < reportPageSize {
			break
		}
	}

	if err := uc.xlsx.WriteFilesReport(w, all); err != nil {
		return fmt.Errorf("write files report: %w", err)
	}
	return nil
}

func (uc *ReportUseCase) WriteSCORMPackage(ctx context.Context, userID, fileID string, w io.Writer) error {
	file, err := uc.files.GetByID(ctx, userID, fileID)
	if err != nil {
		return fmt.Errorf("fetch file: %w", err)
	}
	if file.Status != domain.StatusCompleted {
		return domain.WrapError(domain.ErrConflict, "scorm export", fmt.Errorf("file is %s", file.Status))
	}
	meta, err := uc.metadata.Get(ctx, file.ID, true)
	if err != nil {
		return fmt.Errorf("fetch metadata: %w", err)
	}

	title := strings.TrimSuffix(file.OriginalName, filepath.Ext(file.OriginalName))
	if err := uc.scorm.BuildPackage(w, title, meta.ExtractedText); err != nil {
		return fmt.Errorf("build scorm package: %w", err)
	}
	return nil
}
