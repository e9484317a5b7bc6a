package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/docvault/internal/core/domain"
)

// multipartOverhead leaves room for boundaries and headers around the file part.
const multipartOverhead = 1 << 20

func (rt *Router) uploadFile(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartOverhead)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file is too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	created, err := rt.svc.Ingest.Upload(r.Context(), domain.UploadRequest{
		UserID:   userIDFromContext(r.Context()),
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
	}, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.writeIngested(w, created)
}

func (rt *Router) importFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	created, err := rt.svc.Ingest.ImportFromURL(r.Context(), userIDFromContext(r.Context()), req.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt.writeIngested(w, created)
}

func (rt *Router) writeIngested(w http.ResponseWriter, file *domain.File) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, string(file.Kind), file.Duplicate)
	}
	status := http.StatusAccepted
	if file.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, file)
}

func (rt *Router) listFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "offset must be an integer"})
		return
	}

	files, err := rt.svc.Catalog.List(r.Context(), domain.FileQuery{
		UserID: userIDFromContext(r.Context()),
		Status: domain.ProcessingStatus(q.Get("status")),
		Kind:   domain.FileKind(q.Get("kind")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []domain.FileSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files), "offset": offset})
}

func (rt *Router) fileStats(w http.ResponseWriter, r *http.Request) {
	counts, err := rt.svc.Catalog.Stats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (rt *Router) getFile(w http.ResponseWriter, r *http.Request) {
	includeText, _ := strconv.ParseBool(r.URL.Query().Get("include_text"))
	detail, err := rt.svc.Catalog.Get(r.Context(), userIDFromContext(r.Context()), r.PathValue("id"), includeText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) deleteFile(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Catalog.Delete(r.Context(), userIDFromContext(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) fileContent(w http.ResponseWriter, r *http.Request) {
	file, body, err := rt.svc.Catalog.OpenContent(r.Context(), userIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := file.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": file.OriginalName}))
	if file.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Warn("file_content_stream_failed", "request_id", requestIDFromContext(r.Context()), "file_id", file.ID, "error", err)
	}
}

func (rt *Router) scormPackage(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	id := r.PathValue("id")
	if err := rt.svc.Reports.WriteSCORMPackage(r.Context(), userIDFromContext(r.Context()), id, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "application/zip", fmt.Sprintf("scorm-%s.zip", id), buf.Bytes())
}

func (rt *Router) listStuck(w http.ResponseWriter, r *http.Request) {
	files, err := rt.svc.Retry.ListStuck(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []domain.File{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files, "count": len(files)})
}

func (rt *Router) retryStuck(w http.ResponseWriter, r *http.Request) {
	report, err := rt.svc.Retry.RetryStuck(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) retryFile(w http.ResponseWriter, r *http.Request) {
	file, err := rt.svc.Retry.RetryFile(r.Context(), userIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, file)
}

func (rt *Router) filesReport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := rt.svc.Reports.WriteFilesReport(r.Context(), userIDFromContext(r.Context()), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "files.xlsx", buf.Bytes())
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
