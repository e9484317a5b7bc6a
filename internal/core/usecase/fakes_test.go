package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/docvault/internal/core/domain"
)

type memoryFileRepo struct {
	mu        sync.Mutex
	files     map[string]*domain.File
	createErr error
	listErr   error
}

func newMemoryFileRepo(files ...domain.File) *memoryFileRepo {
	repo := &memoryFileRepo{files: map[string]*domain.File{}}
	for i := range files {
		f := files[i]
		repo.files[f.ID] = &f
	}
	return repo
}

func (r *memoryFileRepo) Create(_ context.Context, file *domain.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copyFile := *file
	r.files[file.ID] = &copyFile
	return nil
}

func (r *memoryFileRepo) GetByID(_ context.Context, userID, id string) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || (userID != "" && f.UserID != userID) {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get file", errors.New(id))
	}
	copyFile := *f
	return &copyFile, nil
}

func (r *memoryFileRepo) FindByHash(_ context.Context, userID, hash string) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.ContentHash == hash && f.UserID == userID {
			copyFile := *f
			return &copyFile, nil
		}
	}
	return nil, domain.WrapError(domain.ErrFileNotFound, "find by hash", errors.New(hash))
}

func (r *memoryFileRepo) List(_ context.Context, query domain.FileQuery) ([]domain.FileSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	ids := make([]string, 0, len(r.files))
	for id := range r.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []domain.FileSummary
	for _, id := range ids {
		f := r.files[id]
		if query.UserID != "" && f.UserID != query.UserID {
			continue
		}
		if query.Status != "" && f.Status != query.Status {
			continue
		}
		out = append(out, domain.FileSummary{File: *f})
	}
	if query.Offset >= len(out) {
		return []domain.FileSummary{}, nil
	}
	out = out[query.Offset:]
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (r *memoryFileRepo) CountByStatus(_ context.Context, userID string) (domain.StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := domain.StatusCounts{}
	for _, f := range r.files {
		if userID == "" || f.UserID == userID {
			counts[f.Status]++
		}
	}
	return counts, nil
}

func (r *memoryFileRepo) TransitionStatus(_ context.Context, id string, from, to domain.ProcessingStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return domain.WrapError(domain.ErrFileNotFound, "transition", errors.New(id))
	}
	if f.Status != from {
		return domain.WrapError(domain.ErrConflict, "transition", errors.New(string(f.Status)))
	}
	f.Status = to
	f.Error = errMessage
	f.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryFileRepo) Requeue(_ context.Context, id string, from domain.ProcessingStatus) (*domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "requeue", errors.New(id))
	}
	if f.Status != from {
		return nil, domain.WrapError(domain.ErrConflict, "requeue", errors.New(string(f.Status)))
	}
	f.Status = domain.StatusPending
	f.Error = ""
	f.RetryCount++
	f.UpdatedAt = time.Now().UTC()
	copyFile := *f
	return &copyFile, nil
}

func (r *memoryFileRepo) ListStuck(_ context.Context, userID string, olderThan time.Time, limit int) ([]domain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.File
	for _, f := range r.files {
		if userID != "" && f.UserID != userID {
			continue
		}
		if f.Status != domain.StatusPending && f.Status != domain.StatusProcessing {
			continue
		}
		if f.UpdatedAt.Before(olderThan) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryFileRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || (userID != "" && f.UserID != userID) {
		return domain.WrapError(domain.ErrFileNotFound, "delete", errors.New(id))
	}
	delete(r.files, id)
	return nil
}

func (r *memoryFileRepo) status(id string) domain.ProcessingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[id]; ok {
		return f.Status
	}
	return ""
}

type memoryMetadataRepo struct {
	saved       map[string]*domain.FileMetadata
	saveErr     error
	hits        []domain.SearchHit
	lastVector  []float32
	lastFilter  domain.SearchFilter
	lastLimit   int
	lastKeyword string
}

func newMemoryMetadataRepo() *memoryMetadataRepo {
	return &memoryMetadataRepo{saved: map[string]*domain.FileMetadata{}}
}

func (m *memoryMetadataRepo) Save(_ context.Context, meta *domain.FileMetadata) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	copyMeta := *meta
	m.saved[meta.FileID] = &copyMeta
	return nil
}

func (m *memoryMetadataRepo) Get(_ context.Context, fileID string, includeText bool) (*domain.FileMetadata, error) {
	meta, ok := m.saved[fileID]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get metadata", errors.New(fileID))
	}
	copyMeta := *meta
	if !includeText {
		copyMeta.ExtractedText = ""
	}
	return &copyMeta, nil
}

func (m *memoryMetadataRepo) SearchSimilar(_ context.Context, vector []float32, filter domain.SearchFilter, limit int) ([]domain.SearchHit, error) {
	m.lastVector = vector
	m.lastFilter = filter
	m.lastLimit = limit
	return m.hits, nil
}

func (m *memoryMetadataRepo) SearchKeyword(_ context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchHit, error) {
	m.lastKeyword = query
	m.lastFilter = filter
	m.lastLimit = limit
	return m.hits, nil
}

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	deleted []string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (s *memoryStorage) Save(_ context.Context, key string, data io.Reader) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "open object", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type recordingQueue struct {
	jobs []domain.ProcessingJob
	err  error
}

func (q *recordingQueue) PublishFileUploaded(_ context.Context, job domain.ProcessingJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) SubscribeFileUploaded(context.Context, func(context.Context, domain.ProcessingJob) error) error {
	return errors.New("not implemented")
}

type stubExtractor struct {
	extraction domain.Extraction
	err        error
	calls      int
}

func (e *stubExtractor) Extract(context.Context, *domain.File) (domain.Extraction, error) {
	e.calls++
	return e.extraction, e.err
}

type stubAnalyzer struct {
	analysis domain.Analysis
	err      error
}

func (a *stubAnalyzer) Analyze(context.Context, string, string) (domain.Analysis, error) {
	return a.analysis, a.err
}

type wordChunker struct{}

func (wordChunker) Split(text string) []string {
	return strings.Fields(text)
}

type stubEmbedder struct {
	vector []float32
	err    error
	inputs []string
}

func (e *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.inputs = append(e.inputs, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = e.vector
	}
	return out, nil
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.inputs = append(e.inputs, text)
	return e.vector, nil
}
