package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/domain"
)

type fakeIngestor struct {
	uploaded  []domain.UploadRequest
	bodies    []string
	imported  []string
	duplicate bool
	err       error
}

func (f *fakeIngestor) Upload(_ context.Context, req domain.UploadRequest, body io.Reader) (*domain.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.uploaded = append(f.uploaded, req)
	f.bodies = append(f.bodies, string(data))
	return &domain.File{
		ID:           "file-1",
		UserID:       req.UserID,
		OriginalName: req.Filename,
		MimeType:     req.MimeType,
		Kind:         domain.KindDocument,
		SizeBytes:    int64(len(data)),
		Status:       domain.StatusPending,
		Duplicate:    f.duplicate,
	}, nil
}

func (f *fakeIngestor) ImportFromURL(_ context.Context, userID, rawURL string) (*domain.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.imported = append(f.imported, rawURL)
	return &domain.File{ID: "file-2", UserID: userID, SourceURL: rawURL, Kind: domain.KindDocument, Status: domain.StatusPending}, nil
}

type fakeCatalog struct {
	files     []domain.FileSummary
	lastQuery domain.FileQuery
	detail    *domain.FileDetail
	content   string
	deleted   []string
	err       error
}

func (f *fakeCatalog) List(_ context.Context, query domain.FileQuery) ([]domain.FileSummary, error) {
	f.lastQuery = query
	return f.files, f.err
}

func (f *fakeCatalog) Get(_ context.Context, _, id string, _ bool) (*domain.FileDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.detail == nil || f.detail.ID != id {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get file", errors.New("no such file"))
	}
	return f.detail, nil
}

func (f *fakeCatalog) Stats(context.Context, string) (domain.StatusCounts, error) {
	return domain.StatusCounts{domain.StatusPending: 2, domain.StatusCompleted: 5}, f.err
}

func (f *fakeCatalog) Delete(_ context.Context, _, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCatalog) OpenContent(_ context.Context, _, id string) (*domain.File, io.ReadCloser, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	file := &domain.File{ID: id, OriginalName: "notes.txt", MimeType: "text/plain", SizeBytes: int64(len(f.content))}
	return file, io.NopCloser(strings.NewReader(f.content)), nil
}

type fakeRetry struct {
	stuck  []domain.File
	report domain.RetryReport
	err    error
}

func (f *fakeRetry) ListStuck(context.Context, string) ([]domain.File, error) {
	return f.stuck, f.err
}

func (f *fakeRetry) RetryStuck(context.Context, string) (domain.RetryReport, error) {
	return f.report, f.err
}

func (f *fakeRetry) RetryFile(_ context.Context, _, id string) (*domain.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.File{ID: id, Status: domain.StatusPending}, nil
}

type fakeSearch struct {
	last domain.SearchRequest
	hits []domain.SearchHit
	err  error
}

func (f *fakeSearch) Search(_ context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = req
	mode := req.Mode
	if mode == "" {
		mode = domain.SearchSemantic
	}
	return &domain.SearchResult{Query: req.Query, Mode: mode, Hits: f.hits}, nil
}

func (f *fakeSearch) History(context.Context, string, int) ([]domain.SearchHistoryEntry, error) {
	return nil, f.err
}

type fakeChat struct {
	last domain.ChatRequest
	err  error
}

func (f *fakeChat) Ask(_ context.Context, req domain.ChatRequest) (*domain.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = req
	return &domain.Answer{Text: "answer", Sources: []domain.SearchHit{{FileID: "file-1", Score: 0.9}}}, nil
}

type fakeReports struct {
	err error
}

func (f *fakeReports) WriteFilesReport(_ context.Context, _ string, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "xlsx-bytes")
	return err
}

func (f *fakeReports) WriteSCORMPackage(_ context.Context, _, _ string, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "zip-bytes")
	return err
}

type fakeAuth struct {
	tokens map[string]*domain.User
}

func (f *fakeAuth) Register(_ context.Context, email, _, displayName string) (*domain.User, error) {
	if email == "taken@example.com" {
		return nil, domain.WrapError(domain.ErrConflict, "register", errors.New("email already registered"))
	}
	return &domain.User{ID: "user-new", Email: email, DisplayName: displayName, PasswordHash: "secret-hash"}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*domain.IssuedSession, error) {
	if password != "correct-password" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid credentials"))
	}
	user := &domain.User{ID: "user-1", Email: email}
	f.tokens["tok-1"] = user
	return &domain.IssuedSession{Token: "tok-1", User: user}, nil
}

func (f *fakeAuth) Logout(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*domain.User, error) {
	user, ok := f.tokens[token]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("invalid session"))
	}
	return user, nil
}

type testServices struct {
	ingest  *fakeIngestor
	catalog *fakeCatalog
	retry   *fakeRetry
	search  *fakeSearch
	chat    *fakeChat
	reports *fakeReports
	auth    *fakeAuth
}

func newTestServices() *testServices {
	return &testServices{
		ingest:  &fakeIngestor{},
		catalog: &fakeCatalog{},
		retry:   &fakeRetry{},
		search:  &fakeSearch{},
		chat:    &fakeChat{},
		reports: &fakeReports{},
		auth:    &fakeAuth{tokens: map[string]*domain.User{"valid-token": {ID: "user-1", Email: "a@example.com"}}},
	}
}

func (s *testServices) services() Services {
	return Services{
		Ingest:  s.ingest,
		Catalog: s.catalog,
		Retry:   s.retry,
		Search:  s.search,
		Chat:    s.chat,
		Reports: s.reports,
		Auth:    s.auth,
	}
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestHandlerWith(cfg, newTestServices())
}

func newTestHandlerWith(cfg config.Config, svc *testServices, opts ...Option) http.Handler {
	return NewRouter(cfg, svc.services(), opts...).Handler()
}
