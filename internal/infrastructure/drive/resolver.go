package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/kirillkom/docvault/internal/core/domain"
	"github.com/kirillkom/docvault/internal/core/ports"
)

const (
	defaultBaseURL = "https://drive.google.com"
	titleSuffix    = " - Google Drive"
	maxPageBytes   = 1 << 20
)

var (
	filePathPattern   = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
	folderPathPattern = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	fileIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Resolver downloads publicly shared Google Drive files.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
}

func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Resolver{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*ports.RemoteFile, error) {
	id, err := ParseFileID(rawURL)
	if err != nil {
		return nil, err
	}

	resp, err := r.get(ctx, r.baseURL+"/uc?export=download&id="+url.QueryEscape(id))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return nil, domain.WrapError(domain.ErrTemporary, "drive download", fmt.Errorf("status %s", resp.Status))
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "drive download", fmt.Errorf("file is not publicly accessible: %s", resp.Status))
	}

	mimeType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" && mimeType == "text/html" {
		// Drive answers with an HTML interstitial for files it will not serve directly.
		resp.Body.Close()
		return nil, domain.WrapError(domain.ErrInvalidInput, "drive download", errors.New("file requires confirmation or sign-in"))
	}
	if filename == "" {
		filename = r.viewPageTitle(ctx, id)
	}
	if filename == "" {
		filename = "drive-" + id
	}

	return &ports.RemoteFile{
		Filename: filename,
		MimeType: mimeType,
		Body:     resp.Body,
	}, nil
}

// ParseFileID extracts the file identifier from the usual Drive share link shapes.
func ParseFileID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse drive link", errors.New("not a url"))
	}
	host := strings.ToLower(u.Hostname())
	if host != "drive.google.com" && host != "docs.google.com" {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse drive link", fmt.Errorf("unsupported host %q", host))
	}
	if folderPathPattern.MatchString(u.Path) {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse drive link", errors.New("folders cannot be imported"))
	}
	if m := filePathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], nil
	}
	if id := u.Query().Get("id"); fileIDPattern.MatchString(id) {
		return id, nil
	}
	return "", domain.WrapError(domain.ErrInvalidInput, "parse drive link", errors.New("no file id in link"))
}

func (r *Resolver) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create drive request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "drive request", err)
	}
	return resp, nil
}

func (r *Resolver) viewPageTitle(ctx context.Context, id string) string {
	resp, err := r.get(ctx, r.baseURL+"/file/d/"+url.PathEscape(id)+"/view")
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return pageTitle(io.LimitReader(resp.Body, maxPageBytes))
}

// pageTitle prefers og:title and falls back to <title>.
func pageTitle(r io.Reader) string {
	doc, err := html.Parse(r)
	if err != nil {
		return ""
	}

	var title, ogTitle string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = n.FirstChild.Data
				}
			case "meta":
				if attr(n, "property") == "og:title" && ogTitle == "" {
					ogTitle = attr(n, "content")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	name := ogTitle
	if strings.TrimSpace(name) == "" {
		name = title
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), titleSuffix))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["filename"])
}
