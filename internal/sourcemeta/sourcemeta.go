// Package sourcemeta fetches the pages cited by AI responses and stores a
// readable title and excerpt for each source.
package sourcemeta

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"

	"github.com/TobiSchelling/AIVisibility/internal/database"
	"github.com/TobiSchelling/AIVisibility/internal/logger"
)

const (
	maxExcerpt  = 300
	maxBodySize = 5 << 20
)

// Result holds the results of a preview fetch run.
type Result struct {
	Fetched int
	Empty   int
	Failed  int
	Skipped int
}

// Store is the source table access the fetcher needs.
type Store interface {
	ListSourcesNeedingPreview(ctx context.Context, limit int) ([]database.Source, error)
	UpdateSourcePreview(ctx context.Context, id int64, title, excerpt *string) error
}

// Fetcher downloads source pages and extracts previews with readability.
type Fetcher struct {
	store     Store
	client    *http.Client
	userAgent string
	log       *logger.Logger
}

// NewFetcher creates a Fetcher. A zero timeout means 15s.
func NewFetcher(store Store, timeout time.Duration, userAgent string, log *logger.Logger) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; AIVisibility/1.0)"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{
		store: store,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent: userAgent,
		log:       log,
	}
}

// FetchPreviews fills in previews for up to limit unfetched sources. Once a
// domain answers with an HTTP error its remaining sources are skipped for
// this run and marked as attempted.
func (f *Fetcher) FetchPreviews(ctx context.Context, limit int) (*Result, error) {
	sources, err := f.store.ListSourcesNeedingPreview(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	result := &Result{}
	if len(sources) == 0 {
		f.log.Info("no sources need previews")
		return result, nil
	}

	failedDomains := make(map[string]struct{})
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		domain := domainOf(src.Link)
		if _, failed := failedDomains[domain]; failed {
			f.markAttempted(ctx, src.ID)
			result.Skipped++
			continue
		}

		title, excerpt, err := f.fetchPreview(ctx, src.Link)
		if err != nil {
			f.markAttempted(ctx, src.ID)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			f.log.Warn("source fetch failed, skipping domain", "link", src.Link, "domain", domain, "error", err)
			continue
		}

		if title == "" && excerpt == "" {
			f.markAttempted(ctx, src.ID)
			result.Empty++
			continue
		}

		if err := f.store.UpdateSourcePreview(ctx, src.ID, optional(title), optional(excerpt)); err != nil {
			return result, fmt.Errorf("updating source %d: %w", src.ID, err)
		}
		result.Fetched++
	}

	f.log.Info("source previews fetched",
		"fetched", result.Fetched, "empty", result.Empty, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func (f *Fetcher) markAttempted(ctx context.Context, id int64) {
	if err := f.store.UpdateSourcePreview(ctx, id, nil, nil); err != nil {
		f.log.Warn("marking source attempted failed", "source_id", id, "error", err)
	}
}

// fetchPreview returns an error only for HTTP error statuses. Connection
// and extraction problems yield an empty preview.
func (f *Fetcher) fetchPreview(ctx context.Context, link string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", "", nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", "", nil
	}

	parsedURL, _ := url.Parse(link)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", "", nil
	}

	title := strings.TrimSpace(article.Title)
	excerpt := strings.TrimSpace(article.Excerpt)
	if excerpt == "" {
		excerpt = strings.TrimSpace(article.TextContent)
	}
	return title, truncate(strings.Join(strings.Fields(excerpt), " "), maxExcerpt), nil
}

func domainOf(link string) string {
	u, err := url.Parse(link)
	if err != nil || u == nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
