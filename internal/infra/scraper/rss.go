// Package scraper provides the HTTP feed fetcher. It downloads an RSS or Atom
// document, parses it with gofeed and normalizes every item into an Article.
package scraper

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"feedwire/internal/domain/entity"
	"feedwire/internal/resilience/retry"
	"feedwire/internal/usecase/fetch"
	"feedwire/internal/utils/text"
)

// MaxSummaryRunes is the summary length limit applied to every item.
const MaxSummaryRunes = 500

// RSSConfig controls the HTTP side of feed fetching.
type RSSConfig struct {
	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize caps the bytes read from a response.
	// Default: 5MB
	MaxBodySize int64

	// MaxRedirects is the number of redirects followed before giving up.
	// Default: 5
	MaxRedirects int

	// Timeout is the client-level timeout. The orchestrator also bounds each
	// attempt through the request context.
	// Default: 30s
	Timeout time.Duration
}

// DefaultRSSConfig returns the production defaults.
func DefaultRSSConfig() RSSConfig {
	return RSSConfig{
		UserAgent:    "FeedwireBot/1.0",
		MaxBodySize:  5 * 1024 * 1024,
		MaxRedirects: 5,
		Timeout:      30 * time.Second,
	}
}

// RSSFetcher performs one fetch-and-parse attempt per call.
// It is safe for concurrent use.
type RSSFetcher struct {
	client *http.Client
	cfg    RSSConfig
	now    func() time.Time
}

var _ fetch.FeedFetcher = (*RSSFetcher)(nil)

// NewRSSFetcher creates a fetcher. A nil client gets a tuned default.
func NewRSSFetcher(client *http.Client, cfg RSSConfig) *RSSFetcher {
	def := DefaultRSSConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if client == nil {
		client = newHTTPClient(cfg)
	}
	return &RSSFetcher{client: client, cfg: cfg, now: time.Now}
}

func newHTTPClient(cfg RSSConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", len(via))
			}
			return nil
		},
	}
}

// Fetch downloads and parses the feed of src. Errors are *fetch.FetchError
// values whose kind tells the retry loop whether another attempt may help.
func (f *RSSFetcher) Fetch(ctx context.Context, src entity.FeedSource) ([]entity.Article, error) {
	body, err := f.download(ctx, src)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &fetch.FetchError{Source: src.Name, Kind: fetch.ErrParse, Err: err}
	}

	fetchedAt := f.now().UTC()
	articles := make([]entity.Article, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		articles = append(articles, f.toArticle(src, it, fetchedAt))
	}
	return articles, nil
}

func (f *RSSFetcher) download(ctx context.Context, src entity.FeedSource) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, &fetch.FetchError{Source: src.Name, Kind: fetch.ErrPermanentFetch, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &fetch.FetchError{Source: src.Name, Kind: fetch.ErrTransientFetch, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		httpErr := &retry.HTTPError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		kind := fetch.ErrPermanentFetch
		if httpErr.Retryable() {
			kind = fetch.ErrTransientFetch
		}
		return nil, &fetch.FetchError{Source: src.Name, Kind: kind, Err: httpErr}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		return nil, &fetch.FetchError{Source: src.Name, Kind: fetch.ErrTransientFetch, Err: err}
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		return nil, &fetch.FetchError{
			Source: src.Name,
			Kind:   fetch.ErrPermanentFetch,
			Err:    fmt.Errorf("response body exceeds %d bytes", f.cfg.MaxBodySize),
		}
	}
	return body, nil
}

func (f *RSSFetcher) toArticle(src entity.FeedSource, it *gofeed.Item, fetchedAt time.Time) entity.Article {
	title := text.CollapseSpace(it.Title)
	link := strings.TrimSpace(it.Link)

	// description/summary first; full content only when a feed ships nothing else
	summary := it.Description
	if strings.TrimSpace(summary) == "" {
		summary = it.Content
	}
	summary = text.Truncate(text.StripHTML(summary), MaxSummaryRunes)

	return entity.Article{
		ID:          entity.ArticleID(link, title),
		Title:       title,
		Link:        link,
		Summary:     summary,
		PublishedAt: publishedAt(it, fetchedAt),
		SourceName:  src.Name,
		Category:    src.Category,
	}
}

// publishedAt prefers the parser's own dates, then a lenient parse of the raw
// strings, and finally the fetch time. The result is always UTC.
func publishedAt(it *gofeed.Item, fallback time.Time) time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed.UTC()
	}
	if it.UpdatedParsed != nil {
		return it.UpdatedParsed.UTC()
	}
	for _, raw := range []string{it.Published, it.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

