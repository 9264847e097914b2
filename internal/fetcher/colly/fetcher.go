// Package collyfetcher fetches blog archive pages with gocolly and extracts article links.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/metrics"
)

// DefaultSelector matches entry title links on archive pages.
const DefaultSelector = "a.entry-title-link"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Selector  string
}

// Fetcher implements article.ArchiveExtractor using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type pageResult struct {
	status int
	body   []byte
}

// New builds a Fetcher. A nil transport uses a pooled default.
func New(cfg Config, transport http.RoundTripper, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Selector == "" {
		cfg.Selector = DefaultSelector
	}
	if transport == nil {
		transport = newHTTPTransport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	// Clones share the visited-URL store; the same month is fetched again on every uncached run.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		logger:        logger,
	}
}

// Extract fetches archiveURL and returns the articles it links to. Relative
// links are resolved against blogURL. Any failure is logged and yields an
// empty slice.
func (f *Fetcher) Extract(ctx context.Context, blogURL, archiveURL string) []article.Article {
	page, err := f.fetch(ctx, archiveURL)
	if err != nil {
		f.logger.Warn("archive fetch failed", zap.String("url", archiveURL), zap.Error(err))
		metrics.ObserveArchivePage(archiveURL, "error", 0)
		return []article.Article{}
	}
	articles, err := ParseArchive(bytes.NewReader(page.body), f.cfg.Selector, blogURL, archiveURL)
	if err != nil {
		f.logger.Warn("archive parse failed", zap.String("url", archiveURL), zap.Error(err))
		metrics.ObserveArchivePage(archiveURL, "parse_error", 0)
		return []article.Article{}
	}
	f.logger.Info("archive page extracted",
		zap.String("url", archiveURL),
		zap.Int("status", page.status),
		zap.Int("articles", len(articles)),
	)
	metrics.ObserveArchivePage(archiveURL, "ok", len(articles))
	return articles
}

func (f *Fetcher) fetch(ctx context.Context, url string) (pageResult, error) {
	var (
		result   pageResult
		fetchErr error
	)
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return pageResult{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.WithTransport(f.transport)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *pageResult, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = pageResult{
			status: r.StatusCode,
			body:   append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

// ParseArchive extracts article links matching selector from an archive page body.
// Anchors with empty text or href are skipped; hrefs starting with "/" are
// joined onto blogURL.
func ParseArchive(r io.Reader, selector, blogURL, archiveURL string) ([]article.Article, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse archive html: %w", err)
	}
	base := strings.TrimRight(blogURL, "/")
	articles := []article.Article{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = base + href
		}
		articles = append(articles, article.Article{
			Title:      title,
			URL:        href,
			ArchiveURL: archiveURL,
		})
	})
	return articles, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
