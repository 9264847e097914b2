// Package bookmark looks up social bookmark counts for article URLs.
package bookmark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/metrics"
)

// DefaultEndpoint is the public count lookup endpoint.
const DefaultEndpoint = "https://b.hatena.ne.jp/entry/jsonlite/"

const maxBodyBytes = 1 << 20

// Waiter paces outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the lookup client.
type Config struct {
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
}

// Client resolves bookmark counts over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    Waiter
	logger     *zap.Logger
}

// New builds a Client. A nil httpClient gets a fresh client with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, limiter Waiter, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

type countResponse struct {
	Count *int `json:"count"`
}

// Count returns the bookmark count for articleURL. An empty or null body
// means the URL has never been bookmarked and yields zero. Every other
// failure is reported as a *LookupError and the count is unknown.
func (c *Client) Count(ctx context.Context, articleURL string) (int, error) {
	count, err := c.count(ctx, articleURL)
	if err == nil {
		metrics.ObserveBookmarkLookup("ok")
		return count, nil
	}
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		metrics.ObserveBookmarkLookup(lookupErr.Kind.String())
		if lookupErr.Kind != KindTimeout && lookupErr.Kind != KindCanceled {
			c.logger.Error("bookmark lookup failed",
				zap.String("url", articleURL),
				zap.String("kind", lookupErr.Kind.String()),
				zap.Bool("retryable", lookupErr.Retryable()),
				zap.Error(lookupErr.Err),
			)
		}
	}
	return 0, err
}

func (c *Client) count(ctx context.Context, articleURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint, err := c.lookupURL(articleURL)
	if err != nil {
		return 0, &LookupError{URL: articleURL, Kind: KindTransport, Err: err}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return 0, &LookupError{URL: articleURL, Kind: classifyTransport(ctx, err), Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &LookupError{URL: articleURL, Kind: KindTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &LookupError{URL: articleURL, Kind: classifyTransport(ctx, err), Err: err}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close lookup body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, &LookupError{URL: articleURL, Kind: classifyTransport(ctx, err), Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &LookupError{
			URL:        articleURL,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return parseCount(articleURL, body)
}

func (c *Client) lookupURL(articleURL string) (string, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("url", articleURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func parseCount(articleURL string, body []byte) (int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, nil
	}
	if trimmed[0] != '{' {
		return 0, &LookupError{URL: articleURL, Kind: KindMalformed, Err: errors.New("response is not a JSON object")}
	}
	var payload countResponse
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return 0, &LookupError{URL: articleURL, Kind: KindMalformed, Err: fmt.Errorf("decode response: %w", err)}
	}
	if payload.Count == nil {
		return 0, nil
	}
	if *payload.Count < 0 {
		return 0, &LookupError{URL: articleURL, Kind: KindMalformed, Err: fmt.Errorf("negative count %d", *payload.Count)}
	}
	return *payload.Count, nil
}

func classifyTransport(ctx context.Context, err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
