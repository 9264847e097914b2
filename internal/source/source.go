// Package source holds helpers shared by the platform API clients.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"time"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/selector"
)

// DefaultUserAgent is sent to the platform APIs.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultTopN caps how many of the most liked articles are eligible for sampling.
const DefaultTopN = 100

const descriptionRunes = 200

const maxBodyBytes = 8 << 20

// StatusError reports a non-200 API response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Description truncates body to its first 200 characters and appends an ellipsis.
func Description(body string) string {
	runes := []rune(body)
	if len(runes) > descriptionRunes {
		runes = runes[:descriptionRunes]
	}
	return string(runes) + "..."
}

// SelectPopular orders articles by likes (most first, ties keep input order),
// keeps the topN and returns them all when there are at most limit of them.
// Otherwise it draws limit articles with replacement, weighting rank i by 1/(i+1).
// The boolean reports whether a draw happened.
func SelectPopular(rng *rand.Rand, articles []article.PopularArticle, limit, topN int) ([]article.PopularArticle, bool) {
	if len(articles) == 0 {
		return []article.PopularArticle{}, false
	}
	if topN <= 0 {
		topN = DefaultTopN
	}
	sorted := make([]article.PopularArticle, len(articles))
	copy(sorted, articles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Likes > sorted[j].Likes
	})
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}
	if len(sorted) <= limit {
		return sorted, false
	}
	return selector.RankWeighted(rng, sorted, limit), true
}

// GetJSON issues a GET with the given user agent and decodes a 200 response into out.
func GetJSON(ctx context.Context, client *http.Client, rawURL, userAgent string, out any) error {
	body, err := Get(ctx, client, rawURL, userAgent)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Get issues a GET with the given user agent and returns the body of a 200 response.
func Get(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// NewHTTPClient returns a client with the given timeout, defaulting to 10s.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
