// Package zenn fetches a user's or publication's articles from the Zenn API.
package zenn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/source"
)

// DefaultBaseURL is the public Zenn site root.
const DefaultBaseURL = "https://zenn.dev"

var (
	topicsPattern    = regexp.MustCompile(`(?s)"topics":\s*\[(.*?)\]`)
	topicNamePattern = regexp.MustCompile(`"name":\s*"([^"]+)"`)
)

// Config controls pagination and identification.
type Config struct {
	BaseURL     string
	PerPage     int
	MaxArticles int
	TopN        int
	UserAgent   string
}

// Client talks to the Zenn API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

type listResponse struct {
	Articles []entry `json:"articles"`
}

type entry struct {
	Title       string          `json:"title"`
	Path        string          `json:"path"`
	LikedCount  int             `json:"liked_count"`
	PublishedAt string          `json:"published_at"`
	BodyLetters json.RawMessage `json:"body_letters"`
	Topics      []struct {
		Name string `json:"name"`
	} `json:"topics"`
}

// New builds a Client.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PerPage <= 0 {
		cfg.PerPage = 50
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 200
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = source.DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = source.NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// FetchArticles pages through the account's articles. Publications are
// queried by publication name, personal accounts by username.
func (c *Client) FetchArticles(ctx context.Context, username string, isPublication bool) []article.PopularArticle {
	articles := []article.PopularArticle{}
	for page := 1; len(articles) < c.cfg.MaxArticles; page++ {
		pageURL := c.pageURL(username, isPublication, page)
		c.logger.Info("fetching zenn page", zap.String("username", username), zap.Int("page", page))

		var resp listResponse
		if err := source.GetJSON(ctx, c.httpClient, pageURL, c.cfg.UserAgent, &resp); err != nil {
			c.logger.Warn("zenn page fetch failed", zap.String("url", pageURL), zap.Error(err))
			break
		}
		if len(resp.Articles) == 0 {
			break
		}
		for _, e := range resp.Articles {
			if len(articles) >= c.cfg.MaxArticles {
				break
			}
			articles = append(articles, c.toArticle(e))
		}
	}
	c.logger.Info("zenn articles fetched", zap.String("username", username), zap.Int("articles", len(articles)))
	return articles
}

// PopularArticles returns up to limit of the account's most liked articles.
// When a random draw happens, drawn articles without tags get them from
// the article page.
func (c *Client) PopularArticles(
	ctx context.Context,
	username string,
	isPublication bool,
	limit int,
	rng *rand.Rand,
) []article.PopularArticle {
	articles := c.FetchArticles(ctx, username, isPublication)
	if len(articles) == 0 {
		c.logger.Warn("no zenn articles found", zap.String("username", username))
	}
	picked, sampled := source.SelectPopular(rng, articles, limit, c.cfg.TopN)
	if sampled {
		c.backfillTags(ctx, picked)
	}
	return picked
}

func (c *Client) backfillTags(ctx context.Context, articles []article.PopularArticle) {
	fetched := map[string][]string{}
	for i := range articles {
		if len(articles[i].Tags) > 0 {
			continue
		}
		tags, ok := fetched[articles[i].URL]
		if !ok {
			tags = c.FetchTags(ctx, articles[i].URL)
			fetched[articles[i].URL] = tags
		}
		articles[i].Tags = tags
	}
}

// FetchTags reads topic names from an article page. It looks in the
// embedded __NEXT_DATA__ payload first and falls back to the raw page.
func (c *Client) FetchTags(ctx context.Context, articleURL string) []string {
	body, err := source.Get(ctx, c.httpClient, articleURL, c.cfg.UserAgent)
	if err != nil {
		c.logger.Warn("zenn tag fetch failed", zap.String("url", articleURL), zap.Error(err))
		return []string{}
	}
	return ExtractTags(body)
}

// ExtractTags pulls topic names out of an article page body.
func ExtractTags(body []byte) []string {
	haystack := string(body)
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		if data := doc.Find("script#__NEXT_DATA__").First().Text(); data != "" {
			haystack = data
		}
	}
	match := topicsPattern.FindStringSubmatch(haystack)
	if match == nil {
		return []string{}
	}
	tags := []string{}
	for _, m := range topicNamePattern.FindAllStringSubmatch(match[1], -1) {
		tags = append(tags, m[1])
	}
	return tags
}

func (c *Client) pageURL(username string, isPublication bool, page int) string {
	q := url.Values{}
	if isPublication {
		q.Set("publication_name", username)
	} else {
		q.Set("username", username)
	}
	q.Set("count", fmt.Sprint(c.cfg.PerPage))
	q.Set("page", fmt.Sprint(page))
	return c.cfg.BaseURL + "/api/articles?" + q.Encode()
}

func (c *Client) toArticle(e entry) article.PopularArticle {
	articleURL := c.cfg.BaseURL + e.Path
	tags := make([]string, 0, len(e.Topics))
	for _, t := range e.Topics {
		tags = append(tags, t.Name)
	}
	// body_letters is usually a letter count; only text is used as a description.
	var body string
	if len(e.BodyLetters) > 0 {
		_ = json.Unmarshal(e.BodyLetters, &body)
	}
	return article.PopularArticle{
		Title:       e.Title,
		URL:         articleURL,
		Likes:       e.LikedCount,
		PublishedAt: e.PublishedAt,
		Description: source.Description(body),
		Tags:        tags,
		GUID:        articleURL,
	}
}
