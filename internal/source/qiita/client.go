// Package qiita fetches a user's articles from the Qiita v2 API.
package qiita

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/source"
)

// DefaultAPIBase is the public Qiita API root.
const DefaultAPIBase = "https://qiita.com/api/v2"

// Config controls pagination and identification.
type Config struct {
	APIBase     string
	PerPage     int
	MaxArticles int
	TopN        int
	UserAgent   string
}

// Client talks to the Qiita API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

type item struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	LikesCount int    `json:"likes_count"`
	CreatedAt  string `json:"created_at"`
	Body       string `json:"body"`
	Tags       []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

// New builds a Client.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
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

// FetchArticles pages through username's items until MaxArticles are
// collected, a page comes back empty, or a request fails. Whatever was
// gathered before a failure is returned.
func (c *Client) FetchArticles(ctx context.Context, username string) []article.PopularArticle {
	articles := []article.PopularArticle{}
	endpoint := fmt.Sprintf("%s/users/%s/items", strings.TrimRight(c.cfg.APIBase, "/"), url.PathEscape(username))
	for page := 1; len(articles) < c.cfg.MaxArticles; page++ {
		q := url.Values{}
		q.Set("page", fmt.Sprint(page))
		q.Set("per_page", fmt.Sprint(c.cfg.PerPage))
		pageURL := endpoint + "?" + q.Encode()

		c.logger.Info("fetching qiita page", zap.String("username", username), zap.Int("page", page))
		var items []item
		if err := source.GetJSON(ctx, c.httpClient, pageURL, c.cfg.UserAgent, &items); err != nil {
			c.logger.Warn("qiita page fetch failed", zap.String("url", pageURL), zap.Error(err))
			break
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if len(articles) >= c.cfg.MaxArticles {
				break
			}
			articles = append(articles, it.toArticle())
		}
	}
	c.logger.Info("qiita articles fetched", zap.String("username", username), zap.Int("articles", len(articles)))
	return articles
}

// PopularArticles returns up to limit of username's most liked articles,
// drawn with a rank-weighted random choice when there are more candidates.
func (c *Client) PopularArticles(ctx context.Context, username string, limit int, rng *rand.Rand) []article.PopularArticle {
	articles := c.FetchArticles(ctx, username)
	if len(articles) == 0 {
		c.logger.Warn("no qiita articles found", zap.String("username", username))
	}
	picked, _ := source.SelectPopular(rng, articles, limit, c.cfg.TopN)
	return picked
}

func (it item) toArticle() article.PopularArticle {
	tags := make([]string, 0, len(it.Tags))
	for _, t := range it.Tags {
		tags = append(tags, t.Name)
	}
	return article.PopularArticle{
		Title:       it.Title,
		URL:         it.URL,
		Likes:       it.LikesCount,
		PublishedAt: it.CreatedAt,
		Description: source.Description(it.Body),
		Tags:        tags,
		GUID:        it.URL,
	}
}
