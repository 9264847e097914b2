package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/pipeline"
	"github.com/JakeFAU/article-picker/internal/selector"
)

// Tool names.
const (
	HatenaTool = "fetch_hatena_articles"
	QiitaTool  = "fetch_qiita_articles"
	ZennTool   = "fetch_zenn_articles"
)

const defaultLimit = 1

// HatenaRunner runs the archive crawl pipeline.
type HatenaRunner interface {
	Run(ctx context.Context, req pipeline.Request, picker pipeline.Picker) (pipeline.Result, error)
}

// QiitaFetcher returns a user's popular Qiita articles.
type QiitaFetcher interface {
	PopularArticles(ctx context.Context, username string, limit int, rng *rand.Rand) []article.PopularArticle
}

// ZennFetcher returns a user's or publication's popular Zenn articles.
type ZennFetcher interface {
	PopularArticles(ctx context.Context, username string, isPublication bool, limit int, rng *rand.Rand) []article.PopularArticle
}

// Services bundles the backends behind the article tools.
type Services struct {
	Hatena                HatenaRunner
	Qiita                 QiitaFetcher
	Zenn                  ZennFetcher
	StartYear             int
	BookmarkedProbability float64
}

// RegisterArticleTools adds the three article tools to r.
func RegisterArticleTools(r *Registry, svc Services) {
	if svc.StartYear <= 0 {
		svc.StartYear = 2014
	}
	if svc.BookmarkedProbability <= 0 {
		svc.BookmarkedProbability = selector.DefaultBookmarkedProbability
	}
	if svc.Hatena != nil {
		r.Register(hatenaDefinition(svc.StartYear), hatenaHandler(svc))
	}
	if svc.Qiita != nil {
		r.Register(qiitaDefinition(), qiitaHandler(svc.Qiita))
	}
	if svc.Zenn != nil {
		r.Register(zennDefinition(), zennHandler(svc.Zenn))
	}
}

type hatenaArgs struct {
	BlogURL    string `json:"blog_url"`
	StartYear  *int   `json:"start_year"`
	UseCache   *bool  `json:"use_cache"`
	RandomSeed *int64 `json:"random_seed"`
}

func hatenaHandler(svc Services) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args hatenaArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := validateBlogURL(args.BlogURL); err != nil {
			return nil, err
		}
		startYear := svc.StartYear
		if args.StartYear != nil {
			if *args.StartYear <= 0 {
				return nil, fmt.Errorf("%w: start_year must be positive", ErrInvalidArguments)
			}
			startYear = *args.StartYear
		}
		useCache := true
		if args.UseCache != nil {
			useCache = *args.UseCache
		}

		picker := selector.New(selector.NewRand(args.RandomSeed),
			selector.WithBookmarkedProbability(svc.BookmarkedProbability))
		res, err := svc.Hatena.Run(ctx, pipeline.Request{
			BlogURL:   args.BlogURL,
			StartYear: startYear,
			UseCache:  useCache,
		}, picker)
		if err != nil {
			return nil, fmt.Errorf("pick hatena article: %w", err)
		}
		return res.Selected, nil
	}
}

func validateBlogURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: blog_url is required", ErrInvalidArguments)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: blog_url must be an absolute http(s) URL", ErrInvalidArguments)
	}
	return nil
}

type qiitaArgs struct {
	Username   string `json:"username"`
	Limit      *int   `json:"limit"`
	RandomSeed *int64 `json:"random_seed"`
}

func qiitaHandler(fetcher QiitaFetcher) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args qiitaArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		limit, err := checkUserArgs(args.Username, args.Limit)
		if err != nil {
			return nil, err
		}
		return fetcher.PopularArticles(ctx, args.Username, limit, selector.NewRand(args.RandomSeed)), nil
	}
}

type zennArgs struct {
	Username   string `json:"username"`
	IsCompany  bool   `json:"is_company"`
	Limit      *int   `json:"limit"`
	RandomSeed *int64 `json:"random_seed"`
}

func zennHandler(fetcher ZennFetcher) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args zennArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		limit, err := checkUserArgs(args.Username, args.Limit)
		if err != nil {
			return nil, err
		}
		return fetcher.PopularArticles(ctx, args.Username, args.IsCompany, limit, selector.NewRand(args.RandomSeed)), nil
	}
}

func checkUserArgs(username string, limit *int) (int, error) {
	if strings.TrimSpace(username) == "" {
		return 0, fmt.Errorf("%w: username is required", ErrInvalidArguments)
	}
	if limit == nil {
		return defaultLimit, nil
	}
	if *limit < 1 {
		return 0, fmt.Errorf("%w: limit must be at least 1", ErrInvalidArguments)
	}
	return *limit, nil
}

func hatenaDefinition(startYear int) Definition {
	return Definition{
		Name: HatenaTool,
		Description: "Crawls a Hatena Blog's monthly archives, attaches Hatena Bookmark counts " +
			"and returns one article picked at random with a bias toward bookmarked posts. " +
			"The first run for a blog crawls every archive page; later runs reuse the cached corpus for a day.",
		InputSchema: objectSchema([]string{"blog_url"}, map[string]any{
			"blog_url":    prop("string", "Hatena Blog URL, e.g. https://example.hatenadiary.jp", nil),
			"start_year":  prop("integer", "First archive year to crawl", startYear),
			"use_cache":   prop("boolean", "Reuse a fresh cached corpus when available", true),
			"random_seed": prop("integer", "Seed for a reproducible pick", nil),
		}),
	}
}

func qiitaDefinition() Definition {
	return Definition{
		Name:        QiitaTool,
		Description: "Returns popular Qiita articles for a user, drawn at random weighted toward the most liked.",
		InputSchema: objectSchema([]string{"username"}, map[string]any{
			"username":    prop("string", "Qiita user name", nil),
			"limit":       prop("integer", "Number of articles to return", defaultLimit),
			"random_seed": prop("integer", "Seed for a reproducible draw", nil),
		}),
	}
}

func zennDefinition() Definition {
	return Definition{
		Name:        ZennTool,
		Description: "Returns popular Zenn articles for a user or publication, drawn at random weighted toward the most liked.",
		InputSchema: objectSchema([]string{"username"}, map[string]any{
			"username":    prop("string", "Zenn user or publication name", nil),
			"is_company":  prop("boolean", "Set for publication accounts (/p/name)", false),
			"limit":       prop("integer", "Number of articles to return", defaultLimit),
			"random_seed": prop("integer", "Seed for a reproducible draw", nil),
		}),
	}
}

func objectSchema(required []string, properties map[string]any) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func prop(typ, description string, def any) map[string]any {
	p := map[string]any{"type": typ, "description": description}
	if def != nil {
		p["default"] = def
	}
	return p
}
