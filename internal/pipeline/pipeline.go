// Package pipeline ties crawl, enrichment, caching and selection together.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/enrich"
	"github.com/JakeFAU/article-picker/internal/selector"
)

// Collector gathers the raw article list for a blog.
type Collector interface {
	Collect(ctx context.Context, blogURL string, startYear int) []article.Article
}

// Enricher attaches bookmark counts in place.
type Enricher interface {
	Enrich(ctx context.Context, articles []article.Article) enrich.Stats
}

// Picker draws one article from a corpus.
type Picker interface {
	Pick(articles []article.Article) (selector.Selection, error)
}

// Request describes one pipeline run.
type Request struct {
	BlogURL   string
	StartYear int
	UseCache  bool
}

// Result is the outcome of one pipeline run.
type Result struct {
	Selected  article.Article
	Branch    selector.Branch
	Articles  []article.Article
	FromCache bool
	Stats     enrich.Stats
}

// Pipeline is safe for concurrent use when its collaborators are.
type Pipeline struct {
	collector Collector
	enricher  Enricher
	store     article.SnapshotStore
	logger    *zap.Logger
}

// New builds a Pipeline. store may be nil to disable caching.
func New(collector Collector, enricher Enricher, store article.SnapshotStore, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		collector: collector,
		enricher:  enricher,
		store:     store,
		logger:    logger,
	}
}

// Run returns the selected article together with the whole corpus. A fresh
// cached snapshot short-circuits the crawl. After a crawl the enriched corpus
// is written back to the cache; a failed write is logged and ignored.
func (p *Pipeline) Run(ctx context.Context, req Request, picker Picker) (Result, error) {
	logger := p.logger.With(zap.String("blog_url", req.BlogURL))
	var res Result

	if req.UseCache && p.store != nil {
		if cached, ok := p.store.Load(ctx, req.BlogURL); ok && len(cached) > 0 {
			res.Articles = cached
			res.FromCache = true
			logger.Info("using cached snapshot", zap.Int("articles", len(cached)))
		}
	}

	if !res.FromCache {
		res.Articles = p.collector.Collect(ctx, req.BlogURL, req.StartYear)
		logger.Info("crawl collected articles", zap.Int("articles", len(res.Articles)))
		res.Stats = p.enricher.Enrich(ctx, res.Articles)
		if p.store != nil {
			if err := p.store.Save(ctx, req.BlogURL, res.Articles); err != nil {
				logger.Warn("snapshot save failed", zap.Error(err))
			}
		}
	}

	sel, err := picker.Pick(res.Articles)
	if err != nil {
		return res, err
	}
	res.Selected = sel.Article
	res.Branch = sel.Branch
	logger.Info("article selected",
		zap.String("title", sel.Article.Title),
		zap.String("url", sel.Article.URL),
		zap.String("branch", string(sel.Branch)),
		zap.Int("bookmark_count", sel.Article.Bookmarks()),
	)
	return res, nil
}
