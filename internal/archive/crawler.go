// Package archive walks a blog's monthly archive pages in sequence.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
)

// DefaultStartYear is the first archive year crawled when none is given.
const DefaultStartYear = 2014

// Sleeper pauses between requests.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Config controls crawl pacing.
type Config struct {
	// PaceEvery sleeps after every URL whose zero-based index is a multiple of it.
	PaceEvery     int
	PaceDelay     time.Duration
	ProgressEvery int
}

// Crawler collects articles from every monthly archive page of a blog.
type Crawler struct {
	extractor article.ArchiveExtractor
	clock     article.Clock
	sleeper   Sleeper
	cfg       Config
	logger    *zap.Logger
}

// New builds a Crawler.
func New(extractor article.ArchiveExtractor, clock article.Clock, sleeper Sleeper, cfg Config, logger *zap.Logger) *Crawler {
	if cfg.PaceEvery <= 0 {
		cfg.PaceEvery = 10
	}
	if cfg.PaceDelay < 0 {
		cfg.PaceDelay = 0
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		extractor: extractor,
		clock:     clock,
		sleeper:   sleeper,
		cfg:       cfg,
		logger:    logger,
	}
}

// URLs lists "<blog>/archive/YYYY/MM" for every month from January of
// startYear through now's month, oldest first.
func URLs(blogURL string, startYear int, now time.Time) []string {
	base := strings.TrimRight(blogURL, "/")
	endYear, endMonth := now.Year(), int(now.Month())
	var out []string
	for year := startYear; year <= endYear; year++ {
		for month := 1; month <= 12; month++ {
			if year == endYear && month > endMonth {
				break
			}
			out = append(out, fmt.Sprintf("%s/archive/%d/%02d", base, year, month))
		}
	}
	return out
}

// Collect fetches each archive page in order and concatenates the results.
// A page that fails contributes nothing. Collect stops early only when ctx ends.
func (c *Crawler) Collect(ctx context.Context, blogURL string, startYear int) []article.Article {
	if startYear <= 0 {
		startYear = DefaultStartYear
	}
	urls := URLs(blogURL, startYear, c.clock.Now())
	c.logger.Info("archive crawl started",
		zap.String("blog_url", blogURL),
		zap.Int("start_year", startYear),
		zap.Int("pages", len(urls)),
	)

	articles := []article.Article{}
	for i, u := range urls {
		if ctx.Err() != nil {
			c.logger.Warn("archive crawl interrupted", zap.Int("visited", i), zap.Error(ctx.Err()))
			break
		}
		articles = append(articles, c.extractor.Extract(ctx, blogURL, u)...)

		if i > 0 && i%c.cfg.ProgressEvery == 0 {
			c.logger.Info("archive crawl progress",
				zap.Int("visited", i),
				zap.Int("pages", len(urls)),
				zap.Int("articles", len(articles)),
			)
		}
		if i%c.cfg.PaceEvery == 0 && c.sleeper != nil {
			if err := c.sleeper.Sleep(ctx, c.cfg.PaceDelay); err != nil {
				c.logger.Warn("archive crawl interrupted", zap.Int("visited", i+1), zap.Error(err))
				break
			}
		}
	}

	c.logger.Info("archive crawl finished",
		zap.String("blog_url", blogURL),
		zap.Int("articles", len(articles)),
	)
	return articles
}
