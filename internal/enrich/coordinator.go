// Package enrich attaches bookmark counts to articles with a bounded worker pool.
package enrich

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
)

// Config controls the worker pool.
type Config struct {
	Workers       int
	ProgressEvery int
}

// Stats summarises one enrichment pass.
type Stats struct {
	Total         int `json:"total"`
	Skipped       int `json:"skipped"`
	Dispatched    int `json:"dispatched"`
	Succeeded     int `json:"succeeded"`
	WithBookmarks int `json:"with_bookmarks"`
	Unknown       int `json:"unknown"`
	Failed        int `json:"failed"`
	// Abandoned counts lookups never started because ctx ended first.
	Abandoned     int `json:"abandoned"`
}

// SuccessRate is the share of dispatched lookups that produced a count.
func (s Stats) SuccessRate() float64 {
	if s.Dispatched == 0 {
		return 1
	}
	return float64(s.Succeeded) / float64(s.Dispatched)
}

// Coordinator fans lookups out to a fixed pool of workers.
type Coordinator struct {
	counter article.BookmarkCounter
	cfg     Config
	logger  *zap.Logger
}

type task struct {
	index int
	url   string
}

type result struct {
	index  int
	count  int
	err    error
	failed bool
}

// New builds a Coordinator.
func New(counter article.BookmarkCounter, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 20
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{counter: counter, cfg: cfg, logger: logger}
}

// Enrich fills in BookmarkCount for every article that lacks one. Unknown
// counts become zero. Results are written back by index, so the input order
// is preserved. Enrich never fails; problems show up in the returned Stats.
// Once ctx ends no new lookups start and the rest stay unenriched.
func (c *Coordinator) Enrich(ctx context.Context, articles []article.Article) Stats {
	stats := Stats{Total: len(articles)}
	var pending []task
	for i, a := range articles {
		if a.Enriched() {
			stats.Skipped++
			continue
		}
		pending = append(pending, task{index: i, url: a.URL})
	}
	stats.Dispatched = len(pending)
	if len(pending) == 0 {
		return stats
	}

	workers := min(c.cfg.Workers, len(pending))
	c.logger.Info("enrichment started",
		zap.Int("articles", len(articles)),
		zap.Int("dispatched", len(pending)),
		zap.Int("workers", workers),
	)

	tasks := make(chan task)
	results := make(chan result)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				results <- c.lookup(ctx, t)
			}
		}()
	}
	abandoned := 0
	go func() {
		defer close(tasks)
		for i, t := range pending {
			if ctx.Err() != nil {
				abandoned = len(pending) - i
				return
			}
			select {
			case tasks <- t:
			case <-ctx.Done():
				abandoned = len(pending) - i
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		articles[res.index] = articles[res.index].WithBookmarks(res.count)
		switch {
		case res.failed:
			stats.Failed++
		case res.err != nil:
			stats.Unknown++
			stats.Succeeded++
		default:
			stats.Succeeded++
		}
		if res.count > 0 {
			stats.WithBookmarks++
		}
		if completed%c.cfg.ProgressEvery == 0 {
			c.logger.Info("enrichment progress",
				zap.Int("completed", completed),
				zap.Int("dispatched", stats.Dispatched),
				zap.Int("with_bookmarks", stats.WithBookmarks),
			)
		}
	}
	if abandoned > 0 {
		stats.Abandoned = abandoned
		stats.Dispatched -= abandoned
		c.logger.Warn("enrichment interrupted", zap.Int("abandoned", abandoned), zap.Error(ctx.Err()))
	}

	c.logger.Info("enrichment finished",
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("dispatched", stats.Dispatched),
		zap.Int("with_bookmarks", stats.WithBookmarks),
		zap.Int("unknown", stats.Unknown),
		zap.Int("failed", stats.Failed),
		zap.Int("abandoned", stats.Abandoned),
		zap.Float64("success_rate", stats.SuccessRate()),
	)
	return stats
}

func (c *Coordinator) lookup(ctx context.Context, t task) (res result) {
	res.index = t.index
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("bookmark lookup panicked", zap.String("url", t.url), zap.Any("panic", rec))
			res = result{index: t.index, failed: true, err: fmt.Errorf("lookup panic: %v", rec)}
		}
	}()
	count, err := c.counter.Count(ctx, t.url)
	if err != nil || count < 0 {
		return result{index: t.index, err: err}
	}
	res.count = count
	return res
}
