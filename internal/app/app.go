// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/api"
	"github.com/JakeFAU/article-picker/internal/archive"
	"github.com/JakeFAU/article-picker/internal/bookmark"
	"github.com/JakeFAU/article-picker/internal/clock/system"
	"github.com/JakeFAU/article-picker/internal/config"
	"github.com/JakeFAU/article-picker/internal/enrich"
	collyfetcher "github.com/JakeFAU/article-picker/internal/fetcher/colly"
	"github.com/JakeFAU/article-picker/internal/id/uuid"
	"github.com/JakeFAU/article-picker/internal/mcp"
	"github.com/JakeFAU/article-picker/internal/metrics"
	"github.com/JakeFAU/article-picker/internal/pipeline"
	"github.com/JakeFAU/article-picker/internal/policy/ratelimit"
	"github.com/JakeFAU/article-picker/internal/source"
	"github.com/JakeFAU/article-picker/internal/source/qiita"
	"github.com/JakeFAU/article-picker/internal/source/zenn"
	"github.com/JakeFAU/article-picker/internal/storage/local"
	"github.com/JakeFAU/article-picker/internal/tools"
)

// App holds the shared, long-lived services for the application.
// It is built once at startup and handed to whichever surface (HTTP, stdio
// or a one-shot call) the command runs.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	store    *local.SnapshotStore
	registry *tools.Registry
}

// New wires every service from cfg. It fails fast when the cache directory
// cannot be prepared.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("initializing application services")

	clock := system.New()
	timeout := cfg.HTTPTimeout()
	userAgent := cfg.HTTP.UserAgent

	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = local.DefaultDir()
	}
	store, err := local.New(local.Config{BaseDir: cacheDir, Freshness: cfg.Cache.Freshness}, clock, logger.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}
	logger.Info("snapshot cache ready", zap.String("dir", cacheDir), zap.Duration("freshness", cfg.Cache.Freshness))

	extractor := collyfetcher.New(collyfetcher.Config{
		UserAgent: userAgent,
		Timeout:   timeout,
		Selector:  cfg.Hatena.Selector,
	}, nil, logger.Named("archive"))
	crawler := archive.New(extractor, clock, clock, archive.Config{
		PaceEvery:     cfg.Hatena.PaceEvery,
		PaceDelay:     cfg.Hatena.PaceDelay,
		ProgressEvery: cfg.Hatena.ProgressEvery,
	}, logger.Named("crawl"))

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Enrich.LookupRPS, Burst: cfg.Enrich.LookupBurst})
	counter := bookmark.New(bookmark.Config{
		Endpoint:  cfg.Hatena.BookmarkEndpoint,
		UserAgent: userAgent,
		Timeout:   timeout,
	}, nil, limiter, logger.Named("bookmark"))
	enricher := enrich.New(counter, enrich.Config{
		Workers:       cfg.Enrich.Workers,
		ProgressEvery: cfg.Enrich.ProgressEvery,
	}, logger.Named("enrich"))

	pipe := pipeline.New(crawler, enricher, store, logger.Named("pipeline"))

	apiClient := source.NewHTTPClient(timeout)
	qiitaClient := qiita.New(qiita.Config{
		APIBase:     cfg.Qiita.APIBase,
		PerPage:     cfg.Qiita.PerPage,
		MaxArticles: cfg.Qiita.MaxArticles,
		TopN:        cfg.Selection.TopN,
		UserAgent:   userAgent,
	}, apiClient, logger.Named("qiita"))
	zennClient := zenn.New(zenn.Config{
		BaseURL:     cfg.Zenn.BaseURL,
		PerPage:     cfg.Zenn.PerPage,
		MaxArticles: cfg.Zenn.MaxArticles,
		TopN:        cfg.Selection.TopN,
		UserAgent:   userAgent,
	}, apiClient, logger.Named("zenn"))

	registry := tools.NewRegistry(uuid.New(), logger.Named("tools"))
	tools.RegisterArticleTools(registry, tools.Services{
		Hatena:                pipe,
		Qiita:                 qiitaClient,
		Zenn:                  zennClient,
		StartYear:             cfg.Hatena.StartYear,
		BookmarkedProbability: cfg.Selection.BookmarkedProbability,
	})

	logger.Info("application services initialized", zap.Int("tools", len(registry.List())))
	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
	}, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Tools returns the tool registry shared by every surface.
func (a *App) Tools() *tools.Registry {
	return a.registry
}

// Store exposes the snapshot cache.
func (a *App) Store() *local.SnapshotStore {
	return a.store
}

// HTTPServer builds the REST surface bound to the configured port.
func (a *App) HTTPServer() *http.Server {
	handler := api.NewServer(a.registry, a.cfg, a.logger.Named("api")).Handler()
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// StdioServer builds the JSON-RPC stdio surface.
func (a *App) StdioServer() *mcp.Server {
	return mcp.NewServer(a.registry, a.logger.Named("mcp"))
}

// Close flushes buffered logs.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	_ = a.logger.Sync()
}
