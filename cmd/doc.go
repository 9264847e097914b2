// Package cmd defines and implements the CLI commands for the articlepicker executable.
//
// Architecture overview:
//   - Tools: internal/tools.Registry holds fetch_hatena_articles, fetch_qiita_articles and fetch_zenn_articles.
//     Every surface below dispatches into the same registry, so argument validation and result encoding are shared.
//   - Hatena pipeline: the archive crawler walks /archive/YYYY/MM pages one at a time through the Colly fetcher,
//     pausing every few pages. The enrichment coordinator then looks up bookmark counts on a bounded worker pool,
//     the corpus is cached as one JSON file per blog, and the weighted selector picks a single article.
//   - Qiita and Zenn: paginated JSON API clients rank articles by likes and draw a rank-weighted sample.
//   - Surfaces: `serve` runs the chi HTTP API, `stdio` speaks JSON-RPC on stdin/stdout, `call` runs one tool.
//   - Configuration & plumbing: Viper populates config from env (ARTICLEPICKER_*) and an optional file; zap
//     provides structured logging on stderr; Prometheus metrics are exported at /metrics.
//
// Operational notes:
//   - The first crawl of a blog can take minutes (one request per month since start_year plus a lookup per
//     article). Later calls within cache.freshness are served from the cached snapshot.
//   - The cache directory is not locked; run one crawler per cache directory.
package cmd
