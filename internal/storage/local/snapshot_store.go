// Package local implements the on-disk snapshot cache for enriched blog corpora.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/metrics"
)

// DefaultFreshness is how long a snapshot stays valid.
const DefaultFreshness = 24 * time.Hour

// legacyTimestamp is the naive ISO-8601 layout older cache files carry.
const legacyTimestamp = "2006-01-02T15:04:05.999999"

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Config captures the parameters for the snapshot store.
type Config struct {
	// BaseDir is the directory holding one cache file per blog.
	BaseDir   string        `mapstructure:"dir" yaml:"dir"`
	Freshness time.Duration `mapstructure:"freshness" yaml:"freshness"`
}

// SnapshotStore reads and writes snapshot files on the local filesystem.
type SnapshotStore struct {
	baseDir   string
	freshness time.Duration
	clock     article.Clock
	logger    *zap.Logger
}

type snapshotFile struct {
	LastUpdated string             `json:"last_updated"`
	Articles    *[]article.Article `json:"articles"`
}

// New creates a snapshot store rooted at cfg.BaseDir, creating the directory if needed.
func New(cfg Config, clock article.Clock, logger *zap.Logger) (*SnapshotStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = DefaultFreshness
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{
		baseDir:   cfg.BaseDir,
		freshness: cfg.Freshness,
		clock:     clock,
		logger:    logger,
	}, nil
}

// DefaultDir returns the per-user cache directory for snapshots.
func DefaultDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "sns-post-plugin")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "sns-post-plugin")
	}
	return filepath.Join(os.TempDir(), "sns-post-plugin")
}

// CacheKey derives the file name for blogURL: the scheme is dropped and every
// run of characters outside [A-Za-z0-9._-] becomes an underscore.
func CacheKey(blogURL string) string {
	trimmed := blogURL
	if i := strings.Index(trimmed, "://"); i >= 0 {
		trimmed = trimmed[i+3:]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	key := invalidFilenameChars.ReplaceAllString(trimmed, "_")
	if key == "" || key == "." || key == ".." {
		key = "_"
	}
	return key + "_cache.json"
}

// PathFor returns the cache file path for blogURL.
func (s *SnapshotStore) PathFor(blogURL string) string {
	return filepath.Join(s.baseDir, CacheKey(blogURL))
}

// Save writes articles for blogURL stamped with the current time.
// Articles without a bookmark count are stored with zero.
func (s *SnapshotStore) Save(ctx context.Context, blogURL string, articles []article.Article) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	normalized := make([]article.Article, len(articles))
	for i, a := range articles {
		normalized[i] = a.WithBookmarks(a.Bookmarks())
	}
	payload, err := encodeSnapshot(article.Snapshot{
		LastUpdated: s.clock.Now(),
		Articles:    normalized,
	})
	if err != nil {
		return err
	}
	target := s.PathFor(blogURL)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating cache dir for %s: %w", target, err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write snapshot %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", target, err)
	}
	s.logger.Info("snapshot saved",
		zap.String("blog_url", blogURL),
		zap.String("path", target),
		zap.Int("articles", len(normalized)),
	)
	return nil
}

// Load returns the cached articles for blogURL when a fresh, well-formed snapshot exists.
// Missing, unreadable, malformed and stale files all report a miss.
func (s *SnapshotStore) Load(_ context.Context, blogURL string) ([]article.Article, bool) {
	path := s.PathFor(blogURL)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("snapshot unreadable", zap.String("path", path), zap.Error(err))
		}
		metrics.ObserveCacheRead("miss")
		return nil, false
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		s.logger.Warn("snapshot malformed", zap.String("path", path), zap.Error(err))
		metrics.ObserveCacheRead("invalid")
		return nil, false
	}
	age := s.clock.Now().Sub(snap.LastUpdated)
	if age >= s.freshness {
		s.logger.Info("snapshot stale", zap.String("path", path), zap.Duration("age", age))
		metrics.ObserveCacheRead("stale")
		return nil, false
	}
	s.logger.Info("snapshot loaded",
		zap.String("path", path),
		zap.Int("articles", len(snap.Articles)),
		zap.Duration("age", age),
	)
	metrics.ObserveCacheRead("hit")
	return snap.Articles, true
}

func encodeSnapshot(snap article.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	file := snapshotFile{
		LastUpdated: snap.LastUpdated.Format(time.RFC3339Nano),
		Articles:    &snap.Articles,
	}
	if err := enc.Encode(file); err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(raw []byte) (article.Snapshot, error) {
	var file snapshotFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return article.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if file.LastUpdated == "" {
		return article.Snapshot{}, errors.New("snapshot missing last_updated")
	}
	if file.Articles == nil {
		return article.Snapshot{}, errors.New("snapshot missing articles")
	}
	updated, err := parseTimestamp(file.LastUpdated)
	if err != nil {
		return article.Snapshot{}, err
	}
	return article.Snapshot{LastUpdated: updated, Articles: *file.Articles}, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	ts, err := time.ParseInLocation(legacyTimestamp, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last_updated %q: %w", raw, err)
	}
	return ts, nil
}
