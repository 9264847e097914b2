// Package article defines core types shared across subsystems.
package article

import (
	"errors"
	"time"
)

// ErrNoArticles is returned when a selection is requested from an empty corpus.
var ErrNoArticles = errors.New("no articles available")

// Article is one post discovered on a blog archive page.
type Article struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	ArchiveURL string `json:"archive_url"`
	// BookmarkCount is nil until the article has been enriched.
	BookmarkCount *int `json:"bookmark_count,omitempty"`
}

// Enriched reports whether a bookmark count has been attached.
func (a Article) Enriched() bool {
	return a.BookmarkCount != nil
}

// Bookmarks returns the bookmark count, treating a missing value as zero.
func (a Article) Bookmarks() int {
	if a.BookmarkCount == nil {
		return 0
	}
	return *a.BookmarkCount
}

// WithBookmarks returns a copy of the article carrying count.
func (a Article) WithBookmarks(count int) Article {
	if count < 0 {
		count = 0
	}
	a.BookmarkCount = &count
	return a
}

// Snapshot is the cached state of one blog's enriched corpus.
type Snapshot struct {
	LastUpdated time.Time `json:"last_updated"`
	Articles    []Article `json:"articles"`
}

// PopularArticle is an article returned by a platform API ranked by likes.
type PopularArticle struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Likes       int      `json:"likes"`
	PublishedAt string   `json:"published_at"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	GUID        string   `json:"guid"`
}
