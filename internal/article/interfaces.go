package article

import (
	"context"
	"time"
)

// ArchiveExtractor pulls the article links out of one archive page.
type ArchiveExtractor interface {
	Extract(ctx context.Context, blogURL, archiveURL string) []Article
}

// BookmarkCounter looks up the bookmark count for one article URL.
type BookmarkCounter interface {
	Count(ctx context.Context, articleURL string) (int, error)
}

// SnapshotStore persists enriched corpora between runs.
type SnapshotStore interface {
	Load(ctx context.Context, blogURL string) ([]Article, bool)
	Save(ctx context.Context, blogURL string, articles []Article) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request and call IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
