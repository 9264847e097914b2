package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func newTestStore(t *testing.T, clk *fakeClock) *SnapshotStore {
	t.Helper()
	store, err := New(Config{BaseDir: t.TempDir()}, clk, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://karaage.hatenadiary.jp", "karaage.hatenadiary.jp_cache.json"},
		{"https://karaage.hatenadiary.jp/", "karaage.hatenadiary.jp_cache.json"},
		{"http://example.com/blog/sub", "example.com_blog_sub_cache.json"},
		{"https://example.com:8080/a b", "example.com_8080_a_b_cache.json"},
		{"https://", "__cache.json"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, CacheKey(tc.in), tc.in)
	}
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, &fakeClock{}, nil)
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{BaseDir: file}, &fakeClock{}, nil)
	require.Error(t, err)
}

func TestNewCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	_, err := New(Config{BaseDir: dir}, &fakeClock{}, nil)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clk)
	blog := "https://blog.example.com"
	articles := []article.Article{
		article.Article{Title: "日本語のタイトル", URL: blog + "/entry/1", ArchiveURL: blog + "/archive/2024/04"}.WithBookmarks(4),
		{Title: "<b>tags</b> & more", URL: blog + "/entry/2", ArchiveURL: blog + "/archive/2024/04"},
	}

	require.NoError(t, store.Save(context.Background(), blog, articles))

	raw, err := os.ReadFile(store.PathFor(blog))
	require.NoError(t, err)
	require.Contains(t, string(raw), "日本語のタイトル")
	require.Contains(t, string(raw), "<b>tags</b> & more")
	require.Contains(t, string(raw), "\n  \"articles\"")

	clk.now = clk.now.Add(time.Hour)
	got, ok := store.Load(context.Background(), blog)
	require.True(t, ok)
	require.Len(t, got, 2)
	require.Equal(t, 4, got[0].Bookmarks())
	require.True(t, got[1].Enriched(), "missing counts are persisted as zero")
	require.Equal(t, 0, got[1].Bookmarks())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeClock{now: time.Now()})
	got, ok := store.Load(context.Background(), "https://nobody.example.com")
	require.False(t, ok)
	require.Nil(t, got)
}

func TestLoadStaleSnapshot(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := newTestStore(t, clk)
	blog := "https://blog.example.com"
	require.NoError(t, store.Save(context.Background(), blog, []article.Article{{Title: "t", URL: "u"}}))

	clk.now = clk.now.Add(25 * time.Hour)
	_, ok := store.Load(context.Background(), blog)
	require.False(t, ok)

	clk.now = clk.now.Add(-25*time.Hour + 23*time.Hour)
	_, ok = store.Load(context.Background(), blog)
	require.True(t, ok)
}

func TestLoadMalformedSnapshots(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":          "{nope",
		"missing articles":  `{"last_updated": "2024-05-01T12:00:00Z"}`,
		"missing timestamp": `{"articles": []}`,
		"bad timestamp":     `{"last_updated": "yesterday", "articles": []}`,
		"wrong shape":       `[1, 2, 3]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			store := newTestStore(t, &fakeClock{now: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)})
			blog := "https://blog.example.com"
			require.NoError(t, os.WriteFile(store.PathFor(blog), []byte(body), 0o600))
			got, ok := store.Load(context.Background(), blog)
			require.False(t, ok)
			require.Nil(t, got)
		})
	}
}

func TestLoadLegacyNaiveTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := newTestStore(t, &fakeClock{now: now})
	blog := "https://legacy.example.com"
	stamp := now.Add(-time.Hour).Format(legacyTimestamp)
	body := `{"last_updated": "` + stamp + `", "articles": [{"title": "old", "url": "u", "archive_url": "a", "bookmark_count": 2}]}`
	require.NoError(t, os.WriteFile(store.PathFor(blog), []byte(body), 0o600))

	got, ok := store.Load(context.Background(), blog)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, 2, got[0].Bookmarks())
}

func TestSaveHonoursCanceledContext(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeClock{now: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.Save(ctx, "https://blog.example.com", nil))
}
