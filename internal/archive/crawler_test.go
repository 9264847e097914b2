package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time {
	return f.now
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
	after  []int
	calls  *[]string
	cancel context.CancelFunc
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	if s.calls != nil {
		s.after = append(s.after, len(*s.calls))
	}
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return ctx.Err()
}

type fakeExtractor struct {
	calls []string
	pages map[string][]article.Article
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, archiveURL string) []article.Article {
	f.calls = append(f.calls, archiveURL)
	return f.pages[archiveURL]
}

func TestURLs(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	got := URLs("https://blog.example.com/", 2023, now)
	require.Len(t, got, 15)
	require.Equal(t, "https://blog.example.com/archive/2023/01", got[0])
	require.Equal(t, "https://blog.example.com/archive/2023/12", got[11])
	require.Equal(t, "https://blog.example.com/archive/2024/03", got[14])
	for _, u := range got {
		require.NotContains(t, u, "2024/04")
	}
}

func TestURLsCurrentYearOnly(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, []string{"https://b/archive/2024/01"}, URLs("https://b", 2024, now))
}

func TestURLsFutureStartYearIsEmpty(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.Empty(t, URLs("https://b", 2025, now))
}

func TestCollectConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	blog := "https://blog.example.com"
	extractor := &fakeExtractor{pages: map[string][]article.Article{
		blog + "/archive/2024/01": {{Title: "a", URL: blog + "/entry/a"}},
		blog + "/archive/2024/03": {{Title: "c1", URL: blog + "/entry/c1"}, {Title: "c2", URL: blog + "/entry/c2"}},
	}}
	sleeper := &recordingSleeper{}
	c := New(extractor, fakeClock{now: time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)},
		sleeper, Config{PaceDelay: time.Second}, zap.NewNop())

	got := c.Collect(context.Background(), blog, 2024)
	require.Len(t, extractor.calls, 3)
	require.Len(t, got, 3)
	require.Equal(t, []string{"a", "c1", "c2"}, []string{got[0].Title, got[1].Title, got[2].Title})
}

func TestCollectPacing(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	sleeper := &recordingSleeper{calls: &extractor.calls}
	// 2023-01 through 2024-09 is 21 pages.
	c := New(extractor, fakeClock{now: time.Date(2024, time.September, 10, 0, 0, 0, 0, time.UTC)},
		sleeper, Config{PaceEvery: 10, PaceDelay: time.Second}, nil)

	got := c.Collect(context.Background(), "https://b", 2023)
	require.Empty(t, got)
	require.Len(t, extractor.calls, 21)
	require.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, sleeper.sleeps)
	require.Equal(t, []int{1, 11, 21}, sleeper.after)
}

func TestCollectDefaultsStartYear(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	c := New(extractor, fakeClock{now: time.Date(2014, time.February, 1, 0, 0, 0, 0, time.UTC)}, nil, Config{}, nil)
	c.Collect(context.Background(), "https://b", 0)
	require.Equal(t, []string{"https://b/archive/2014/01", "https://b/archive/2014/02"}, extractor.calls)
}

func TestCollectStopsWhenContextEnds(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sleeper := &recordingSleeper{cancel: cancel}
	c := New(extractor, fakeClock{now: time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)}, sleeper, Config{}, nil)

	c.Collect(ctx, "https://b", 2020)
	require.Len(t, extractor.calls, 1, "the first pacing sleep observes cancellation")
}
