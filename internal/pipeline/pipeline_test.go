package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/enrich"
	"github.com/JakeFAU/article-picker/internal/selector"
)

type fakeCollector struct {
	calls    int
	articles []article.Article
}

func (f *fakeCollector) Collect(context.Context, string, int) []article.Article {
	f.calls++
	out := make([]article.Article, len(f.articles))
	copy(out, f.articles)
	return out
}

type fakeEnricher struct {
	calls int
	count int
}

func (f *fakeEnricher) Enrich(_ context.Context, articles []article.Article) enrich.Stats {
	f.calls++
	for i := range articles {
		articles[i] = articles[i].WithBookmarks(f.count)
	}
	return enrich.Stats{Total: len(articles), Dispatched: len(articles), Succeeded: len(articles)}
}

type fakeStore struct {
	cached  []article.Article
	hit     bool
	saved   []article.Article
	saves   int
	saveErr error
}

func (f *fakeStore) Load(context.Context, string) ([]article.Article, bool) {
	return f.cached, f.hit
}

func (f *fakeStore) Save(_ context.Context, _ string, articles []article.Article) error {
	f.saves++
	f.saved = articles
	return f.saveErr
}

type firstPicker struct{}

func (firstPicker) Pick(articles []article.Article) (selector.Selection, error) {
	if len(articles) == 0 {
		return selector.Selection{}, article.ErrNoArticles
	}
	return selector.Selection{Article: articles[0], Branch: selector.BranchAll}, nil
}

func TestRunUsesFreshCache(t *testing.T) {
	t.Parallel()

	cached := []article.Article{{Title: "cached", URL: "u"}}
	collector := &fakeCollector{}
	enricher := &fakeEnricher{}
	store := &fakeStore{cached: cached, hit: true}

	res, err := New(collector, enricher, store, zap.NewNop()).
		Run(context.Background(), Request{BlogURL: "https://b", UseCache: true}, firstPicker{})
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, "cached", res.Selected.Title)
	require.Zero(t, collector.calls)
	require.Zero(t, enricher.calls)
	require.Zero(t, store.saves)
}

func TestRunCrawlsOnCacheMiss(t *testing.T) {
	t.Parallel()

	collector := &fakeCollector{articles: []article.Article{{Title: "a", URL: "ua"}, {Title: "b", URL: "ub"}}}
	enricher := &fakeEnricher{count: 3}
	store := &fakeStore{}

	res, err := New(collector, enricher, store, nil).
		Run(context.Background(), Request{BlogURL: "https://b", UseCache: true}, firstPicker{})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, 1, collector.calls)
	require.Equal(t, 1, enricher.calls)
	require.Equal(t, 1, store.saves)
	require.Len(t, store.saved, 2)
	require.Equal(t, 3, store.saved[1].Bookmarks())
	require.Equal(t, "a", res.Selected.Title)
	require.Equal(t, 2, res.Stats.Succeeded)
}

func TestRunIgnoresCacheWhenDisabled(t *testing.T) {
	t.Parallel()

	collector := &fakeCollector{articles: []article.Article{{Title: "fresh", URL: "u"}}}
	store := &fakeStore{cached: []article.Article{{Title: "cached"}}, hit: true}

	res, err := New(collector, &fakeEnricher{}, store, nil).
		Run(context.Background(), Request{BlogURL: "https://b", UseCache: false}, firstPicker{})
	require.NoError(t, err)
	require.Equal(t, "fresh", res.Selected.Title)
	require.Equal(t, 1, store.saves)
}

func TestRunRecrawlsEmptyCachedSnapshot(t *testing.T) {
	t.Parallel()

	collector := &fakeCollector{articles: []article.Article{{Title: "fresh", URL: "u"}}}
	store := &fakeStore{cached: []article.Article{}, hit: true}

	res, err := New(collector, &fakeEnricher{}, store, nil).
		Run(context.Background(), Request{BlogURL: "https://b", UseCache: true}, firstPicker{})
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Equal(t, 1, collector.calls)
}

func TestRunSaveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	collector := &fakeCollector{articles: []article.Article{{Title: "a", URL: "u"}}}
	store := &fakeStore{saveErr: errors.New("disk full")}

	res, err := New(collector, &fakeEnricher{}, store, nil).
		Run(context.Background(), Request{BlogURL: "https://b"}, firstPicker{})
	require.NoError(t, err)
	require.Equal(t, "a", res.Selected.Title)
}

func TestRunEmptyCorpus(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	res, err := New(&fakeCollector{}, &fakeEnricher{}, store, nil).
		Run(context.Background(), Request{BlogURL: "https://b", UseCache: true}, firstPicker{})
	require.ErrorIs(t, err, article.ErrNoArticles)
	require.Empty(t, res.Articles)
	require.Equal(t, 1, store.saves, "the empty crawl is still recorded")
}

func TestRunWithoutStore(t *testing.T) {
	t.Parallel()

	collector := &fakeCollector{articles: []article.Article{{Title: "a", URL: "u"}}}
	res, err := New(collector, &fakeEnricher{}, nil, nil).
		Run(context.Background(), Request{BlogURL: "https://b", UseCache: true}, firstPicker{})
	require.NoError(t, err)
	require.Equal(t, "a", res.Selected.Title)
}
