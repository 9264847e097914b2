package qiita

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/selector"
)

func itemsPage(start, n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, map[string]any{
			"title":       fmt.Sprintf("post %d", i),
			"url":         fmt.Sprintf("https://qiita.com/alice/items/%d", i),
			"likes_count": i,
			"created_at":  "2024-01-02T03:04:05+09:00",
			"body":        "body of post",
			"tags":        []map[string]string{{"name": "go"}, {"name": "testing"}},
		})
	}
	return out
}

func newServer(t *testing.T, total int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/users/alice/items", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		start := (page - 1) * perPage
		n := max(0, min(perPage, total-start))
		_ = json.NewEncoder(w).Encode(itemsPage(start, n))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchArticlesMapsFields(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, 3, &requests)
	c := New(Config{APIBase: srv.URL}, srv.Client(), zap.NewNop())

	got := c.FetchArticles(context.Background(), "alice")
	require.Len(t, got, 3)
	require.Equal(t, "post 0", got[0].Title)
	require.Equal(t, "https://qiita.com/alice/items/0", got[0].URL)
	require.Equal(t, got[0].URL, got[0].GUID)
	require.Equal(t, "2024-01-02T03:04:05+09:00", got[0].PublishedAt)
	require.Equal(t, "body of post...", got[0].Description)
	require.Equal(t, []string{"go", "testing"}, got[0].Tags)
	require.Equal(t, 2, got[2].Likes)
	require.EqualValues(t, 2, requests.Load(), "stops at the first empty page")
}

func TestFetchArticlesCapsAtMax(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, 1000, &requests)
	c := New(Config{APIBase: srv.URL}, srv.Client(), nil)

	got := c.FetchArticles(context.Background(), "alice")
	require.Len(t, got, 200)
	require.EqualValues(t, 2, requests.Load())
}

func TestFetchArticlesStopsOnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			_ = json.NewEncoder(w).Encode(itemsPage(0, 100))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	got := New(Config{APIBase: srv.URL}, srv.Client(), nil).FetchArticles(context.Background(), "alice")
	require.Len(t, got, 100)
}

func TestPopularArticles(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, 150, &requests)
	c := New(Config{APIBase: srv.URL}, srv.Client(), nil)

	seed := int64(12)
	got := c.PopularArticles(context.Background(), "alice", 2, selector.NewRand(&seed))
	require.Len(t, got, 2)
	for _, a := range got {
		require.GreaterOrEqual(t, a.Likes, 50)
	}

	all := c.PopularArticles(context.Background(), "alice", 500, selector.NewRand(&seed))
	require.Len(t, all, 100)
	require.Equal(t, 149, all[0].Likes)
}

func TestPopularArticlesNoArticles(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := newServer(t, 0, &requests)
	got := New(Config{APIBase: srv.URL}, srv.Client(), nil).
		PopularArticles(context.Background(), "alice", 3, selector.NewRand(nil))
	require.NotNil(t, got)
	require.Empty(t, got)
}
