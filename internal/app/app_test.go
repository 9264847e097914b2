package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-picker/internal/app"
	"github.com/JakeFAU/article-picker/internal/article"
	"github.com/JakeFAU/article-picker/internal/config"
	"github.com/JakeFAU/article-picker/internal/tools"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Cache.Dir = t.TempDir()
	cfg.Hatena.PaceDelay = 0
	return cfg
}

func TestNewRegistersTools(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	names := []string{}
	for _, d := range a.Tools().List() {
		names = append(names, d.Name)
	}
	require.Equal(t, []string{tools.HatenaTool, tools.QiitaTool, tools.ZennTool}, names)
	require.NotNil(t, a.Store())
	require.Equal(t, ":8080", a.HTTPServer().Addr)
	require.NotNil(t, a.StdioServer())
}

func TestNewFailsWhenCacheDirIsAFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	file := cfg.Cache.Dir + "/not-a-dir"
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	cfg.Cache.Dir = file

	_, err := app.New(cfg, nil)
	require.Error(t, err)
}

// TestHatenaToolEndToEnd crawls a fake blog, enriches it against a fake
// bookmark service, then serves the second call from the cache.
func TestHatenaToolEndToEnd(t *testing.T) {
	t.Parallel()

	var archiveHits, lookupHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/archive/", func(w http.ResponseWriter, r *http.Request) {
		archiveHits.Add(1)
		month := strings.TrimPrefix(r.URL.Path, "/archive/")
		fmt.Fprintf(w, `<html><body>
<h1><a class="entry-title-link" href="/entry/%[1]s/first"> First of %[1]s </a></h1>
<h1><a class="entry-title-link" href="/entry/%[1]s/second">Second of %[1]s</a></h1>
<a href="/about">About</a>
</body></html>`, month)
	})
	mux.HandleFunc("/entry/jsonlite/", func(w http.ResponseWriter, r *http.Request) {
		lookupHits.Add(1)
		if strings.HasSuffix(r.URL.Query().Get("url"), "/first") {
			_, _ = w.Write([]byte(`{"count": 12}`))
			return
		}
		_, _ = w.Write([]byte(`null`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Hatena.BookmarkEndpoint = srv.URL + "/entry/jsonlite/"
	cfg.Selection.BookmarkedProbability = 1
	a, err := app.New(cfg, zap.NewNop())
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	args := json.RawMessage(fmt.Sprintf(`{"blog_url":%q,"start_year":%d,"random_seed":7}`, srv.URL, year))
	out, err := a.Tools().Call(context.Background(), tools.HatenaTool, args)
	require.NoError(t, err)

	var picked article.Article
	require.NoError(t, json.Unmarshal([]byte(out), &picked))
	assert.True(t, strings.HasPrefix(picked.URL, srv.URL+"/entry/"))
	assert.True(t, strings.HasSuffix(picked.URL, "/first"), "bookmarked tier always wins at probability 1")
	assert.Equal(t, 12, picked.Bookmarks())
	assert.True(t, strings.HasPrefix(picked.Title, "First of "))
	assert.True(t, strings.HasPrefix(picked.ArchiveURL, srv.URL+"/archive/"))

	months := int(time.Now().UTC().Month())
	require.EqualValues(t, months, archiveHits.Load())
	require.EqualValues(t, 2*months, lookupHits.Load())

	_, err = os.Stat(a.Store().PathFor(srv.URL))
	require.NoError(t, err)

	again, err := a.Tools().Call(context.Background(), tools.HatenaTool, args)
	require.NoError(t, err)
	require.Equal(t, out, again)
	require.EqualValues(t, months, archiveHits.Load(), "second call is served from cache")
	require.EqualValues(t, 2*months, lookupHits.Load())
}

func TestHatenaToolEmptyBlog(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a, err := app.New(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	args := json.RawMessage(fmt.Sprintf(`{"blog_url":%q,"start_year":%d}`, srv.URL, time.Now().UTC().Year()))
	_, err = a.Tools().Call(context.Background(), tools.HatenaTool, args)
	require.ErrorIs(t, err, article.ErrNoArticles)
}
