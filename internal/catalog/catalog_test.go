package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"commerce-agent/internal/errs"
	"commerce-agent/internal/lexical"
	"commerce-agent/internal/models"
	"commerce-agent/internal/redisclient"
	"commerce-agent/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testItems() []models.CatalogItem {
	return []models.CatalogItem{
		{ID: "A1001", Title: "Apple AirPods Pro", Price: 249, Image: "https://img.example/a1001.png", Keywords: []string{"earbuds", "apple"}},
		{ID: "S2002", Title: "Sony WH-1000XM5", Price: 399.99, Keywords: []string{"headphones", "over-ear"}},
		{ID: "G3001", Title: "Samsung Galaxy Buds2", Price: 129.5, Keywords: []string{"earbuds"}},
		{ID: "K5001", Title: "Mechanical Keyboard", Price: 89, Keywords: []string{"keyboard"}},
		{ID: "M6001", Title: "Wireless Mouse", Price: 59.5, Keywords: []string{"mouse"}},
		{ID: "C7001", Title: "USB-C Cable", Price: 12.99, Keywords: []string{"cable"}},
	}
}

func ids(items []models.CatalogItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestLocalSearchAirpods(t *testing.T) {
	l := NewLocal(testItems(), lexical.DefaultMatcher())

	got, err := l.Search(context.Background(), "airpods")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1001"}, ids(got))
}

func TestLocalEmptyQueryPreview(t *testing.T) {
	l := NewLocal(testItems(), lexical.DefaultMatcher())

	got, err := l.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1001", "S2002", "G3001", "K5001", "M6001"}, ids(got))

	all, err := l.Match(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestLocalFuzzyFallback(t *testing.T) {
	l := NewLocal(testItems(), lexical.DefaultMatcher())

	got, err := l.Search(context.Background(), "headfones")
	require.NoError(t, err)
	assert.Equal(t, []string{"S2002"}, ids(got))
}

func TestLocalGetByID(t *testing.T) {
	l := NewLocal(testItems(), lexical.DefaultMatcher())

	it, err := l.GetByID(context.Background(), "k5001")
	require.NoError(t, err)
	assert.Equal(t, "Mechanical Keyboard", it.Title)

	_, err = l.GetByID(context.Background(), "NOPE")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func writeCatalog(t *testing.T, path string, items []models.CatalogItem) {
	t.Helper()
	b, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func TestLocalReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, testItems()[:2])

	l, err := LoadLocal(path, lexical.DefaultMatcher())
	require.NoError(t, err)
	assert.Len(t, l.Items(), 2)

	writeCatalog(t, path, testItems())
	n, err := l.Reload()
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	_, err = l.Reload()
	assert.Error(t, err)
	assert.Len(t, l.Items(), 6)
}

func TestLocalWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	writeCatalog(t, path, testItems()[:1])

	l, err := LoadLocal(path, lexical.DefaultMatcher())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	full, err := json.Marshal(testItems())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, full, 0o644)
		return len(l.Items()) == 6
	}, 5*time.Second, 100*time.Millisecond)
}

func TestImagePolicies(t *testing.T) {
	withImage := models.CatalogItem{ID: "A1001", Title: "Apple AirPods Pro (2nd generation)", Image: "https://img.example/a.png"}
	noImage := models.CatalogItem{ID: "K5001", Title: "Keyboard"}

	assert.Equal(t, "https://img.example/a.png", ImagePolicy(ImageCatalog).Decorate(withImage).Image)
	assert.Equal(t, "https://picsum.photos/seed/K5001/240/180", ImagePolicy(ImageCatalog).Decorate(noImage).Image)
	assert.Equal(t, "https://picsum.photos/seed/A1001/240/180", ImagePolicy(ImagePicsum).Decorate(withImage).Image)
	assert.Equal(t, "https://source.unsplash.com/featured/240x180?Apple+AirPods+Pro+2nd+generation",
		ImagePolicy(ImageUnsplash).Decorate(withImage).Image)
	assert.Equal(t, "https://picsum.photos/seed/placeholder/240/180", ImagePolicy(ImagePicsum).Decorate(models.CatalogItem{}).Image)
}

func TestCards(t *testing.T) {
	items := append(testItems(), testItems()...)
	assert.Len(t, Cards(items), MaxCards)
	assert.Len(t, Cards(items[:2]), 2)
}

type countingBackend struct {
	*Local
	searches int
}

func (c *countingBackend) Search(ctx context.Context, q string) ([]models.CatalogItem, error) {
	c.searches++
	return c.Local.Search(ctx, q)
}

func TestResolverCachesByKeyWithTTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryCache(30*time.Second, func() time.Time { return now })
	backend := &countingBackend{Local: NewLocal(testItems(), lexical.DefaultMatcher())}
	r := NewResolver(backend, ImageCatalog, cache)
	ctx := context.Background()

	first, err := r.Search(ctx, "earbuds")
	require.NoError(t, err)
	_, err = r.Search(ctx, "EARBUDS")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.searches)
	assert.Equal(t, "https://img.example/a1001.png", first[0].Image)
	assert.Equal(t, "https://picsum.photos/seed/G3001/240/180", first[1].Image)

	now = now.Add(29 * time.Second)
	_, _ = r.Search(ctx, "earbuds")
	assert.Equal(t, 1, backend.searches)

	now = now.Add(2 * time.Second)
	_, _ = r.Search(ctx, "earbuds")
	assert.Equal(t, 2, backend.searches)
}

func TestResolverWithoutCache(t *testing.T) {
	backend := &countingBackend{Local: NewLocal(testItems(), lexical.DefaultMatcher())}
	r := NewResolver(backend, ImagePicsum, nil)

	_, _ = r.Search(context.Background(), "mouse")
	_, _ = r.Search(context.Background(), "mouse")
	assert.Equal(t, 2, backend.searches)
}

func TestMemoryCacheLazyEviction(t *testing.T) {
	now := time.Now()
	c := NewMemoryCache(time.Second, func() time.Time { return now })
	ctx := context.Background()

	c.Set(ctx, "k", testItems()[:1])
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewRedisCache(redisclient.Wrap(rdb), 30*time.Second)
	ctx := context.Background()

	_, ok := c.Get(ctx, "q|local|catalog")
	assert.False(t, ok)

	c.Set(ctx, "q|local|catalog", testItems()[:2])
	got, ok := c.Get(ctx, "q|local|catalog")
	require.True(t, ok)
	assert.Equal(t, []string{"A1001", "S2002"}, ids(got))

	mr.FastForward(time.Minute)
	_, ok = c.Get(ctx, "q|local|catalog")
	assert.False(t, ok)
}

func TestRedisCacheWriteFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	prev := util.GetLogger()
	util.SetLogger(zap.New(core))
	t.Cleanup(func() { util.SetLogger(prev) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	c := NewRedisCache(redisclient.Wrap(rdb), 30*time.Second)
	ctx := context.Background()

	mr.Close()
	c.Set(ctx, "q|local|catalog", testItems()[:1])
	_, ok := c.Get(ctx, "q|local|catalog")
	assert.False(t, ok)

	entries := logs.FilterMessage("Failed to write search cache entry").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "q|local|catalog", entries[0].ContextMap()["key"])
}

func newDummyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/products/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"products": []map[string]interface{}{
				{"id": 1, "title": "iPhone 9", "price": 549, "thumbnail": "https://cdn.example/1.jpg"},
				{"id": 2, "title": "Samsung Universe 9", "price": 1249, "images": []string{"https://cdn.example/2.jpg"}},
			},
		})
	})
	mux.HandleFunc("/products/1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": 1, "title": "iPhone 9", "price": 549})
	})
	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteSearch(t *testing.T) {
	srv := newDummyServer(t)
	r := NewRemote(srv.URL, lexical.DefaultMatcher())
	ctx := context.Background()

	got, err := r.Search(ctx, "iphone")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "D1", got[0].ID)
	assert.Equal(t, "https://cdn.example/1.jpg", got[0].Image)

	got, err = r.Search(ctx, "samsng")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "D2", got[0].ID)
	assert.Equal(t, "https://cdn.example/2.jpg", got[0].Image)

	_, err = r.Search(ctx, "boom")
	assert.ErrorIs(t, err, errs.ErrUpstream)
}

func TestRemoteGetByID(t *testing.T) {
	srv := newDummyServer(t)
	r := NewRemote(srv.URL, lexical.DefaultMatcher())
	ctx := context.Background()

	it, err := r.GetByID(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "iPhone 9", it.Title)

	it, err = r.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "D1", it.ID)

	_, err = r.GetByID(ctx, "D99")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
