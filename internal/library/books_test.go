package library

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-go/internal/rest"
	"github.com/openshelf/openshelf-go/internal/restcache"
)

func TestCatalogNormalizesRecords(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products", r.URL.Path)
		_, _ = w.Write([]byte(`{"err":false,"result":[
			{"id":1,"title":"  The Go Programming Language ","author":" Donovan ","price":"12.5"},
			{"id":2,"title":"Clean Code","author":"Martin","price":"40"}
		]}`))
	})
	books := NewBooks(client, nil)

	got, err := books.Catalog(context.Background(), CatalogQuery{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "The Go Programming Language", got[0].Title)
	require.Equal(t, "Donovan", got[0].Author)
	require.Equal(t, "12.50", got[0].Price)
	require.Equal(t, "40.00", got[1].Price)
}

func TestCatalogAppliesBrowseFilters(t *testing.T) {
	var got *http.Request
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte(`{"err":false,"result":[]}`))
	})
	books := NewBooks(client, nil)

	_, err := books.Catalog(context.Background(), CatalogQuery{
		Category: "fiction",
		Search:   "go",
		Sort:     "title",
		Page:     3,
	})
	require.NoError(t, err)
	require.Equal(t, `category = "fiction"`, got.Header.Get("filter"))

	query := got.URL.Query()
	require.Equal(t, "go", query.Get("search"))
	require.Equal(t, "title", query.Get("sort"))
	require.Equal(t, "3", query.Get("page"))
}

func TestBookFetchesOneRecord(t *testing.T) {
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products/7", r.URL.Path)
		_, _ = w.Write([]byte(`{"err":false,"result":{"id":7,"title":" Go ","price":"9.9"}}`))
	})
	books := NewBooks(client, nil)

	book, err := books.Book(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), book.ID)
	require.Equal(t, "Go", book.Title)
	require.Equal(t, "9.90", book.Price)
}

func TestCreateInvalidatesCatalogCache(t *testing.T) {
	gets := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets++
			_, _ = w.Write([]byte(`{"err":false,"result":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"err":false,"result":{"id":9,"title":"New"}}`))
	}))
	t.Cleanup(server.Close)

	cacher := restcache.NewCacher(restcache.NewMemory(time.Minute), nil, nil)
	client := rest.NewClient(rest.Config{
		BaseURL:    server.URL,
		Timeout:    5 * time.Second,
		MaxRetries: -1,
	}, cacher, nil, nil)
	books := NewBooks(client, nil)
	ctx := context.Background()

	_, err := books.Catalog(ctx, CatalogQuery{})
	require.NoError(t, err)
	_, err = books.Catalog(ctx, CatalogQuery{})
	require.NoError(t, err)
	require.Equal(t, 1, gets, "second browse must come from cache")

	_, err = books.Create(ctx, Book{Title: "New", Price: "10"})
	require.NoError(t, err)

	_, err = books.Catalog(ctx, CatalogQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, gets, "create must drop cached catalog pages")
}

func TestRemoveDeletesRecord(t *testing.T) {
	var gotMethod, gotPath string
	client, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_, _ = w.Write([]byte(`{"err":false,"result":true}`))
	})
	books := NewBooks(client, nil)

	require.NoError(t, books.Remove(context.Background(), 7))
	require.Equal(t, http.MethodDelete, gotMethod)
	require.Equal(t, "/products/7", gotPath)
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "12.50", formatPrice("12.5"))
	require.Equal(t, "40.00", formatPrice("40"))
	require.Equal(t, "0.99", formatPrice(" 0.99 "))
	require.Equal(t, "", formatPrice("  "))
	require.Equal(t, "free", formatPrice("free"), "unparseable prices pass through")
}
