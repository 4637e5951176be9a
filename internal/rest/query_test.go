package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryPreconditions(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost:4000/api"}, nil, nil, nil)
	ctx := context.Background()

	_, err := client.Resource("products").Get(ctx)
	require.ErrorIs(t, err, ErrMissingID)

	_, err = client.Resource("products").Create(ctx)
	require.ErrorIs(t, err, ErrMissingBody)

	_, err = client.Resource("products").WithBody(map[string]string{}).Update(ctx)
	require.ErrorIs(t, err, ErrMissingID)

	_, err = client.Resource("products").WithID("1").Update(ctx)
	require.ErrorIs(t, err, ErrMissingBody)

	_, err = client.Resource("products").WithID("1").Patch(ctx)
	require.ErrorIs(t, err, ErrMissingBody)

	_, err = client.Resource("products").Delete(ctx)
	require.ErrorIs(t, err, ErrMissingID)
}

func TestQueryVerbsAndEndpoints(t *testing.T) {
	type seen struct {
		method string
		path   string
	}
	var requests []seen
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, seen{r.Method, r.URL.Path})
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	_, err := client.Resource("products").GetAll(ctx)
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("3").Get(ctx)
	require.NoError(t, err)
	_, err = client.Resource("products").WithBody(map[string]int{"a": 1}).Create(ctx)
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("3").WithBody(map[string]int{"a": 1}).Update(ctx)
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("3").WithBody(map[string]int{"a": 1}).Patch(ctx)
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("3").Delete(ctx)
	require.NoError(t, err)

	require.Equal(t, []seen{
		{http.MethodGet, "/products"},
		{http.MethodGet, "/products/3"},
		{http.MethodPost, "/products"},
		{http.MethodPut, "/products/3"},
		{http.MethodPatch, "/products/3"},
		{http.MethodDelete, "/products/3"},
	}, requests)
}

func TestQueryCancelTokenOverridesTerminalContext(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Resource("products").
		WithCancelToken(canceled).
		GetAll(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestManagerAndQueryProduceIdenticalRequests(t *testing.T) {
	type capture struct {
		method    string
		path      string
		signature string
	}
	var captures []capture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captures = append(captures, capture{r.Method, r.URL.Path, r.Header.Get("Signature")})
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second, MaxRetries: -1}, nil, nil, nil)
	ctx := context.Background()
	body := map[string]string{"title": "Go"}

	_, err := client.Manager("products").GetOne(ctx, "5")
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("5").Get(ctx)
	require.NoError(t, err)

	_, err = client.Manager("products").Create(ctx, body)
	require.NoError(t, err)
	_, err = client.Resource("products").WithBody(body).Create(ctx)
	require.NoError(t, err)

	_, err = client.Manager("products").Update(ctx, "5", body)
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("5").WithBody(body).Update(ctx)
	require.NoError(t, err)

	_, err = client.Manager("products").Remove(ctx, "5")
	require.NoError(t, err)
	_, err = client.Resource("products").WithID("5").Delete(ctx)
	require.NoError(t, err)

	require.Len(t, captures, 8)
	for i := 0; i < len(captures); i += 2 {
		require.Equal(t, captures[i], captures[i+1], "pair %d diverged", i/2)
	}
}

func TestWithBodyFlagsArrays(t *testing.T) {
	var signatures []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		signatures = append(signatures, r.Header.Get("Signature"))
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	_, err := client.Resource("products").WithBody(map[string]int{"a": 1}).Create(ctx)
	require.NoError(t, err)
	_, err = client.Resource("products").WithBody([]map[string]int{{"a": 1}}).Create(ctx)
	require.NoError(t, err)

	require.Len(t, signatures, 2)
	require.NotEqual(t, signatures[0], signatures[1])
}

func TestTokenTableReplace(t *testing.T) {
	table := NewTokenTable(map[string]string{"sig-a": "tok-a"})
	tok, ok := table.Token("sig-a")
	require.True(t, ok)
	require.Equal(t, "tok-a", tok)
	require.Equal(t, 1, table.Len())

	table.Replace(map[string]string{"sig-b": "tok-b"})
	_, ok = table.Token("sig-a")
	require.False(t, ok)
	tok, ok = table.Token("sig-b")
	require.True(t, ok)
	require.Equal(t, "tok-b", tok)
}
