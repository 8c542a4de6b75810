package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klsr/podcast-comb/app/feed"
)

const rssBody = `<rss version="2.0"><channel></channel></rss>`

// recorder counts hits per strategy name, in arrival order.
type recorder struct {
	mu   sync.Mutex
	hits []string
}

func (r *recorder) handler(name string, status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.hits = append(r.hits, name)
		r.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (r *recorder) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.hits...)
}

func newServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestStrategyRequestURL(t *testing.T) {
	target := "https://anchor.fm/s/abc/podcast/rss?a=1 b"

	direct := Strategy{Name: "direct"}
	assert.Equal(t, target, direct.RequestURL(target))

	wrapped := Strategy{Name: "p", Template: "https://proxy.example.com/?{url}"}
	assert.Equal(t, "https://proxy.example.com/?https%3A%2F%2Fanchor.fm%2Fs%2Fabc%2Fpodcast%2Frss%3Fa%3D1%20b", wrapped.RequestURL(target))
}

func TestFetchTriesStrategiesInOrder(t *testing.T) {
	rec := &recorder{}
	first := newServer(t, rec.handler("first", http.StatusBadGateway, "nope"))
	second := newServer(t, rec.handler("second", http.StatusForbidden, "nope"))
	third := newServer(t, rec.handler("third", http.StatusOK, rssBody))
	fourth := newServer(t, rec.handler("fourth", http.StatusOK, rssBody))

	fetcher := NewFetcher(nil, []Strategy{
		{Name: "first", Template: first.URL + "/?{url}"},
		{Name: "second", Template: second.URL + "/?{url}"},
		{Name: "third", Template: third.URL + "/?{url}"},
		{Name: "fourth", Template: fourth.URL + "/?{url}"},
	}, "test-agent")

	data, err := fetcher.Fetch(context.Background(), "https://example.com/rss")
	require.NoError(t, err)
	assert.Equal(t, rssBody, string(data))
	assert.Equal(t, []string{"first", "second", "third"}, rec.order())
}

func TestFetchSendsHeaders(t *testing.T) {
	var accept, userAgent, query string
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		userAgent = r.Header.Get("User-Agent")
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(rssBody))
	}))

	fetcher := NewFetcher(srv.Client(), []Strategy{{Name: "p", Template: srv.URL + "/?{url}"}}, "Mozilla/5.0 (compatible; MyApp/1.0)")
	_, err := fetcher.Fetch(context.Background(), "https://example.com/rss")
	require.NoError(t, err)

	assert.Equal(t, "application/rss+xml, text/xml, */*", accept)
	assert.Equal(t, "Mozilla/5.0 (compatible; MyApp/1.0)", userAgent)
	assert.Equal(t, "https%3A%2F%2Fexample.com%2Frss", query)
}

func TestFetchUnwrapsEnvelope(t *testing.T) {
	var accept string
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"contents":"<rss version=\"2.0\"></rss>","status":{"http_code":200}}`))
	}))

	fetcher := NewFetcher(nil, []Strategy{{Name: "allorigins", Template: srv.URL + "/get?url={url}", Envelope: "contents"}}, "ua")
	data, err := fetcher.Fetch(context.Background(), "https://example.com/rss")
	require.NoError(t, err)

	assert.Equal(t, `<rss version="2.0"></rss>`, string(data))
	assert.Equal(t, "application/json, text/xml, */*", accept)
}

func TestFetchMalformedEnvelopeFallsThrough(t *testing.T) {
	rec := &recorder{}
	wrapped := newServer(t, rec.handler("wrapped", http.StatusOK, `{"contents":null}`))
	direct := newServer(t, rec.handler("direct", http.StatusOK, rssBody))

	fetcher := NewFetcher(nil, []Strategy{
		{Name: "wrapped", Template: wrapped.URL + "/?{url}", Envelope: "contents"},
		{Name: "direct"},
	}, "ua")

	data, err := fetcher.Fetch(context.Background(), direct.URL+"/feed")
	require.NoError(t, err)
	assert.Equal(t, rssBody, string(data))
	assert.Equal(t, []string{"wrapped", "direct"}, rec.order())
}

func TestFetchExhausted(t *testing.T) {
	rec := &recorder{}
	a := newServer(t, rec.handler("a", http.StatusInternalServerError, ""))
	b := newServer(t, rec.handler("b", http.StatusNotFound, ""))

	fetcher := NewFetcher(nil, []Strategy{
		{Name: "a", Template: a.URL + "/?{url}"},
		{Name: "b", Template: b.URL + "/?{url}"},
	}, "ua")

	_, err := fetcher.Fetch(context.Background(), "https://example.com/rss")
	require.Error(t, err)

	var exhausted *FetchExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Contains(t, exhausted.Last.Error(), "proxy b")
	assert.Contains(t, exhausted.Last.Error(), "404")
	require.NotNil(t, exhausted.Attempts)
	assert.Len(t, exhausted.Attempts.Errors, 2)
	assert.True(t, strings.HasPrefix(err.Error(), "all proxy attempts failed"))

	// each strategy exactly once
	assert.Equal(t, []string{"a", "b"}, rec.order())
}

func TestFetchTransportErrorFallsThrough(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	rec := &recorder{}
	live := newServer(t, rec.handler("live", http.StatusOK, rssBody))

	fetcher := NewFetcher(nil, []Strategy{
		{Name: "dead", Template: deadURL + "/?{url}"},
		{Name: "live", Template: live.URL + "/?{url}"},
	}, "ua")

	data, err := fetcher.Fetch(context.Background(), "https://example.com/rss")
	require.NoError(t, err)
	assert.Equal(t, rssBody, string(data))
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	rec := &recorder{}
	srv := newServer(t, rec.handler("p", http.StatusOK, rssBody))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewFetcher(nil, []Strategy{{Name: "p", Template: srv.URL + "/?{url}"}}, "ua")
	_, err := fetcher.Fetch(ctx, "https://example.com/rss")

	var exhausted *FetchExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.order())
}

func TestFetchWithoutStrategies(t *testing.T) {
	_, err := NewFetcher(nil, nil, "ua").Fetch(context.Background(), "https://example.com/rss")

	var exhausted *FetchExhaustedError
	require.True(t, errors.As(err, &exhausted))
}

func TestStrategiesFromConfig(t *testing.T) {
	strategies := StrategiesFromConfig(feed.DefaultProxies())

	require.Len(t, strategies, 4)
	assert.Equal(t, "corsproxy", strategies[0].Name)
	assert.Equal(t, "contents", strategies[1].Envelope)
	assert.Empty(t, strategies[3].Template)
}

func TestFetchOversizedBodyFallsThrough(t *testing.T) {
	rec := &recorder{}
	huge := newServer(t, rec.handler("huge", http.StatusOK, rssBody+strings.Repeat(" ", 64)))
	direct := newServer(t, rec.handler("direct", http.StatusOK, rssBody))

	fetcher := NewFetcher(nil, []Strategy{
		{Name: "huge", Template: huge.URL + "/?{url}"},
		{Name: "direct"},
	}, "ua")
	fetcher.maxBodySize = int64(len(rssBody))

	data, err := fetcher.Fetch(context.Background(), direct.URL+"/feed")
	require.NoError(t, err)
	assert.Equal(t, rssBody, string(data), "a body at the limit is accepted")
	assert.Equal(t, []string{"huge", "direct"}, rec.order())
}

func TestFetchOversizedBodyExhausts(t *testing.T) {
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))

	fetcher := NewFetcher(nil, []Strategy{{Name: "direct"}}, "ua")
	fetcher.maxBodySize = 1024

	_, err := fetcher.Fetch(context.Background(), srv.URL)
	var exhausted *FetchExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, exhausted.Last.Error(), "exceeds 1024 bytes")
}
