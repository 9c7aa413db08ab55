package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hkcovid-dashboard/internal/fetcher"
)

func TestCollectorSettings(t *testing.T) {
	t.Parallel()

	c := New(Config{UserAgent: "hkcovid-test"}).collector()
	assert.Equal(t, "hkcovid-test", c.UserAgent)
	assert.True(t, c.AllowURLRevisit)
	assert.True(t, c.ParseHTTPErrorResponse)
	assert.Equal(t, maxBodySize, c.MaxBodySize)
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "hkcovid-test" || r.Header.Get("X-Trace") != "yes" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "hkcovid-test", Timeout: 2 * time.Second})
	headers := http.Header{"X-Trace": {"yes"}}

	page, err := f.Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/page-data.json", Headers: headers})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(page.Body))
	assert.Equal(t, "application/json", page.Headers.Get("Content-Type"))

	// Polling the same URL again must not be rejected as a revisit.
	_, err = f.Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/page-data.json", Headers: headers})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/missing", Headers: headers})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestFetchRevalidatesWithETag(t *testing.T) {
	t.Parallel()

	var full, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		full.Add(1)
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"cases":1}`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	url := srv.URL + "/page-data/en/cases/page-data.json"

	first, err := f.Fetch(context.Background(), fetcher.Request{URL: url})
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), fetcher.Request{URL: url})
	require.NoError(t, err)

	assert.Equal(t, int32(1), full.Load())
	assert.Equal(t, int32(1), conditional.Load())
	assert.Equal(t, http.StatusNotModified, second.StatusCode)
	assert.Equal(t, first.Body, second.Body)
}

func TestFetchWithoutValidatorsIsNotCached(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Empty(t, r.Header.Get("If-None-Match"))
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{})
	for range 2 {
		_, err := f.Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/en/"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), hits.Load())
	_, ok := f.lookup(srv.URL + "/en/")
	assert.False(t, ok)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).Fetch(ctx, fetcher.Request{URL: srv.URL})
	require.Error(t, err)
}
