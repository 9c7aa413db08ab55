// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/hkcovid-dashboard/internal/fetcher"
)

const (
	defaultTimeout = 15 * time.Second
	// The case table page-data runs to several megabytes.
	maxBodySize = 64 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher polls upstream pages with Colly. Each URL's validators are
// remembered so unchanged pages come back as 304 and are served from memory.
type Fetcher struct {
	cfg  Config
	base *colly.Collector

	mu        sync.Mutex
	validated map[string]cachedPage
}

type cachedPage struct {
	etag         string
	lastModified string
	page         fetcher.Page
}

var _ fetcher.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newRetryTransport(newHTTPTransport()))
	return &Fetcher{cfg: cfg, base: c, validated: make(map[string]cachedPage)}
}

// Fetch GETs req.URL. Non-2xx responses other than a revalidated 304 are errors.
func (f *Fetcher) Fetch(ctx context.Context, req fetcher.Request) (fetcher.Page, error) {
	c := f.collector()
	prev, revalidate := f.lookup(req.URL)

	var (
		page     fetcher.Page
		fetchErr error
	)
	start := time.Now()

	c.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
		if revalidate {
			if prev.etag != "" {
				r.Headers.Set("If-None-Match", prev.etag)
			}
			if prev.lastModified != "" {
				r.Headers.Set("If-Modified-Since", prev.lastModified)
			}
		}
	})
	c.OnResponse(func(r *colly.Response) {
		switch {
		case r.StatusCode == http.StatusNotModified && revalidate:
			page = prev.page
			page.StatusCode = http.StatusNotModified
		case r.StatusCode >= 200 && r.StatusCode < 300:
			page = fetcher.Page{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Headers:    r.Headers.Clone(),
				Body:       append([]byte(nil), r.Body...),
			}
			f.remember(req.URL, page)
		default:
			fetchErr = fmt.Errorf("status %d", r.StatusCode)
		}
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := visit(ctx, c, req.URL); err != nil {
		return fetcher.Page{}, err
	}
	if fetchErr != nil {
		return fetcher.Page{}, fmt.Errorf("fetch %s: %w", req.URL, fetchErr)
	}
	page.Duration = time.Since(start)
	return page, nil
}

func (f *Fetcher) collector() *colly.Collector {
	c := f.base.Clone()
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	// The same dataset URLs are polled on every refresh.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	// Statuses are judged in OnResponse so a 304 is not reported as an error.
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = maxBodySize
	c.SetRequestTimeout(f.cfg.Timeout)
	return c
}

func (f *Fetcher) lookup(url string) (cachedPage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.validated[url]
	return p, ok
}

// remember stores pages that carry a validator; others are always refetched.
func (f *Fetcher) remember(url string, page fetcher.Page) {
	etag := page.Headers.Get("ETag")
	lastModified := page.Headers.Get("Last-Modified")
	if etag == "" && lastModified == "" {
		return
	}
	f.mu.Lock()
	f.validated[url] = cachedPage{etag: etag, lastModified: lastModified, page: page}
	f.mu.Unlock()
}

func visit(ctx context.Context, c *colly.Collector, url string) error {
	c.Context = ctx
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
}
