// Package fetcher defines the request and page types shared by the HTTP and
// headless page fetchers.
package fetcher

import (
	"context"
	"net/http"
	"time"
)

// Request describes a single page fetch.
type Request struct {
	URL     string
	Headers http.Header
	// WaitFor is a CSS selector a rendering fetcher waits for before
	// capturing the DOM. Plain HTTP fetchers ignore it.
	WaitFor string
}

// Page is the fetched (or rendered) body of one URL.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Page, error)
}
