// Package geocode turns free-text Hong Kong addresses into coordinates.
//
// Providers wrap a single forward-geocoding API call. The Resolver layers the
// retry and address-simplification policy on top and maintains the address
// book of high-risk locations.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is returned when no tier of an address produced a match.
var ErrNotFound = errors.New("geocode: address not found")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Provider performs one forward-geocoding lookup. The bool reports whether a
// match was found; a miss is not an error.
type Provider interface {
	Geocode(ctx context.Context, query string) (Point, bool, error)
}

// Waiter throttles outbound calls per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

type noWait struct{}

func (noWait) Wait(context.Context, string) error { return nil }

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
