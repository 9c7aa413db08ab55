package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/hkcovid-dashboard/internal/metrics"
)

// DefaultMapboxURL is the Mapbox forward-geocoding endpoint.
const DefaultMapboxURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// MapboxConfig configures the Mapbox client.
type MapboxConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Mapbox implements Provider using the Mapbox Geocoding API.
type Mapbox struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    Waiter
}

// NewMapbox creates a Mapbox geocoding client. limiter may be nil.
func NewMapbox(cfg MapboxConfig, limiter Waiter) (*Mapbox, error) {
	if cfg.Token == "" {
		return nil, errors.New("mapbox: access token is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultMapboxURL
	}
	if limiter == nil {
		limiter = noWait{}
	}
	return &Mapbox{
		token:      cfg.Token,
		baseURL:    base,
		httpClient: newHTTPClient(cfg.Timeout),
		limiter:    limiter,
	}, nil
}

// Geocode implements Provider.
func (m *Mapbox) Geocode(ctx context.Context, query string) (Point, bool, error) {
	params := url.Values{
		"access_token": {m.token},
		"limit":        {"1"},
		"country":      {"hk"},
	}
	reqURL := fmt.Sprintf("%s/%s.json?%s", m.baseURL, url.PathEscape(query), params.Encode())
	if err := m.limiter.Wait(ctx, reqURL); err != nil {
		return Point{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Point{}, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		metrics.ObserveGeocode("mapbox", metrics.OutcomeError)
		return Point{}, false, fmt.Errorf("mapbox request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.ObserveGeocode("mapbox", metrics.OutcomeError)
		return Point{}, false, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		metrics.ObserveGeocode("mapbox", metrics.OutcomeError)
		return Point{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(mapboxResp.Features) == 0 || len(mapboxResp.Features[0].Center) != 2 {
		metrics.ObserveGeocode("mapbox", metrics.OutcomeEmpty)
		return Point{}, false, nil
	}

	center := mapboxResp.Features[0].Center
	metrics.ObserveGeocode("mapbox", metrics.OutcomeSuccess)
	// Mapbox uses lon,lat order.
	return Point{Lat: center[1], Lng: center[0]}, true, nil
}

type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Relevance float64   `json:"relevance"`
}
