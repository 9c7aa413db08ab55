package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/hkcovid-dashboard/internal/metrics"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimConfig configures the Nominatim client.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Nominatim implements Provider against the OpenStreetMap search API.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    Waiter
}

// NewNominatim creates a Nominatim client. limiter may be nil.
func NewNominatim(cfg NominatimConfig, limiter Waiter) *Nominatim {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultNominatimURL
	}
	if limiter == nil {
		limiter = noWait{}
	}
	return &Nominatim{
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		httpClient: newHTTPClient(cfg.Timeout),
		limiter:    limiter,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode implements Provider.
func (n *Nominatim) Geocode(ctx context.Context, query string) (Point, bool, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	reqURL := n.baseURL + "/search?" + params.Encode()
	if err := n.limiter.Wait(ctx, reqURL); err != nil {
		return Point{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Point{}, false, fmt.Errorf("create request: %w", err)
	}
	// Nominatim's usage policy requires an identifying user agent.
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		metrics.ObserveGeocode("nominatim", metrics.OutcomeError)
		return Point{}, false, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.ObserveGeocode("nominatim", metrics.OutcomeError)
		return Point{}, false, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		metrics.ObserveGeocode("nominatim", metrics.OutcomeError)
		return Point{}, false, fmt.Errorf("decode response: %w", err)
	}
	if len(places) == 0 {
		metrics.ObserveGeocode("nominatim", metrics.OutcomeEmpty)
		return Point{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Point{}, false, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Point{}, false, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}
	metrics.ObserveGeocode("nominatim", metrics.OutcomeSuccess)
	return Point{Lat: lat, Lng: lng}, true, nil
}
