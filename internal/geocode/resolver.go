package geocode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// Fixed coordinates for places the public geocoders resolve badly.
var (
	HighSpeedRailPoint = Point{Lat: 22.304080, Lng: 114.166501}
	AirportPoint       = Point{Lat: 22.308007, Lng: 113.918803}
)

const regionSuffix = ", Hong Kong"

// ResolverConfig tunes the retry policy.
type ResolverConfig struct {
	// Attempts per tier. Defaults to 5.
	Attempts int
	// Pause between failed attempts.
	Pause time.Duration
}

// Resolver geocodes addresses with a three-tier simplification fallback.
type Resolver struct {
	provider Provider
	attempts int
	pause    time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
}

// Result is a resolved address.
type Result struct {
	Point Point
	// Tier is 0 for the full address, 1 and 2 for the simplified forms.
	Tier  int
	Query string
}

// NewResolver builds a Resolver around provider.
func NewResolver(provider Provider, cfg ResolverConfig, clock clockwork.Clock, logger *zap.Logger) *Resolver {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		provider: provider,
		attempts: cfg.Attempts,
		pause:    cfg.Pause,
		clock:    clock,
		logger:   logger.Named("geocode"),
	}
}

// Tiers returns the queries tried for address, most specific first: the
// address with ", Hong Kong" appended, then that string with its leftmost
// comma-separated component removed, then removed once more. Empty tiers are
// omitted.
func Tiers(address string) []string {
	tier0 := strings.TrimSpace(address) + regionSuffix
	tier1 := popComponent(tier0)
	tier2 := popComponent(tier1)
	out := make([]string, 0, 3)
	for _, q := range []string{tier0, tier1, tier2} {
		if strings.TrimSpace(strings.Trim(q, ",")) == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

func popComponent(address string) string {
	_, rest, found := strings.Cut(address, ",")
	if !found {
		return ""
	}
	return strings.TrimSpace(rest)
}

// Resolve geocodes address. Provider errors and misses both count as failed
// attempts; each tier gets Attempts tries. Only context cancellation aborts
// early. ErrNotFound is returned when every tier is exhausted.
func (r *Resolver) Resolve(ctx context.Context, address string) (Result, error) {
	first := true
	for tier, query := range Tiers(address) {
		for attempt := 1; attempt <= r.attempts; attempt++ {
			if !first {
				if err := r.sleep(ctx); err != nil {
					return Result{}, err
				}
			}
			first = false

			p, found, err := r.provider.Geocode(ctx, query)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, fmt.Errorf("geocode %q: %w", address, ctxErr)
			}
			if err != nil {
				r.logger.Debug("geocode attempt failed",
					zap.String("query", query),
					zap.Int("tier", tier),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				continue
			}
			if found {
				return Result{Point: p, Tier: tier, Query: query}, nil
			}
		}
	}
	return Result{}, fmt.Errorf("%w: %q", ErrNotFound, address)
}

func (r *Resolver) sleep(ctx context.Context) error {
	if r.pause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("geocode pause: %w", ctx.Err())
	case <-r.clock.After(r.pause):
		return nil
	}
}

// ResolveLocation geocodes a high-risk location, applying the fixed overrides
// for the high speed rail terminus and the airport before asking the provider.
func (r *Resolver) ResolveLocation(ctx context.Context, loc covid.HighRiskLocation) (Point, error) {
	query := loc.AddressQuery()
	if p, ok := override(query, loc.LocationZh); ok {
		return p, nil
	}
	res, err := r.Resolve(ctx, query)
	if err != nil {
		return Point{}, err
	}
	if res.Tier > 0 {
		r.logger.Info("resolved simplified address",
			zap.String("id", loc.ID),
			zap.String("query", res.Query),
			zap.Int("tier", res.Tier),
		)
	}
	return res.Point, nil
}

func override(addressEn, locationZh string) (Point, bool) {
	switch {
	case strings.Contains(strings.ToLower(addressEn), "high speed rail"):
		return HighSpeedRailPoint, true
	case strings.Contains(locationZh, "航空"):
		return AirportPoint, true
	}
	return Point{}, false
}
