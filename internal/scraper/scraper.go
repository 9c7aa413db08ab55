// Package scraper pulls the case, high-risk, waiting-time and daily-stats
// datasets from the upstream dashboard site.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/fetcher"
	"github.com/JakeFAU/hkcovid-dashboard/internal/metrics"
)

// Upstream paths, relative to the base URL.
const (
	CasesPath       = "/page-data/en/cases/page-data.json"
	HighRiskPath    = "/page-data/en/high-risk/page-data.json"
	WaitingTimePath = "/page-data/en/ae-waiting-time/page-data.json"
	StatsPath       = "/en/"
)

// Dataset labels used in logs and metrics.
const (
	datasetCases    = "cases"
	datasetHighRisk = "high_risk"
	datasetWaiting  = "waiting_time"
	datasetStats    = "stats"
)

// Config holds the upstream location.
type Config struct {
	BaseURL string
}

// Scraper implements covid.Fetcher against the upstream site.
type Scraper struct {
	baseURL  string
	http     fetcher.Fetcher
	headless fetcher.Fetcher
	clock    clockwork.Clock
	logger   *zap.Logger
}

var _ covid.Fetcher = (*Scraper)(nil)

// New builds a Scraper. headless may be nil, which disables promotion of the
// stats page to a rendered fetch.
func New(cfg Config, httpFetcher, headless fetcher.Fetcher, clock clockwork.Clock, logger *zap.Logger) (*Scraper, error) {
	if httpFetcher == nil {
		return nil, errors.New("scraper: http fetcher is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("scraper: base url is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		http:     httpFetcher,
		headless: headless,
		clock:    clock,
		logger:   logger.Named("scraper"),
	}, nil
}

// FetchCases downloads and normalizes the case table.
func (s *Scraper) FetchCases(ctx context.Context) ([]covid.Case, error) {
	body, err := s.get(ctx, datasetCases, CasesPath)
	if err != nil {
		record(datasetCases, nil, err)
		return nil, err
	}
	raw, err := decodeEdges[covid.RawCase](body, "allWarsCase")
	record(datasetCases, body, err)
	if err != nil {
		return nil, fmt.Errorf("decode cases: %w", err)
	}
	cases, dropped := covid.NormalizeCases(raw)
	if dropped > 0 {
		s.logger.Warn("dropped cases with unparseable numbers", zap.Int("dropped", dropped))
	}
	return cases, nil
}

// FetchHighRisk downloads and normalizes the high-risk location table.
func (s *Scraper) FetchHighRisk(ctx context.Context) ([]covid.HighRiskLocation, error) {
	body, err := s.get(ctx, datasetHighRisk, HighRiskPath)
	if err != nil {
		record(datasetHighRisk, nil, err)
		return nil, err
	}
	raw, err := decodeEdges[covid.RawHighRisk](body, "allWarsCaseLocation")
	record(datasetHighRisk, body, err)
	if err != nil {
		return nil, fmt.Errorf("decode high risk locations: %w", err)
	}
	return covid.NormalizeHighRisk(raw), nil
}

// FetchWaitingTimes downloads the A&E waiting times and derives hour values.
func (s *Scraper) FetchWaitingTimes(ctx context.Context) ([]covid.WaitingTime, error) {
	body, err := s.get(ctx, datasetWaiting, WaitingTimePath)
	if err != nil {
		record(datasetWaiting, nil, err)
		return nil, err
	}
	raw, err := decodeEdges[covid.WaitingTime](body, "allAeWaitingTime")
	record(datasetWaiting, body, err)
	if err != nil {
		return nil, fmt.Errorf("decode waiting times: %w", err)
	}
	return covid.NormalizeWaitingTimes(raw), nil
}

// FetchStats reads the four headline counters from the landing page. When the
// static HTML lacks the counters and a headless fetcher is configured, the page
// is rendered and parsed again.
func (s *Scraper) FetchStats(ctx context.Context) (covid.DailyStats, error) {
	body, err := s.get(ctx, datasetStats, StatsPath)
	if err != nil {
		record(datasetStats, nil, err)
		return covid.DailyStats{}, err
	}
	stats, err := ParseStats(body)
	if errors.Is(err, ErrStatsNotFound) && s.headless != nil {
		s.logger.Info("stats container missing from static html, rendering headless")
		metrics.ObserveHeadlessPromotion()
		page, ferr := s.headless.Fetch(ctx, fetcher.Request{URL: s.url(StatsPath), WaitFor: StatsSelector})
		if ferr != nil {
			record(datasetStats, nil, ferr)
			return covid.DailyStats{}, fmt.Errorf("render stats page: %w", ferr)
		}
		body = page.Body
		stats, err = ParseStats(body)
	}
	record(datasetStats, body, err)
	if err != nil {
		return covid.DailyStats{}, err
	}
	stats.FetchedAt = s.clock.Now()
	return stats, nil
}

// FetchAll runs the four fetches concurrently and returns the first error.
func (s *Scraper) FetchAll(ctx context.Context) (covid.Dataset, error) {
	var ds covid.Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cases, err := s.FetchCases(gctx)
		ds.Cases = cases
		return err
	})
	g.Go(func() error {
		locs, err := s.FetchHighRisk(gctx)
		ds.HighRisk = locs
		return err
	})
	g.Go(func() error {
		waits, err := s.FetchWaitingTimes(gctx)
		ds.WaitingTimes = waits
		return err
	})
	g.Go(func() error {
		stats, err := s.FetchStats(gctx)
		ds.Stats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return covid.Dataset{}, err
	}
	ds.LoadedAt = s.clock.Now()
	return ds, nil
}

func (s *Scraper) get(ctx context.Context, dataset, path string) ([]byte, error) {
	url := s.url(path)
	page, err := s.http.Fetch(ctx, fetcher.Request{URL: url})
	if err != nil {
		s.logger.Warn("upstream fetch failed", zap.String("dataset", dataset), zap.String("url", url), zap.Error(err))
		return nil, fmt.Errorf("fetch %s: %w", dataset, err)
	}
	s.logger.Debug("upstream fetch complete",
		zap.String("dataset", dataset),
		zap.Int("bytes", len(page.Body)),
		zap.Duration("duration", page.Duration),
	)
	return page.Body, nil
}

// record counts one dataset fetch once its body has been decoded, so a
// download that fails to parse is an error and never a success as well.
func record(dataset string, body []byte, err error) {
	if err != nil {
		metrics.ObserveFetch(dataset, metrics.OutcomeError, 0)
		return
	}
	metrics.ObserveFetch(dataset, metrics.OutcomeSuccess, len(body))
}

func (s *Scraper) url(path string) string {
	return s.baseURL + path
}
