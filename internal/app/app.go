// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/api"
	"github.com/JakeFAU/hkcovid-dashboard/internal/config"
	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/fetcher"
	collyfetcher "github.com/JakeFAU/hkcovid-dashboard/internal/fetcher/colly"
	"github.com/JakeFAU/hkcovid-dashboard/internal/fetcher/headless"
	"github.com/JakeFAU/hkcovid-dashboard/internal/geocode"
	"github.com/JakeFAU/hkcovid-dashboard/internal/hash/sha256"
	"github.com/JakeFAU/hkcovid-dashboard/internal/id/uuid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/loader"
	"github.com/JakeFAU/hkcovid-dashboard/internal/policy/ratelimit"
	"github.com/JakeFAU/hkcovid-dashboard/internal/publisher/pubsub"
	"github.com/JakeFAU/hkcovid-dashboard/internal/scraper"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/csvfile"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/gcs"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/local"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/memory"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/postgres"
	"github.com/JakeFAU/hkcovid-dashboard/internal/storage/snapshot"
)

// App holds the shared, long-lived services. It is built once at startup and
// closed by a Cobra hook after the command finishes.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Clock    clockwork.Clock
	Scraper  *scraper.Scraper
	Resolver *geocode.Resolver
	CSV      *csvfile.Store
	Snapshot *snapshot.Store
	// SQL is nil when no DSN is configured.
	SQL    *postgres.Store
	Chain  *loader.Chain
	Loader *loader.Loader

	closers []func() error
}

// New builds every service from cfg. Optional backends (Postgres, Pub/Sub,
// headless Chrome) are only dialed when configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Clock: clockwork.NewRealClock()}
	logger.Info("initializing application services")

	if err := a.initScraper(); err != nil {
		a.Close()
		return nil, err
	}
	a.initResolver()
	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initLoader(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("application services initialized", zap.Strings("sources", a.Chain.Names()))
	return a, nil
}

func (a *App) initScraper() error {
	cfg := a.Config
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})

	// A nil headless fetcher keeps the stats page on plain HTTP.
	var rendered fetcher.Fetcher
	if cfg.Headless.Enabled {
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Upstream.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("init headless fetcher: %w", err)
		}
		rendered = f
		a.closers = append(a.closers, func() error { f.Close(); return nil })
	}

	s, err := scraper.New(scraper.Config{BaseURL: cfg.Upstream.BaseURL}, httpFetcher, rendered, a.Clock, a.Logger)
	if err != nil {
		return fmt.Errorf("init scraper: %w", err)
	}
	a.Scraper = s
	return nil
}

func (a *App) initResolver() {
	cfg := a.Config.Geocoder
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.RequestsPerSec, DefaultBurst: 1})

	var provider geocode.Provider
	switch cfg.Provider {
	case "mapbox":
		m, err := geocode.NewMapbox(geocode.MapboxConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.MapboxToken,
			Timeout: a.Config.HTTPTimeout(),
		}, limiter)
		if err != nil {
			a.Logger.Warn("mapbox unavailable, falling back to nominatim", zap.Error(err))
			break
		}
		provider = m
	}
	if provider == nil {
		provider = geocode.NewNominatim(geocode.NominatimConfig{
			BaseURL:   cfg.BaseURL,
			UserAgent: cfg.UserAgent,
			Timeout:   a.Config.HTTPTimeout(),
		}, limiter)
	}
	if cfg.CacheSize > 0 {
		provider = geocode.NewCachedProvider(provider, cfg.CacheSize)
	}
	a.Resolver = geocode.NewResolver(provider, geocode.ResolverConfig{
		Attempts: cfg.Attempts,
		Pause:    a.Config.GeocodePause(),
	}, a.Clock, a.Logger)
}

func (a *App) initStores(ctx context.Context) error {
	cfg := a.Config

	csvStore, err := csvfile.New(cfg.CSV.Dir)
	if err != nil {
		return fmt.Errorf("init csv store: %w", err)
	}
	a.CSV = csvStore

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		return err
	}
	a.Snapshot, err = snapshot.New(blobs, cfg.Storage.Object, a.Clock)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}

	if cfg.DB.DSN == "" {
		a.Logger.Info("db.dsn not set, sql source disabled")
		return nil
	}
	sql, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { sql.Close(); return nil })
	if err := sql.EnsureSchema(ctx); err != nil {
		a.Logger.Warn("postgres schema check failed", zap.Error(err))
	}
	a.SQL = sql
	return nil
}

func (a *App) openBlobStore(ctx context.Context) (storage.BlobStore, error) {
	cfg := a.Config.Storage
	switch cfg.Provider {
	case "local":
		s, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return s, nil
	case "memory":
		return memory.NewBlobStore(), nil
	case "gcs":
		s, client, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Logger.Info("using gcs snapshot storage", zap.String("bucket", cfg.GCSBucket))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func (a *App) initLoader(ctx context.Context) error {
	cfg := a.Config

	books := make([]covid.AddressBook, 0, 3)
	if a.SQL != nil {
		books = append(books, a.SQL)
	}
	books = append(books, a.Snapshot, a.CSV)

	liveOpts := loader.LiveOptions{
		AddressBooks: books,
		Logger:       a.Logger,
	}
	if cfg.Loader.GeocodeOnLoad {
		liveOpts.Geocoder = a.Resolver
	}
	live, err := loader.NewLiveSource(a.Scraper, liveOpts)
	if err != nil {
		return fmt.Errorf("init live source: %w", err)
	}

	sources := make([]covid.Source, 0, len(cfg.Loader.Sources))
	for _, name := range cfg.Loader.Sources {
		switch name {
		case config.SourceLive:
			sources = append(sources, live)
		case config.SourceSQL:
			if a.SQL != nil {
				sources = append(sources, a.SQL)
			}
		case config.SourceCache:
			sources = append(sources, a.Snapshot)
		case config.SourceCSV:
			sources = append(sources, a.CSV)
		}
	}
	a.Chain = loader.NewChain(a.Logger, sources...)

	sinks := []covid.Sink{a.Snapshot}
	if a.SQL != nil {
		sinks = append(sinks, a.SQL)
	}

	opts := loader.Options{
		Sinks:        sinks,
		Stats:        a.Scraper,
		Hospitals:    a.CSV,
		Hasher:       sha256.New(),
		IDs:          uuid.New(nil),
		Clock:        a.Clock,
		Logger:       a.Logger,
		WriteThrough: cfg.Loader.WriteThrough,
		Timeout:      time.Duration(cfg.Loader.LoadTimeoutSecs) * time.Second,
	}
	if cfg.PubSub.TopicName != "" {
		pub, err := pubsub.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		opts.Publisher = pub
		opts.Topic = cfg.PubSub.TopicName
	}

	a.Loader, err = loader.New(a.Chain, opts)
	if err != nil {
		return fmt.Errorf("init loader: %w", err)
	}
	return nil
}

// Server builds the dashboard HTTP server on top of the loader.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Loader, a.Clock, a.Config, a.Logger)
}

// Sinks lists every configured persistent store, for explicit snapshots.
func (a *App) Sinks() []covid.Sink {
	sinks := []covid.Sink{a.Snapshot, a.CSV}
	if a.SQL != nil {
		sinks = append(sinks, a.SQL)
	}
	return sinks
}

// Close shuts down all services in reverse order of creation.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing services", zap.Error(err))
	}
}
