// Package config loads and validates dashboard configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // Asia/Hong_Kong must resolve on minimal images.

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Geocoder  GeocoderConfig  `mapstructure:"geocoder"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	CSV       CSVConfig       `mapstructure:"csv"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                   int `mapstructure:"port"`
	RequestTimeoutSeconds  int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// UpstreamConfig points at the site the datasets are scraped from.
type UpstreamConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	UserAgent string `mapstructure:"user_agent"`
}

// HTTPConfig configures outbound HTTP clients.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the chromedp fallback for JS-rendered pages.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// GeocoderConfig selects and tunes the geocoding provider.
type GeocoderConfig struct {
	Provider       string  `mapstructure:"provider"`
	BaseURL        string  `mapstructure:"base_url"`
	UserAgent      string  `mapstructure:"user_agent"`
	MapboxToken    string  `mapstructure:"mapbox_token"`
	Attempts       int     `mapstructure:"attempts"`
	PauseMillis    int     `mapstructure:"pause_ms"`
	RequestsPerSec float64 `mapstructure:"requests_per_second"`
	CacheSize      int     `mapstructure:"cache_size"`
}

// LoaderConfig orders the data sources and sets the refresh cadence.
type LoaderConfig struct {
	Sources         []string `mapstructure:"sources"`
	RefreshSeconds  int      `mapstructure:"refresh_seconds"`
	WriteThrough    bool     `mapstructure:"write_through"`
	GeocodeOnLoad   bool     `mapstructure:"geocode_on_load"`
	LoadTimeoutSecs int      `mapstructure:"load_timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime_seconds"`
}

// StorageConfig selects where the snapshot cache is kept.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Object    string `mapstructure:"object"`
}

// CSVConfig locates the CSV/TSV fallback and reference tables.
type CSVConfig struct {
	Dir string `mapstructure:"dir"`
}

// PubSubConfig holds metadata for refresh notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DashboardConfig tunes the rendered page.
type DashboardConfig struct {
	Title                  string `mapstructure:"title"`
	RefreshIntervalSeconds int    `mapstructure:"refresh_interval_seconds"`
	TimeZone               string `mapstructure:"time_zone"`
	DefaultStartDate       string `mapstructure:"default_start_date"`
	Disclaimer             string `mapstructure:"disclaimer"`
}

// Source names accepted in loader.sources.
const (
	SourceLive  = "live"
	SourceSQL   = "sql"
	SourceCache = "cache"
	SourceCSV   = "csv"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HKCOVID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8050)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("server.shutdown_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("upstream.base_url", "https://wars.vote4.hk")
	v.SetDefault("upstream.user_agent", "hkcovid-dashboard/0.1")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("geocoder.provider", "nominatim")
	v.SetDefault("geocoder.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.user_agent", "hk_explorer")
	v.SetDefault("geocoder.attempts", 5)
	v.SetDefault("geocoder.pause_ms", 1000)
	v.SetDefault("geocoder.requests_per_second", 1.0)
	v.SetDefault("geocoder.cache_size", 2048)
	v.SetDefault("loader.sources", []string{SourceLive, SourceSQL, SourceCache, SourceCSV})
	v.SetDefault("loader.refresh_seconds", 600)
	v.SetDefault("loader.write_through", true)
	v.SetDefault("loader.geocode_on_load", true)
	v.SetDefault("loader.load_timeout_seconds", 300)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "data/cache")
	v.SetDefault("storage.object", "dataset.gob")
	v.SetDefault("csv.dir", "data")
	v.SetDefault("dashboard.title", "COVID-19 Hong Kong Dashboard")
	v.SetDefault("dashboard.refresh_interval_seconds", 60)
	v.SetDefault("dashboard.time_zone", "Asia/Hong_Kong")
	v.SetDefault("dashboard.default_start_date", "2020-01-10")
	v.SetDefault("dashboard.disclaimer",
		"This website relies upon publicly available data that do not always agree. "+
			"It is provided for educational purposes only and must not be used for medical guidance.")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url must be set")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Geocoder.Provider {
	case "nominatim":
	case "mapbox":
		if c.Geocoder.MapboxToken == "" {
			return fmt.Errorf("geocoder.mapbox_token must be set when provider is mapbox")
		}
	default:
		return fmt.Errorf("geocoder.provider must be nominatim or mapbox, got %q", c.Geocoder.Provider)
	}
	if c.Geocoder.Attempts <= 0 {
		return fmt.Errorf("geocoder.attempts must be > 0")
	}
	if len(c.Loader.Sources) == 0 {
		return fmt.Errorf("loader.sources must list at least one source")
	}
	for _, s := range c.Loader.Sources {
		switch s {
		case SourceLive, SourceSQL, SourceCache, SourceCSV:
		default:
			return fmt.Errorf("loader.sources contains unknown source %q", s)
		}
	}
	if c.Loader.RefreshSeconds < 0 {
		return fmt.Errorf("loader.refresh_seconds must be >= 0")
	}
	switch c.Storage.Provider {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for local storage")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for gcs storage")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.provider must be local, gcs or memory, got %q", c.Storage.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Dashboard.RefreshIntervalSeconds <= 0 {
		return fmt.Errorf("dashboard.refresh_interval_seconds must be > 0")
	}
	if _, err := time.LoadLocation(c.Dashboard.TimeZone); err != nil {
		return fmt.Errorf("dashboard.time_zone must be a valid IANA zone: %w", err)
	}
	if _, err := time.Parse("2006-01-02", c.Dashboard.DefaultStartDate); err != nil {
		return fmt.Errorf("dashboard.default_start_date must be YYYY-MM-DD: %w", err)
	}
	return nil
}

// HTTPTimeout converts the outbound timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RefreshInterval is how often the loader re-runs the source chain.
func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.Loader.RefreshSeconds) * time.Second
}

// GeocodePause is the delay between failed geocoding attempts.
func (c Config) GeocodePause() time.Duration {
	return time.Duration(c.Geocoder.PauseMillis) * time.Millisecond
}

// Location resolves the dashboard time zone. Validate guarantees it parses.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Dashboard.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasSource reports whether the named source is part of the loader chain.
func (c Config) HasSource(name string) bool {
	for _, s := range c.Loader.Sources {
		if s == name {
			return true
		}
	}
	return false
}
