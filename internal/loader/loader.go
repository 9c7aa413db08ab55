package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/metrics"
)

// DefaultStatsTTL bounds how often the headline counters hit upstream.
const DefaultStatsTTL = 30 * time.Second

// StatsFetcher reads the headline counters.
type StatsFetcher interface {
	FetchStats(ctx context.Context) (covid.DailyStats, error)
}

// Options wires the collaborators of a Loader. Everything but the chain is
// optional.
type Options struct {
	Sinks        []covid.Sink
	Stats        StatsFetcher
	Publisher    covid.Publisher
	Topic        string
	Hasher       covid.Hasher
	IDs          covid.IDGenerator
	Clock        clockwork.Clock
	Logger       *zap.Logger
	WriteThrough bool
	StatsTTL     time.Duration
	// Hospitals, when set, replaces the reference rows of every loaded
	// dataset, whichever source produced it.
	Hospitals HospitalTable
	// Timeout bounds each source of the chain. Zero means no limit.
	Timeout time.Duration
}

// RefreshEvent is published when a live load changes the dataset.
type RefreshEvent struct {
	EventID  string           `json:"event_id"`
	Source   string           `json:"source"`
	Digest   string           `json:"digest"`
	LoadedAt time.Time        `json:"loaded_at"`
	Rows     map[string]int   `json:"rows"`
	Stats    covid.DailyStats `json:"stats"`
}

// Attributes exposes routing attributes for message brokers.
func (e RefreshEvent) Attributes() map[string]string {
	return map[string]string{
		"event_id": e.EventID,
		"source":   e.Source,
		"digest":   e.Digest,
	}
}

// Loader owns the current dataset snapshot.
type Loader struct {
	chain *Chain
	opts  Options
	clock clockwork.Clock
	log   *zap.Logger

	refreshMu sync.Mutex
	digest    string

	mu         sync.RWMutex
	current    covid.Dataset
	loaded     bool
	statsCheck time.Time
}

// New builds a Loader on top of chain.
func New(chain *Chain, opts Options) (*Loader, error) {
	if chain == nil {
		return nil, errors.New("loader: chain is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.StatsTTL <= 0 {
		opts.StatsTTL = DefaultStatsTTL
	}
	if opts.Timeout > 0 {
		chain = chain.WithSourceTimeout(opts.Timeout)
	}
	return &Loader{
		chain: chain,
		opts:  opts,
		clock: opts.Clock,
		log:   opts.Logger.Named("loader"),
	}, nil
}

// Current returns the last good dataset; ok is false before the first load.
func (l *Loader) Current() (covid.Dataset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current, l.loaded
}

// Refresh runs the source chain and swaps in the result. On failure the
// previous snapshot is kept and the chain error returned.
func (l *Loader) Refresh(ctx context.Context) (covid.Dataset, error) {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()

	start := l.clock.Now()
	ds, err := l.chain.Load(ctx)
	if err != nil {
		l.log.Error("refresh failed, keeping previous dataset", zap.Error(err))
		return covid.Dataset{}, err
	}

	l.applyHospitalRefs(ctx, &ds)
	ds.Hospitals = covid.JoinHospitals(ds.WaitingTimes, ds.HospitalRefs)
	ds.HighRisk = covid.ApplyAddresses(ds.HighRisk, ds.Addresses)
	now := l.clock.Now()
	if ds.LoadedAt.IsZero() {
		ds.LoadedAt = now
	}

	l.mu.Lock()
	l.current = ds
	l.loaded = true
	l.statsCheck = now
	l.mu.Unlock()

	metrics.SetDatasetRows(ds.Counts(), now)
	l.log.Info("dataset refreshed",
		zap.String("source", ds.Source),
		zap.Any("rows", ds.Counts()),
		zap.Duration("duration", now.Sub(start)),
	)

	if ds.Source == LiveSourceName {
		if l.opts.WriteThrough {
			l.writeThrough(ctx, ds)
		}
		l.publishIfChanged(ctx, ds)
	}
	return ds, nil
}

// applyHospitalRefs swaps in the curated reference table. The rows the source
// carried are kept when the table cannot be read or is empty.
func (l *Loader) applyHospitalRefs(ctx context.Context, ds *covid.Dataset) {
	if l.opts.Hospitals == nil {
		return
	}
	refs, err := l.opts.Hospitals.LoadHospitals(ctx)
	if err != nil {
		l.log.Warn("hospital reference table unavailable", zap.String("source", ds.Source), zap.Error(err))
		return
	}
	if len(refs) == 0 {
		l.log.Warn("hospital reference table is empty", zap.String("source", ds.Source))
		return
	}
	ds.HospitalRefs = refs
}

func (l *Loader) writeThrough(ctx context.Context, ds covid.Dataset) {
	for _, sink := range l.opts.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.Save(ctx, ds); err != nil {
			l.log.Warn("write-through failed", zap.String("sink", sink.Name()), zap.Error(err))
			continue
		}
		l.log.Debug("write-through complete", zap.String("sink", sink.Name()))
	}
}

func (l *Loader) publishIfChanged(ctx context.Context, ds covid.Dataset) {
	if l.opts.Hasher == nil {
		return
	}
	digest, err := l.digestOf(ds)
	if err != nil {
		l.log.Warn("dataset digest failed", zap.Error(err))
		return
	}
	if digest == l.digest {
		l.log.Debug("dataset unchanged", zap.String("digest", digest))
		return
	}
	l.digest = digest
	if l.opts.Publisher == nil {
		return
	}

	event := RefreshEvent{
		Source:   ds.Source,
		Digest:   digest,
		LoadedAt: ds.LoadedAt,
		Rows:     ds.Counts(),
		Stats:    ds.Stats,
	}
	if l.opts.IDs != nil {
		id, err := l.opts.IDs.NewID(ds.LoadedAt)
		if err != nil {
			l.log.Warn("refresh event id failed", zap.Error(err))
		}
		event.EventID = id
	}
	msgID, err := l.opts.Publisher.Publish(ctx, l.opts.Topic, event)
	if err != nil {
		l.log.Warn("publish refresh event failed", zap.Error(err))
		return
	}
	l.log.Info("refresh event published", zap.String("message_id", msgID), zap.String("digest", digest))
}

// digestOf hashes the table content, ignoring load bookkeeping.
func (l *Loader) digestOf(ds covid.Dataset) (string, error) {
	return l.opts.Hasher.Digest(struct {
		Cases        []covid.Case             `json:"cases"`
		HighRisk     []covid.HighRiskLocation `json:"high_risk"`
		WaitingTimes []covid.WaitingTime      `json:"waiting_times"`
		Counters     [4]int                   `json:"counters"`
	}{
		Cases:        ds.Cases,
		HighRisk:     ds.HighRisk,
		WaitingTimes: ds.WaitingTimes,
		Counters:     [4]int{ds.Stats.Death, ds.Stats.Confirmed, ds.Stats.Investigating, ds.Stats.Reported},
	})
}

// Run refreshes immediately and then on every interval tick until ctx ends.
// A non-positive interval performs the initial refresh only.
func (l *Loader) Run(ctx context.Context, interval time.Duration) {
	_, _ = l.Refresh(ctx)
	if interval <= 0 {
		return
	}
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			_, _ = l.Refresh(ctx)
		}
	}
}

// RefreshStats returns fresh headline counters. Within the stats TTL, or when
// the live fetch fails, the last known counters are returned instead.
func (l *Loader) RefreshStats(ctx context.Context) (covid.DailyStats, error) {
	l.mu.RLock()
	last, loaded, checked := l.current.Stats, l.loaded, l.statsCheck
	l.mu.RUnlock()

	if l.opts.Stats == nil {
		if !loaded {
			return covid.DailyStats{}, ErrNoData
		}
		return last, nil
	}
	now := l.clock.Now()
	if loaded && now.Sub(checked) < l.opts.StatsTTL {
		return last, nil
	}

	stats, err := l.opts.Stats.FetchStats(ctx)
	if err != nil {
		l.log.Warn("stats refresh failed, serving last known counters", zap.Error(err))
		if !loaded {
			return covid.DailyStats{}, ErrNoData
		}
		l.mu.Lock()
		l.statsCheck = now
		l.mu.Unlock()
		return last, nil
	}

	l.mu.Lock()
	l.current.Stats = stats
	l.statsCheck = now
	l.mu.Unlock()
	return stats, nil
}
