// Package loader assembles datasets from an ordered chain of sources and keeps
// the latest good snapshot for the dashboard.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
	"github.com/JakeFAU/hkcovid-dashboard/internal/metrics"
)

// ErrNoData is returned while no dataset has been loaded.
var ErrNoData = errors.New("loader: no dataset loaded")

// errEmpty marks a source that answered without any cases.
var errEmpty = errors.New("source returned no cases")

// Chain tries sources in order until one produces a non-empty dataset.
type Chain struct {
	sources []covid.Source
	logger  *zap.Logger
	timeout time.Duration
}

// NewChain builds a Chain. Nil sources are skipped.
func NewChain(logger *zap.Logger, sources ...covid.Source) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]covid.Source, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Chain{sources: kept, logger: logger.Named("chain")}
}

// Names lists the configured sources in order.
func (c *Chain) Names() []string {
	out := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		out = append(out, s.Name())
	}
	return out
}

// WithSourceTimeout returns a copy of the chain that gives every source its
// own deadline of d. A non-positive d means no limit.
func (c *Chain) WithSourceTimeout(d time.Duration) *Chain {
	out := *c
	out.timeout = d
	return &out
}

// Load returns the first successful dataset with Source set to the name of
// the source that produced it. When every source fails the individual errors
// are joined. A source running out of its own deadline does not stop the
// chain; only cancellation of ctx does.
func (c *Chain) Load(ctx context.Context) (covid.Dataset, error) {
	if len(c.sources) == 0 {
		return covid.Dataset{}, errors.New("loader: no sources configured")
	}
	var errs []error
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		name := src.Name()
		ds, err := c.loadOne(ctx, src)
		switch {
		case err != nil:
			metrics.ObserveSourceLoad(name, metrics.OutcomeError)
		case ds.Empty():
			metrics.ObserveSourceLoad(name, metrics.OutcomeEmpty)
			err = errEmpty
		default:
			metrics.ObserveSourceLoad(name, metrics.OutcomeSuccess)
			ds.Source = name
			c.logger.Info("dataset loaded", zap.String("source", name), zap.Any("rows", ds.Counts()))
			return ds, nil
		}
		c.logger.Warn("source failed, trying next", zap.String("source", name), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return covid.Dataset{}, errors.Join(errs...)
}

func (c *Chain) loadOne(ctx context.Context, src covid.Source) (covid.Dataset, error) {
	if c.timeout <= 0 {
		return src.Load(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return src.Load(ctx)
}
