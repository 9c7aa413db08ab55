package loader

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hkcovid-dashboard/internal/covid"
)

// LiveSourceName identifies the upstream scrape in the loader chain.
const LiveSourceName = "live"

// DatasetFetcher fetches every upstream table at once.
type DatasetFetcher interface {
	FetchAll(ctx context.Context) (covid.Dataset, error)
}

// HospitalTable supplies the static hospital reference rows.
type HospitalTable interface {
	LoadHospitals(ctx context.Context) ([]covid.Hospital, error)
}

// AddressUpdater geocodes locations missing from the address book.
type AddressUpdater interface {
	UpdateAddressBook(ctx context.Context, book []covid.Address, locations []covid.HighRiskLocation) ([]covid.Address, int, error)
}

// LiveSource scrapes upstream and augments the result with the address book.
type LiveSource struct {
	fetcher  DatasetFetcher
	books    []covid.AddressBook
	geocoder AddressUpdater
	logger   *zap.Logger
}

var _ covid.Source = (*LiveSource)(nil)

// LiveOptions carries the optional collaborators of a LiveSource.
type LiveOptions struct {
	// AddressBooks are consulted in order; the first non-empty book wins.
	AddressBooks []covid.AddressBook
	// Geocoder, when set, resolves locations the book does not know yet.
	Geocoder AddressUpdater
	Logger   *zap.Logger
}

// NewLiveSource builds a LiveSource around fetcher.
func NewLiveSource(fetcher DatasetFetcher, opts LiveOptions) (*LiveSource, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("live source: fetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	books := make([]covid.AddressBook, 0, len(opts.AddressBooks))
	for _, b := range opts.AddressBooks {
		if b != nil {
			books = append(books, b)
		}
	}
	return &LiveSource{
		fetcher:  fetcher,
		books:    books,
		geocoder: opts.Geocoder,
		logger:   logger.Named("live"),
	}, nil
}

// Name implements covid.Source.
func (l *LiveSource) Name() string { return LiveSourceName }

// Load implements covid.Source. When geocoding runs out of time the rows
// resolved so far are kept; the remaining locations stay unplaced until a
// later refresh picks them up from the persisted book.
func (l *LiveSource) Load(ctx context.Context) (covid.Dataset, error) {
	ds, err := l.fetcher.FetchAll(ctx)
	if err != nil {
		return covid.Dataset{}, fmt.Errorf("fetch upstream: %w", err)
	}

	book := l.addressBook(ctx)
	if l.geocoder != nil {
		updated, added, gerr := l.geocoder.UpdateAddressBook(ctx, book, ds.HighRisk)
		switch {
		case gerr == nil:
		case errors.Is(gerr, context.DeadlineExceeded):
			l.logger.Warn("geocoding cut short, keeping partial address book",
				zap.Int("added", added),
				zap.Int("total", len(updated)),
				zap.Error(gerr),
			)
		default:
			return covid.Dataset{}, fmt.Errorf("geocode new locations: %w", gerr)
		}
		if added > 0 {
			l.logger.Info("address book extended", zap.Int("added", added), zap.Int("total", len(updated)))
		}
		if updated != nil {
			book = updated
		}
	}
	ds.Addresses = book
	return ds, nil
}

func (l *LiveSource) addressBook(ctx context.Context) []covid.Address {
	for i, b := range l.books {
		book, err := b.LoadAddresses(ctx)
		if err != nil {
			l.logger.Debug("address book unavailable", zap.Int("index", i), zap.Error(err))
			continue
		}
		if len(book) > 0 {
			return book
		}
	}
	return nil
}
